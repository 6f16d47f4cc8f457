package container

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/vintage-drives/mfmflux/diskmodel"
)

// TrackMarker is the per-track header word that precedes every EMU track
// record (spec §4.2, §6).
const TrackMarker = 0x12345678

// EmuHeader is the EMU file header (spec §4.2).
type EmuHeader struct {
	Major, Minor     byte
	TrackHeaderSize  uint32
	TrackDataSize    uint32 // bytes of bit-stream per track
	Cylinders        uint32
	Heads            uint32
	SampleRateHz     uint32
	DecodeCmdLine    string
	Note             string
	StartTimeNs      uint32
}

// EmuWriter writes per-track bit-stream records to an EMU file.
type EmuWriter struct {
	w      io.WriteSeeker
	header EmuHeader
}

// CreateEmu creates filename, writes the EMU header and returns a writer
// ready to append tracks. header.TrackDataSize must already reflect the
// profile's track_bit_word_count (spec §3).
func CreateEmu(filename string, header EmuHeader) (*EmuWriter, error) {
	f, err := osOpenOrCreate(filename)
	if err != nil {
		return nil, errors.Wrap(err, "container: create emu")
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	ew := &EmuWriter{w: f, header: header}
	if err := ew.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return ew, nil
}

func (ew *EmuWriter) writeHeader() error {
	var buf []byte
	appendU32 := func(v uint32) {
		buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	appendCStr := func(s string) { buf = append(buf, append([]byte(s), 0)...) }

	appendU32(ew.header.TrackHeaderSize)
	appendU32(ew.header.TrackDataSize)
	appendU32(ew.header.Cylinders)
	appendU32(ew.header.Heads)
	appendU32(ew.header.SampleRateHz)
	appendCStr(ew.header.DecodeCmdLine)
	appendCStr(ew.header.Note)
	appendU32(ew.header.StartTimeNs)

	if err := writeMagicAndType(ew.w, TypeEmu, ew.header.Major, ew.header.Minor); err != nil {
		return err
	}
	if _, err := ew.w.Write(buf); err != nil {
		return errors.Wrap(err, "container: write emu header body")
	}
	checksum := crc32Of(append(append([]byte{}, Magic[:]...), append([]byte{TypeEmu, ew.header.Major, ew.header.Minor, 0}, buf...)...))
	return writeU32(ew.w, checksum)
}

// WriteTrack appends one EMU track: the marker word, then cylinder, then
// head, then exactly header.TrackDataSize bytes of bit-stream data,
// zero-padded (the caller is responsible for MFM-legal zero padding —
// spec §3 invariant).
func (ew *EmuWriter) WriteTrack(cyl, head int, bits []byte) error {
	if uint32(len(bits)) != ew.header.TrackDataSize {
		return fmt.Errorf("container: emu track data is %d bytes, want %d", len(bits), ew.header.TrackDataSize)
	}
	if err := writeU32(ew.w, TrackMarker); err != nil {
		return errors.Wrap(err, "container: write emu track marker")
	}
	if err := writeI32(ew.w, int32(cyl)); err != nil {
		return errors.Wrap(err, "container: write emu track cylinder")
	}
	if err := writeI32(ew.w, int32(head)); err != nil {
		return errors.Wrap(err, "container: write emu track head")
	}
	_, err := ew.w.Write(bits)
	return errors.Wrap(err, "container: write emu track data")
}

// Close writes the end-of-stream marker track (marker, then cylinder =
// head = -1, no data) and releases the underlying file handle.
func (ew *EmuWriter) Close() error {
	if err := writeU32(ew.w, TrackMarker); err != nil {
		return err
	}
	if err := writeI32(ew.w, -1); err != nil {
		return err
	}
	if err := writeI32(ew.w, -1); err != nil {
		return err
	}
	if closer, ok := ew.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// EmuReader reads bit-stream tracks back out of an EMU file.
type EmuReader struct {
	r      io.ReadSeeker
	Header EmuHeader
}

// OpenEmu opens filename and parses its header.
func OpenEmu(filename string) (*EmuReader, error) {
	f, err := osOpenOrCreateReadOnly(filename)
	if err != nil {
		return nil, err
	}
	er := &EmuReader{r: f}
	if err := er.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return er, nil
}

func (er *EmuReader) readHeader() error {
	major, minor, err := readMagicAndType(er.r, TypeEmu)
	if err != nil {
		return err
	}
	er.Header.Major, er.Header.Minor = major, minor

	fields := []*uint32{&er.Header.TrackHeaderSize, &er.Header.TrackDataSize, &er.Header.Cylinders, &er.Header.Heads, &er.Header.SampleRateHz}
	for _, f := range fields {
		v, err := readU32(er.r)
		if err != nil {
			return errors.Wrap(err, "container: read emu header field")
		}
		*f = v
	}
	if er.Header.DecodeCmdLine, err = readCString(er.r); err != nil {
		return errors.Wrap(err, "container: read emu decode command line")
	}
	if er.Header.Note, err = readCString(er.r); err != nil {
		return errors.Wrap(err, "container: read emu note")
	}
	start, err := readU32(er.r)
	if err != nil {
		return errors.Wrap(err, "container: read emu start time")
	}
	er.Header.StartTimeNs = start

	if _, err := readU32(er.r); err != nil { // header checksum, not re-verified
		return errors.Wrap(err, "container: read emu header checksum")
	}

	// Tolerate any minor-version extra fields the per-track header size
	// claims beyond what this reader understands.
	const knownTrackHeaderSize = 4 + 4 + 4 // cyl, head, marker
	if int(er.Header.TrackHeaderSize) > knownTrackHeaderSize {
		return skipExtra(er.r, int(er.Header.TrackHeaderSize)-knownTrackHeaderSize)
	}
	return nil
}

// ReadTrack reads the next track's (cylinder, head, bit-stream), or
// reports done=true at the terminator track.
func (er *EmuReader) ReadTrack() (cyl, head int, bits []byte, done bool, err error) {
	marker, err := readU32(er.r)
	if err != nil {
		return 0, 0, nil, false, errors.Wrap(err, "container: read emu track marker")
	}
	if marker != TrackMarker {
		return 0, 0, nil, false, fmt.Errorf("container: emu track marker %#x, want %#x", marker, TrackMarker)
	}

	cylRaw, err := readI32(er.r)
	if err != nil {
		return 0, 0, nil, false, errors.Wrap(err, "container: read emu track cylinder")
	}
	headRaw, err := readI32(er.r)
	if err != nil {
		return 0, 0, nil, false, errors.Wrap(err, "container: read emu track head")
	}
	if cylRaw == -1 && headRaw == -1 {
		return 0, 0, nil, true, nil
	}

	bits = make([]byte, er.Header.TrackDataSize)
	if _, err := io.ReadFull(er.r, bits); err != nil {
		return 0, 0, nil, false, errors.Wrap(err, "container: read emu track data")
	}
	return int(cylRaw), int(headRaw), bits, false, nil
}

// Close releases the underlying file handle.
func (er *EmuReader) Close() error {
	if closer, ok := er.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// BitStreamFromBytes packs a bit-stream's raw bytes (MSB-first) into the
// 32-bit-word diskmodel.BitStream representation.
func BitStreamFromBytes(bits []byte) diskmodel.BitStream {
	words := make([]uint32, (len(bits)+3)/4)
	for i, b := range bits {
		words[i/4] |= uint32(b) << uint((3-i%4)*8)
	}
	return diskmodel.BitStream{Words: words, NumBits: len(bits) * 8}
}

// BitStreamToBytes unpacks a diskmodel.BitStream back into MSB-first
// packed bytes, truncated to NumBits.
func BitStreamToBytes(b diskmodel.BitStream) []byte {
	nbytes := (b.NumBits + 7) / 8
	out := make([]byte, nbytes)
	for i := range out {
		word := b.Words[i/4]
		out[i] = byte(word >> uint((3-i%4)*8))
	}
	return out
}
