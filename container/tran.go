package container

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/vintage-drives/mfmflux/diskmodel"
)

// TranHeader is the TRAN file header (spec §4.2, §6). The sample rate is
// always 200 MHz; TRAN files exist to carry raw transition deltas, not
// resampled ones.
type TranHeader struct {
	Major, Minor  byte
	SampleRateHz  uint32
	DecodeCmdLine string
	Note          string
	StartTimeNs   uint32
}

// TranWriter writes per-track delta records to a TRAN file.
type TranWriter struct {
	w      io.WriteSeeker
	header TranHeader
}

// CreateTran creates filename, writes the TRAN header and returns a
// writer ready to append tracks.
func CreateTran(filename string, header TranHeader) (*TranWriter, error) {
	f, err := osOpenOrCreate(filename)
	if err != nil {
		return nil, errors.Wrap(err, "container: create tran")
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	tw := &TranWriter{w: f, header: header}
	if err := tw.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return tw, nil
}

func (tw *TranWriter) writeHeader() error {
	var buf []byte
	app := func(b []byte) { buf = append(buf, b...) }

	appendU32 := func(v uint32) {
		app([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	}
	appendCStr := func(s string) { app(append([]byte(s), 0)) }

	appendU32(diskmodel.ReferenceClockHz)
	appendCStr(tw.header.DecodeCmdLine)
	appendCStr(tw.header.Note)
	appendU32(tw.header.StartTimeNs)

	if err := writeMagicAndType(tw.w, TypeTran, tw.header.Major, tw.header.Minor); err != nil {
		return err
	}
	if _, err := tw.w.Write(buf); err != nil {
		return errors.Wrap(err, "container: write tran header body")
	}
	checksum := crc32Of(append(append([]byte{}, Magic[:]...), append([]byte{TypeTran, tw.header.Major, tw.header.Minor, 0}, buf...)...))
	return writeU32(tw.w, checksum)
}

// packDelta appends the variable-length encoding of one delta: a single
// byte <254 encodes the delta directly; 254 is followed by a 16-bit
// little-endian delta; 255 is followed by a 24-bit little-endian delta
// (spec §4.2, §6).
func packDelta(buf []byte, d diskmodel.Delta) []byte {
	switch {
	case d < 254:
		return append(buf, byte(d))
	case d <= 0xffff:
		return append(buf, 254, byte(d), byte(d>>8))
	default:
		return append(buf, 255, byte(d), byte(d>>8), byte(d>>16))
	}
}

// unpackDeltas decodes a packed-delta byte stream back into deltas.
func unpackDeltas(data []byte) ([]diskmodel.Delta, error) {
	var out []diskmodel.Delta
	i := 0
	for i < len(data) {
		switch b := data[i]; {
		case b < 254:
			out = append(out, diskmodel.Delta(b))
			i++
		case b == 254:
			if i+3 > len(data) {
				return nil, fmt.Errorf("container: truncated 16-bit delta")
			}
			out = append(out, diskmodel.Delta(uint32(data[i+1])|uint32(data[i+2])<<8))
			i += 3
		default: // 255
			if i+4 > len(data) {
				return nil, fmt.Errorf("container: truncated 24-bit delta")
			}
			out = append(out, diskmodel.Delta(uint32(data[i+1])|uint32(data[i+2])<<8|uint32(data[i+3])<<16))
			i += 4
		}
	}
	return out, nil
}

// WriteTrack appends one delta-track record: cylinder, head, byte count,
// packed deltas, then a 32-bit CRC over everything written for this
// track (spec §4.2).
func (tw *TranWriter) WriteTrack(track diskmodel.DeltaTrack) error {
	var packed []byte
	for _, d := range track.Deltas {
		packed = packDelta(packed, d)
	}

	var rec []byte
	rec = append(rec, byte(int32(track.Cylinder)), byte(int32(track.Cylinder)>>8), byte(int32(track.Cylinder)>>16), byte(int32(track.Cylinder)>>24))
	rec = append(rec, byte(int32(track.Head)), byte(int32(track.Head)>>8), byte(int32(track.Head)>>16), byte(int32(track.Head)>>24))
	rec = append(rec, byte(len(packed)), byte(len(packed)>>8), byte(len(packed)>>16), byte(len(packed)>>24))
	rec = append(rec, packed...)

	if _, err := tw.w.Write(rec); err != nil {
		return errors.Wrap(err, "container: write tran track")
	}
	return writeU32(tw.w, crc32Of(rec))
}

// Close writes the end-of-stream marker track (cylinder = head = -1, no
// data) and releases the underlying file handle.
func (tw *TranWriter) Close() error {
	if err := tw.WriteTrack(diskmodel.DeltaTrack{Cylinder: -1, Head: -1}); err != nil {
		return err
	}
	if closer, ok := tw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// TranReader reads delta-tracks back out of a TRAN file.
type TranReader struct {
	r      io.ReadSeeker
	Header TranHeader
}

// OpenTran opens filename and parses its header. The TRAN header carries
// no size field, so header bytes added by a later minor version are not
// skipped: they are read as the start of the track data.
func OpenTran(filename string) (*TranReader, error) {
	f, err := osOpenOrCreateReadOnly(filename)
	if err != nil {
		return nil, err
	}
	tr := &TranReader{r: f}
	if err := tr.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return tr, nil
}

func (tr *TranReader) readHeader() error {
	major, minor, err := readMagicAndType(tr.r, TypeTran)
	if err != nil {
		return err
	}
	tr.Header.Major, tr.Header.Minor = major, minor

	rate, err := readU32(tr.r)
	if err != nil {
		return errors.Wrap(err, "container: read tran sample rate")
	}
	if rate != diskmodel.ReferenceClockHz {
		return fmt.Errorf("container: tran sample rate %d, want %d", rate, diskmodel.ReferenceClockHz)
	}
	tr.Header.SampleRateHz = rate

	if tr.Header.DecodeCmdLine, err = readCString(tr.r); err != nil {
		return errors.Wrap(err, "container: read tran decode command line")
	}
	if tr.Header.Note, err = readCString(tr.r); err != nil {
		return errors.Wrap(err, "container: read tran note")
	}
	start, err := readU32(tr.r)
	if err != nil {
		return errors.Wrap(err, "container: read tran start time")
	}
	tr.Header.StartTimeNs = start

	// Skip the header checksum; readers do not re-validate it (nor the
	// per-track checksums, which ReadTrack also skips).
	if _, err := readU32(tr.r); err != nil {
		return errors.Wrap(err, "container: read tran header checksum")
	}
	return nil
}

// ReadTrack reads the next delta-track record, or io.EOF-equivalent when
// the terminator track (cyl = head = -1) is reached.
func (tr *TranReader) ReadTrack() (diskmodel.DeltaTrack, bool, error) {
	cylRaw, err := readI32(tr.r)
	if err != nil {
		return diskmodel.DeltaTrack{}, false, errors.Wrap(err, "container: read tran track cylinder")
	}
	headRaw, err := readI32(tr.r)
	if err != nil {
		return diskmodel.DeltaTrack{}, false, errors.Wrap(err, "container: read tran track head")
	}
	if cylRaw == -1 && headRaw == -1 {
		return diskmodel.DeltaTrack{}, true, nil
	}

	nbytes, err := readU32(tr.r)
	if err != nil {
		return diskmodel.DeltaTrack{}, false, errors.Wrap(err, "container: read tran byte count")
	}
	packed := make([]byte, nbytes)
	if _, err := io.ReadFull(tr.r, packed); err != nil {
		return diskmodel.DeltaTrack{}, false, errors.Wrap(err, "container: read tran packed deltas")
	}
	if _, err := readU32(tr.r); err != nil { // per-track checksum, not re-verified on read
		return diskmodel.DeltaTrack{}, false, errors.Wrap(err, "container: read tran track checksum")
	}

	deltas, err := unpackDeltas(packed)
	if err != nil {
		return diskmodel.DeltaTrack{}, false, err
	}
	return diskmodel.DeltaTrack{Cylinder: int(cylRaw), Head: int(headRaw), Deltas: deltas}, false, nil
}

// Close releases the underlying file handle.
func (tr *TranReader) Close() error {
	if closer, ok := tr.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
