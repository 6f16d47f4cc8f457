// Package container implements the two binary container formats used to
// persist decode/encode pipeline input and output: TRAN (transition
// deltas) and EMU (raw MFM bit-streams). Both are little-endian,
// append-only on write and random-access on read (spec §4.2, §6).
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/vintage-drives/mfmflux/checkcode"
)

// Magic is the 8-byte signature common to both TRAN and EMU files.
var Magic = [8]byte{0xEE, 0x4D, 0x46, 0x4D, 0x0D, 0x0A, 0x1A, 0x00}

// File type bytes, the second header word's first byte.
const (
	TypeTran = 0x01
	TypeEmu  = 0x02
)

// headerChecksum is the CRC used over file and per-track headers in both
// formats (spec §6).
var headerChecksum = checkcode.Poly{Value: 0x140a0445, Length: 32, Init: 0xffffffff}

func crc32Of(b []byte) uint32 {
	return uint32(checkcode.CRC64(b, headerChecksum))
}

// readMagicAndType reads and validates the 8-byte magic plus the 4-byte
// type/version word, returning major and minor; a type byte other than
// wantType is an error.
func readMagicAndType(r io.Reader, wantType byte) (major, minor byte, err error) {
	var magic [8]byte
	if _, err = io.ReadFull(r, magic[:]); err != nil {
		return 0, 0, errors.Wrap(err, "container: read magic")
	}
	if magic != Magic {
		return 0, 0, fmt.Errorf("container: bad magic %x", magic)
	}
	var tv [4]byte
	if _, err = io.ReadFull(r, tv[:]); err != nil {
		return 0, 0, errors.Wrap(err, "container: read type/version")
	}
	if tv[0] != wantType {
		return 0, 0, fmt.Errorf("container: type byte %#x, want %#x", tv[0], wantType)
	}
	return tv[1], tv[2], nil
}

func writeMagicAndType(w io.Writer, typeByte, major, minor byte) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return errors.Wrap(err, "container: write magic")
	}
	tv := [4]byte{typeByte, major, minor, 0}
	_, err := w.Write(tv[:])
	return errors.Wrap(err, "container: write type/version")
}

// skipExtra reads and discards n bytes, implementing the "tolerate
// unknown trailing bytes" forward-compatibility rule (spec §4.2).
func skipExtra(r io.Reader, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeI32(w io.Writer, v int32) error { return writeU32(w, uint32(v)) }
func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func writeCString(w io.Writer, s string) error {
	_, err := w.Write(append([]byte(s), 0))
	return err
}

func readCString(r io.Reader) (string, error) {
	var buf []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
}

// osOpenOrCreate opens filename for random-access read/write, creating it
// if it doesn't exist yet (container files are written incrementally,
// track by track, then re-opened for read).
func osOpenOrCreate(filename string) (*os.File, error) {
	return os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
}

// osOpenOrCreateReadOnly opens filename for random-access reading.
func osOpenOrCreateReadOnly(filename string) (*os.File, error) {
	return os.OpenFile(filename, os.O_RDONLY, 0)
}
