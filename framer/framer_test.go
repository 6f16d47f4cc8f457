package framer

import (
	"testing"

	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/mfm"
	"github.com/vintage-drives/mfmflux/registry"
)

// concatBits packs the bits of several BitStreams end to end into one,
// MSB-first, the way a real track's header and data regions sit back
// to back on the bit stream.
func concatBits(streams ...diskmodel.BitStream) diskmodel.BitStream {
	var words []uint32
	pos := 0
	push := func(bit int) {
		wordIdx := pos / 32
		for wordIdx >= len(words) {
			words = append(words, 0)
		}
		shift := uint(31 - pos%32)
		words[wordIdx] |= uint32(bit) << shift
		pos++
	}
	for _, s := range streams {
		for i := 0; i < s.NumBits; i++ {
			push(s.Bit(i))
		}
	}
	return diskmodel.BitStream{Words: words, NumBits: pos}
}

// markedBytes encodes a byte slice whose first byte is overridden with
// the given literal sync pattern, used to build a header or data mark
// followed immediately by its payload (spec §4.5 sync-pattern
// substitution).
func markedBytes(pattern uint16, payload []byte) diskmodel.BitStream {
	full := append([]byte{0}, payload...)
	return mfm.Encode(full, []mfm.SyncPattern{{Index: 0, Pattern: pattern}})
}

func wdProfile(t *testing.T) *registry.Profile {
	t.Helper()
	p, ok := registry.Lookup("WD_1006")
	if !ok {
		t.Fatal("WD_1006 profile not registered")
	}
	return p
}

func TestFindSyncLocatesPlantedMark(t *testing.T) {
	p := wdProfile(t)
	bits := concatBits(
		diskmodel.BitStream{Words: []uint32{0}, NumBits: 32}, // leading zero run
		markedBytes(mfm.SyncA1, []byte{0xaa}),
	)
	f := New(p, bits)
	if !f.findSync(mfm.SyncA1) {
		t.Fatal("findSync did not locate the planted A1 mark")
	}
}

func TestFindSyncRejectsShortZeroRun(t *testing.T) {
	p := wdProfile(t)
	// Only 4 zero bits precede the mark; WD_1006 requires 15.
	bits := concatBits(
		diskmodel.BitStream{Words: []uint32{0}, NumBits: 4},
		markedBytes(mfm.SyncA1, []byte{0xaa}),
	)
	f := New(p, bits)
	if f.findSync(mfm.SyncA1) {
		t.Fatal("findSync accepted a mark with too short a preceding zero run")
	}
}

// goodHeader returns a WD-family header (cyl=5, head=1, sector=3) with a
// correct trailing CRC appended, matching WD_1006's HeaderCheck.
func goodHeader() []byte {
	return []byte{0xfe, 0x05, 0x01, 0x03, 0x51, 0x75}
}

func TestProcessHeaderGoodCRC(t *testing.T) {
	p := wdProfile(t)
	bits := concatBits(
		diskmodel.BitStream{Words: []uint32{0}, NumBits: 32},
		markedBytes(mfm.SyncA1, goodHeader()),
	)
	f := New(p, bits)
	if !f.findSync(mfm.SyncA1) {
		t.Fatal("sync not found")
	}
	outcome, err := f.processHeader(5, 1)
	if err != nil {
		t.Fatalf("processHeader: %v", err)
	}
	if outcome.Status.Has(diskmodel.StatusBadHeader) {
		t.Fatalf("good header reported bad, status=%v", outcome.Status)
	}
	if outcome.ObservedCylinder != 5 || outcome.ObservedHead != 1 || outcome.ObservedSector != 3 {
		t.Errorf("decoded header = cyl %d head %d sector %d, want 5/1/3",
			outcome.ObservedCylinder, outcome.ObservedHead, outcome.ObservedSector)
	}
}

func TestProcessHeaderBadCRCStopsAtHeader(t *testing.T) {
	p := wdProfile(t)
	corrupt := goodHeader()
	corrupt[3] ^= 0xff // flip the sector byte, invalidating the CRC
	bits := concatBits(
		diskmodel.BitStream{Words: []uint32{0}, NumBits: 32},
		markedBytes(mfm.SyncA1, corrupt),
	)
	f := New(p, bits)
	if !f.findSync(mfm.SyncA1) {
		t.Fatal("sync not found")
	}
	outcome, err := f.processHeader(5, 1)
	if err != nil {
		t.Fatalf("processHeader: %v", err)
	}
	if !outcome.Status.Has(diskmodel.StatusBadHeader) {
		t.Fatal("corrupted header CRC did not produce StatusBadHeader")
	}
}

func TestDecodeTrackFullSector(t *testing.T) {
	p := wdProfile(t)
	data := make([]byte, 512)
	dataWithCRC := append(append([]byte{}, data...), 0x16, 0x34)

	bits := concatBits(
		diskmodel.BitStream{Words: []uint32{0}, NumBits: 32},
		markedBytes(mfm.SyncA1, goodHeader()),
		diskmodel.BitStream{Words: []uint32{0}, NumBits: 32},
		markedBytes(mfm.SyncA1, dataWithCRC),
	)

	f := New(p, bits)
	outcomes, err := f.DecodeTrack(5, 1)
	if err != nil {
		t.Fatalf("DecodeTrack: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	o := outcomes[0]
	if o.Status.Has(diskmodel.StatusBadHeader) || o.Status.Has(diskmodel.StatusBadData) {
		t.Fatalf("sector reported bad, status=%v", o.Status)
	}
	if o.ObservedSector != 3 {
		t.Errorf("observed sector = %d, want 3", o.ObservedSector)
	}
	if len(o.Data) != 512 {
		t.Errorf("decoded data length = %d, want 512", len(o.Data))
	}
}

func TestProcessHeaderOutOfData(t *testing.T) {
	p := wdProfile(t)
	bits := concatBits(
		diskmodel.BitStream{Words: []uint32{0}, NumBits: 32},
		markedBytes(mfm.SyncA1, []byte{0xfe, 0x05}), // too short to hold a full header+CRC
	)
	f := New(p, bits)
	if !f.findSync(mfm.SyncA1) {
		t.Fatal("sync not found")
	}
	_, err := f.processHeader(5, 1)
	if err == nil {
		t.Fatal("expected an out-of-data error")
	}
	if _, ok := err.(*OutOfDataError); !ok {
		t.Fatalf("err = %T, want *OutOfDataError", err)
	}
}
