package encoder

import (
	"testing"

	"github.com/vintage-drives/mfmflux/checkcode"
	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/mfm"
	"github.com/vintage-drives/mfmflux/registry"
)

func wdProfile(t *testing.T) *registry.Profile {
	t.Helper()
	p, ok := registry.Lookup("WD_1006")
	if !ok {
		t.Fatal("WD_1006 profile not registered")
	}
	return p
}

func TestEncodeTrackProducesCorrectHeaderCRC(t *testing.T) {
	p := wdProfile(t)
	image := make([]byte, p.SectorSize*p.SectorsPerTrack)
	for i := range image {
		image[i] = byte(i)
	}

	bits, err := EncodeTrack(p, Params{
		Cylinder: 3, Head: 1, Image: image,
		Heads: 4, SectorsPerTrack: p.SectorsPerTrack, SectorInterleave: 1,
	})
	if err != nil {
		t.Fatalf("EncodeTrack: %v", err)
	}
	decoded := mfm.Decode(bits)
	if len(decoded) == 0 {
		t.Fatal("decoded track is empty")
	}

	// The first A1 sync byte written sits right after the 30-byte
	// leading gap; the CRC-checked header region (cyl, head, sector,
	// crc) immediately follows it.
	headerStart := 30 + 1
	region := decoded[headerStart : headerStart+5]
	residue := checkcode.CRC64(region, checkcode.Poly{
		Value: p.HeaderCheck.Poly, Length: p.HeaderCheck.Length, Init: p.HeaderCheck.Init, ECCMaxSpan: p.HeaderCheck.ECCSpan,
	})
	if residue != 0 {
		t.Errorf("header CRC residue = %#x, want 0", residue)
	}
	if decoded[headerStart] != 3 {
		t.Errorf("decoded cylinder byte = %d, want 3", decoded[headerStart])
	}
	if decoded[headerStart+1] != 1 {
		t.Errorf("decoded head byte = %d, want 1", decoded[headerStart+1])
	}
}

func TestEncodeTrackSubstitutesSyncAtRecordedOffset(t *testing.T) {
	p := wdProfile(t)
	image := make([]byte, p.SectorSize*p.SectorsPerTrack)

	bits, err := EncodeTrack(p, Params{
		Cylinder: 0, Head: 0, Image: image,
		Heads: 1, SectorsPerTrack: p.SectorsPerTrack, SectorInterleave: 1,
	})
	if err != nil {
		t.Fatalf("EncodeTrack: %v", err)
	}

	// Byte offset 30 (after the leading gap) must carry the literal A1
	// sync pattern, not a table-encoded 0xa1.
	syncBitPos := 30 * 16
	got := uint16(0)
	for i := 0; i < 16; i++ {
		got = got<<1 | uint16(bits.Bit(syncBitPos+i))
	}
	if got != mfm.SyncA1 {
		t.Errorf("bits at offset 30 = %#04x, want sync pattern %#04x", got, mfm.SyncA1)
	}
}

func TestEncodeTrackInterleaveAssignsEveryLogicalSector(t *testing.T) {
	p := wdProfile(t)
	image := make([]byte, p.SectorSize*p.SectorsPerTrack)

	seq := newSectorSequencer(p.SectorsPerTrack, 3, p.FirstSectorNum, 0)
	seen := make(map[int]bool)
	for i := 0; i < p.SectorsPerTrack; i++ {
		s := seq.Next()
		if seen[s] {
			t.Fatalf("sector %d assigned twice by the interleave sequencer", s)
		}
		seen[s] = true
	}
	if len(seen) != p.SectorsPerTrack {
		t.Errorf("interleave sequencer covered %d distinct sectors, want %d", len(seen), p.SectorsPerTrack)
	}
	_ = image
}

func TestEncodeTrackMarkBadInvertsDataCRC(t *testing.T) {
	p := wdProfile(t)
	image := make([]byte, p.SectorSize*p.SectorsPerTrack)

	markBad := map[diskmodel.CylHeadSector]bool{
		{Cylinder: 0, Head: 0, Sector: p.FirstSectorNum}: true,
	}
	bits, err := EncodeTrack(p, Params{
		Cylinder: 0, Head: 0, Image: image,
		Heads: 1, SectorsPerTrack: p.SectorsPerTrack, SectorInterleave: 0,
		MarkBad: markBad,
	})
	if err != nil {
		t.Fatalf("EncodeTrack: %v", err)
	}
	decoded := mfm.Decode(bits)

	// The data region's sync lands right after the header block and its
	// trailing gap; its check region covers the sector payload plus CRC.
	dataSyncOffset := 30 + 1 + 5 + 12
	dataStart := dataSyncOffset + 1
	region := decoded[dataStart : dataStart+p.SectorSize+2]
	residue := checkcode.CRC64(region, checkcode.Poly{
		Value: p.DataCheck.Poly, Length: p.DataCheck.Length, Init: p.DataCheck.Init, ECCMaxSpan: p.DataCheck.ECCSpan,
	})
	if residue == 0 {
		t.Error("mark-bad sector's data CRC checks out clean; inversion did not take effect")
	}
}
