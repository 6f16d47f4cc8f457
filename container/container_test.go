package container

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/vintage-drives/mfmflux/diskmodel"
)

func TestTranRoundTrip(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "test.tran")

	header := TranHeader{Major: 1, Minor: 0, DecodeCmdLine: "mfmflux decode", Note: "unit test"}
	tw, err := CreateTran(filename, header)
	if err != nil {
		t.Fatalf("CreateTran: %v", err)
	}

	tracks := []diskmodel.DeltaTrack{
		{Cylinder: 0, Head: 0, Deltas: []diskmodel.Delta{50, 40, 60000}},
		{Cylinder: 0, Head: 1, Deltas: []diskmodel.Delta{300, 254, 70000, 1}},
	}
	for _, tr := range tracks {
		if err := tw.WriteTrack(tr); err != nil {
			t.Fatalf("WriteTrack: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr, err := OpenTran(filename)
	if err != nil {
		t.Fatalf("OpenTran: %v", err)
	}
	defer tr.Close()

	if tr.Header.SampleRateHz != diskmodel.ReferenceClockHz {
		t.Errorf("sample rate = %d, want %d", tr.Header.SampleRateHz, diskmodel.ReferenceClockHz)
	}
	if tr.Header.DecodeCmdLine != header.DecodeCmdLine {
		t.Errorf("decode cmdline = %q, want %q", tr.Header.DecodeCmdLine, header.DecodeCmdLine)
	}

	for i, want := range tracks {
		got, done, err := tr.ReadTrack()
		if err != nil {
			t.Fatalf("ReadTrack %d: %v", i, err)
		}
		if done {
			t.Fatalf("ReadTrack %d: unexpected end of stream", i)
		}
		if got.Cylinder != want.Cylinder || got.Head != want.Head {
			t.Errorf("track %d: got (%d,%d), want (%d,%d)", i, got.Cylinder, got.Head, want.Cylinder, want.Head)
		}
		if len(got.Deltas) != len(want.Deltas) {
			t.Fatalf("track %d: got %d deltas, want %d", i, len(got.Deltas), len(want.Deltas))
		}
		for j := range want.Deltas {
			if got.Deltas[j] != want.Deltas[j] {
				t.Errorf("track %d delta %d: got %d, want %d", i, j, got.Deltas[j], want.Deltas[j])
			}
		}
	}

	_, done, err := tr.ReadTrack()
	if err != nil {
		t.Fatalf("terminator ReadTrack: %v", err)
	}
	if !done {
		t.Error("expected end-of-stream terminator track")
	}
}

// TestTranPackingScenario is spec §8 Scenario F: three literal deltas
// 50, 40, 60000 pack to bytes 32 28 FE then 60 EA (254 prefix, then the
// little-endian 16-bit value 60000 = 0xEA60).
func TestTranPackingScenario(t *testing.T) {
	var packed []byte
	for _, d := range []diskmodel.Delta{50, 40, 60000} {
		packed = packDelta(packed, d)
	}
	want := []byte{0x32, 0x28, 0xFE, 0x60, 0xEA}
	if !bytes.Equal(packed, want) {
		t.Errorf("packed = % x, want % x", packed, want)
	}

	unpacked, err := unpackDeltas(packed)
	if err != nil {
		t.Fatalf("unpackDeltas: %v", err)
	}
	want2 := []diskmodel.Delta{50, 40, 60000}
	if len(unpacked) != len(want2) {
		t.Fatalf("unpacked %d deltas, want %d", len(unpacked), len(want2))
	}
	for i := range want2 {
		if unpacked[i] != want2[i] {
			t.Errorf("delta %d = %d, want %d", i, unpacked[i], want2[i])
		}
	}
}

func TestEmuRoundTrip(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "test.emu")

	const trackDataSize = 16
	header := EmuHeader{
		Major: 1, Minor: 0,
		TrackHeaderSize: 12,
		TrackDataSize:   trackDataSize,
		Cylinders:       2,
		Heads:           1,
		SampleRateHz:    10_000_000,
		DecodeCmdLine:   "mfmflux decode --format WD_1006",
		Note:            "scenario A style",
	}
	ew, err := CreateEmu(filename, header)
	if err != nil {
		t.Fatalf("CreateEmu: %v", err)
	}

	track0 := bytes.Repeat([]byte{0x55}, trackDataSize)
	track1 := bytes.Repeat([]byte{0xAA}, trackDataSize)
	if err := ew.WriteTrack(0, 0, track0); err != nil {
		t.Fatalf("WriteTrack 0: %v", err)
	}
	if err := ew.WriteTrack(1, 0, track1); err != nil {
		t.Fatalf("WriteTrack 1: %v", err)
	}
	if err := ew.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Byte-level check that the first track record's wire layout is
	// marker (LE 0x12345678 = 78 56 34 12), then cylinder, then head —
	// not cylinder/head followed by the marker.
	raw, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	headerLen := 8 + 4 + // magic + type/version
		4 + 4 + 4 + 4 + 4 + // TrackHeaderSize, TrackDataSize, Cylinders, Heads, SampleRateHz
		len(header.DecodeCmdLine) + 1 + len(header.Note) + 1 +
		4 + // StartTimeNs
		4 // header checksum
	wantTrack0 := []byte{0x78, 0x56, 0x34, 0x12, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if headerLen+len(wantTrack0) > len(raw) {
		t.Fatalf("file too short (%d bytes) to contain a track header at offset %d", len(raw), headerLen)
	}
	gotTrack0 := raw[headerLen : headerLen+len(wantTrack0)]
	if !bytes.Equal(gotTrack0, wantTrack0) {
		t.Errorf("first track header bytes = % x, want % x (marker, cylinder, head)", gotTrack0, wantTrack0)
	}

	er, err := OpenEmu(filename)
	if err != nil {
		t.Fatalf("OpenEmu: %v", err)
	}
	defer er.Close()

	if er.Header.TrackDataSize != trackDataSize {
		t.Errorf("TrackDataSize = %d, want %d", er.Header.TrackDataSize, trackDataSize)
	}
	if er.Header.Cylinders != 2 {
		t.Errorf("Cylinders = %d, want 2", er.Header.Cylinders)
	}

	for i, want := range [][]byte{track0, track1} {
		cyl, head, bits, done, err := er.ReadTrack()
		if err != nil {
			t.Fatalf("ReadTrack %d: %v", i, err)
		}
		if done {
			t.Fatalf("ReadTrack %d: unexpected end of stream", i)
		}
		if cyl != i || head != 0 {
			t.Errorf("track %d: got (%d,%d), want (%d,0)", i, cyl, head, i)
		}
		if !bytes.Equal(bits, want) {
			t.Errorf("track %d data mismatch", i)
		}
	}

	_, _, _, done, err := er.ReadTrack()
	if err != nil {
		t.Fatalf("terminator ReadTrack: %v", err)
	}
	if !done {
		t.Error("expected end-of-stream terminator track")
	}
}

func TestBitStreamRoundTrip(t *testing.T) {
	orig := []byte{0x01, 0x23, 0x45, 0x67, 0x89}
	bs := BitStreamFromBytes(orig)
	got := BitStreamToBytes(bs)
	if !bytes.Equal(got, orig) {
		t.Errorf("BitStream round trip = % x, want % x", got, orig)
	}
	if bs.Bit(0) != 0 || bs.Bit(7) != 1 {
		t.Errorf("Bit(0)=%d Bit(7)=%d, want 0,1 for leading byte 0x01", bs.Bit(0), bs.Bit(7))
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
