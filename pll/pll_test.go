package pll

import (
	"testing"

	"github.com/vintage-drives/mfmflux/diskmodel"
)

func TestFeedNominalDeltaProducesOneRun(t *testing.T) {
	d := NewDecoder(10_000_000) // nominal bit-cell separation: 20 ticks
	runs := d.Feed(diskmodel.Delta(40))
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1 for a nominal 2-bit-cell delta", len(runs))
	}
	if !runs[0].One {
		t.Error("expected the run to end with a transition bit")
	}
	if runs[0].Zeros != 1 {
		t.Errorf("Zeros = %d, want 1 (two bit-cells: one zero then the transition)", runs[0].Zeros)
	}
}

func TestFeedLongDeltaChunks(t *testing.T) {
	d := NewDecoder(10_000_000) // nominal separation 20 ticks, chunk limit ~440 ticks
	// A delta worth ~100 bit-cells must be split into multiple runs, with
	// only the final run carrying the transition.
	runs := d.Feed(diskmodel.Delta(100 * 20))
	if len(runs) < 2 {
		t.Fatalf("got %d runs, want >= 2 for a long delta", len(runs))
	}
	for _, r := range runs[:len(runs)-1] {
		if r.One {
			t.Error("only the final run of a chunked delta should carry a transition")
		}
	}
	if !runs[len(runs)-1].One {
		t.Error("final run of a chunked delta must carry the transition")
	}
}

func TestDecodeTrackProducesMarksAtTransitions(t *testing.T) {
	track := diskmodel.DeltaTrack{
		Cylinder: 0, Head: 0,
		Deltas: []diskmodel.Delta{20, 20, 40, 20},
	}
	bs := DecodeTrack(track, 10_000_000)
	if len(bs.Marker) != len(track.Deltas) {
		t.Fatalf("got %d marks, want %d (one per delta)", len(bs.Marker), len(track.Deltas))
	}
	if bs.NumBits == 0 {
		t.Fatal("expected a non-empty bit stream")
	}
	// Every marked position must itself be a 1 bit.
	for _, m := range bs.Marker {
		if bs.Bit(m.BitPos) != 1 {
			t.Errorf("bit at marked position %d = %d, want 1", m.BitPos, bs.Bit(m.BitPos))
		}
	}
}

func TestAverageTracksNominalUnderSteadyInput(t *testing.T) {
	d := NewDecoder(10_000_000)
	for i := 0; i < 100; i++ {
		d.Feed(diskmodel.Delta(20))
	}
	if d.average < 19 || d.average > 21 {
		t.Errorf("average drifted to %v under steady nominal input, want near 20", d.average)
	}
}
