package aggregator

import (
	"testing"

	"github.com/vintage-drives/mfmflux/diskmodel"
)

func TestAddPassKeepsFirstGoodSector(t *testing.T) {
	a := New()
	key := TrackKey{Cylinder: 0, Head: 0}
	good := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusHeaderFound}
	a.AddPass(key, []diskmodel.SectorOutcome{good}, diskmodel.BitStream{Words: []uint32{1}, NumBits: 32}, nil)

	sectors, _, _ := a.BestTrack(key)
	if len(sectors) != 1 || sectors[0].Status.Has(diskmodel.StatusBadHeader) {
		t.Fatalf("unexpected sectors: %+v", sectors)
	}
}

func TestAddPassUpgradesBadHeaderOnRetry(t *testing.T) {
	a := New()
	key := TrackKey{Cylinder: 0, Head: 0}

	bad := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusBadHeader}
	a.AddPass(key, []diskmodel.SectorOutcome{bad}, diskmodel.BitStream{Words: []uint32{1}, NumBits: 32}, nil)

	good := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusHeaderFound}
	a.AddPass(key, []diskmodel.SectorOutcome{good}, diskmodel.BitStream{Words: []uint32{2}, NumBits: 32}, nil)

	sectors, _, _ := a.BestTrack(key)
	if len(sectors) != 1 || sectors[0].Status.Has(diskmodel.StatusBadHeader) {
		t.Fatalf("retry did not upgrade bad header: %+v", sectors)
	}
}

func TestAddPassRejectsWorseRetry(t *testing.T) {
	a := New()
	key := TrackKey{Cylinder: 0, Head: 0}

	good := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusHeaderFound}
	a.AddPass(key, []diskmodel.SectorOutcome{good}, diskmodel.BitStream{Words: []uint32{1}, NumBits: 32}, nil)

	bad := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusBadHeader}
	a.AddPass(key, []diskmodel.SectorOutcome{bad}, diskmodel.BitStream{Words: []uint32{2}, NumBits: 32}, nil)

	sectors, _, _ := a.BestTrack(key)
	if sectors[0].Status.Has(diskmodel.StatusBadHeader) {
		t.Fatal("a worse retry overwrote a good sector")
	}
}

func TestAddPassUpgradesBadDataOnSmallerECCSpan(t *testing.T) {
	a := New()
	key := TrackKey{Cylinder: 0, Head: 0}

	bad := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusBadData}
	a.AddPass(key, []diskmodel.SectorOutcome{bad}, diskmodel.BitStream{Words: []uint32{1}, NumBits: 32}, nil)

	recovered := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusECCRecovered, DataECCSpan: 3}
	a.AddPass(key, []diskmodel.SectorOutcome{recovered}, diskmodel.BitStream{Words: []uint32{2}, NumBits: 32}, nil)

	sectors, _, _ := a.BestTrack(key)
	if !sectors[0].Status.Has(diskmodel.StatusECCRecovered) {
		t.Fatalf("bad-data sector was not upgraded by a smaller ECC span recovery: %+v", sectors)
	}

	// A further retry with a *larger* ECC span must not regress it.
	worseRecovered := diskmodel.SectorOutcome{ObservedSector: 1, Status: diskmodel.StatusECCRecovered, DataECCSpan: 7}
	a.AddPass(key, []diskmodel.SectorOutcome{worseRecovered}, diskmodel.BitStream{Words: []uint32{3}, NumBits: 32}, nil)
	sectors, _, _ = a.BestTrack(key)
	if sectors[0].DataECCSpan != 3 {
		t.Fatalf("a larger ECC span retry regressed the stored best: span=%d", sectors[0].DataECCSpan)
	}
}

func TestBestTrackPrefersPatchedWhenItScoresHigher(t *testing.T) {
	a := New()
	key := TrackKey{Cylinder: 0, Head: 0}

	// Pass 1: sector 1 good, sector 2 bad header.
	a.AddPass(key, []diskmodel.SectorOutcome{
		{ObservedSector: 1, Status: diskmodel.StatusHeaderFound},
		{ObservedSector: 2, Status: diskmodel.StatusBadHeader},
	}, diskmodel.BitStream{Words: []uint32{1}, NumBits: 32}, nil)

	// Pass 2: sector 1 bad header, sector 2 good. Neither single pass
	// has both sectors good, but the patched per-sector-best does.
	a.AddPass(key, []diskmodel.SectorOutcome{
		{ObservedSector: 1, Status: diskmodel.StatusBadHeader},
		{ObservedSector: 2, Status: diskmodel.StatusHeaderFound},
	}, diskmodel.BitStream{Words: []uint32{2}, NumBits: 32}, nil)

	sectors, _, usePatched := a.BestTrack(key)
	if !usePatched {
		t.Fatal("expected patched track to score higher than either single pass")
	}
	for _, s := range sectors {
		if s.Status.Has(diskmodel.StatusBadHeader) {
			t.Fatalf("patched track still carries a bad sector: %+v", s)
		}
	}
}

func TestResolveAlternate(t *testing.T) {
	a := New()
	key := TrackKey{Cylinder: 0, Head: 0}
	bad := diskmodel.CylHeadSector{Cylinder: 5, Head: 0, Sector: 3}
	good := diskmodel.CylHeadSector{Cylinder: 600, Head: 0, Sector: 3}

	a.AddPass(key, nil, diskmodel.BitStream{Words: []uint32{1}, NumBits: 32}, map[diskmodel.CylHeadSector]diskmodel.CylHeadSector{bad: good})

	resolved, ok := a.ResolveAlternate(bad)
	if !ok || resolved != good {
		t.Fatalf("ResolveAlternate(%v) = %v, %v; want %v, true", bad, resolved, ok, good)
	}
}

func TestPassCountAndTracks(t *testing.T) {
	a := New()
	key := TrackKey{Cylinder: 1, Head: 0}
	if a.PassCount(key) != 0 {
		t.Fatal("PassCount of an unseen track should be 0")
	}
	a.AddPass(key, nil, diskmodel.BitStream{Words: []uint32{1}, NumBits: 32}, nil)
	a.AddPass(key, nil, diskmodel.BitStream{Words: []uint32{2}, NumBits: 32}, nil)
	if a.PassCount(key) != 2 {
		t.Errorf("PassCount = %d, want 2", a.PassCount(key))
	}
	if len(a.Tracks()) != 1 {
		t.Errorf("Tracks() = %v, want 1 entry", a.Tracks())
	}
}
