// Package aggregator maintains the best observed sector status across
// repeated reads of the same track (spec §4.7), and selects which pass's
// bit-level track to keep for re-emission, reporting when a track patched
// together from the per-sector best outcomes would score higher overall.
package aggregator

import "github.com/vintage-drives/mfmflux/diskmodel"

// TrackKey addresses one physical track, independent of sector.
type TrackKey struct {
	Cylinder, Head int
}

// trackRecord holds the best-known outcome per logical sector for one
// track, plus the bit-level data needed to re-emit it.
type trackRecord struct {
	bestBySector map[int]diskmodel.SectorOutcome
	bestBits     diskmodel.BitStream
	bestScore    int
	passCount    int
}

// Aggregator accumulates sector outcomes across retries of the same
// tracks, owned exclusively by the caller driving the decode run (spec
// §5 "global mutable state" -> explicit per-run value, not a package
// global).
type Aggregator struct {
	tracks map[TrackKey]*trackRecord

	// AlternateMap mirrors the framer's per-track redirect discoveries,
	// accumulated across every track processed so the extract writer can
	// relocate bad-track data from its good alternate (spec §4.7).
	AlternateMap map[diskmodel.CylHeadSector]diskmodel.CylHeadSector
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		tracks:       make(map[TrackKey]*trackRecord),
		AlternateMap: make(map[diskmodel.CylHeadSector]diskmodel.CylHeadSector),
	}
}

// sectorScore implements spec §4.7's scoring table: 10 for OK, 9 for
// ECC-recovered, 1 for BAD-DATA, 0 for BAD-HEADER.
func sectorScore(s diskmodel.SectorOutcome) int {
	switch {
	case s.Status.Has(diskmodel.StatusBadHeader):
		return 0
	case s.Status.Has(diskmodel.StatusBadData):
		return 1
	case s.Status.Has(diskmodel.StatusECCRecovered):
		return 9
	default:
		return 10
	}
}

// accepts reports whether candidate should replace prior per spec
// §4.7's upgrade rule: the prior sector was BAD-HEADER, or the prior was
// BAD-DATA and candidate is OK with a strictly smaller ECC span. A
// BAD-DATA sector whose data could not be corrected records a span of 0,
// which counts as larger than any correction.
func accepts(prior, candidate diskmodel.SectorOutcome) bool {
	if prior.Status.Has(diskmodel.StatusBadHeader) {
		return true
	}
	if prior.Status.Has(diskmodel.StatusBadData) {
		okNow := !candidate.Status.Has(diskmodel.StatusBadHeader) && !candidate.Status.Has(diskmodel.StatusBadData)
		return okNow && (prior.DataECCSpan == 0 || candidate.DataECCSpan < prior.DataECCSpan)
	}
	return false
}

// AddPass folds one decode pass over a track (one revolution's worth of
// sector outcomes, plus the bit stream that produced them) into the
// aggregator's running best for that (cylinder, head).
func (a *Aggregator) AddPass(key TrackKey, outcomes []diskmodel.SectorOutcome, bits diskmodel.BitStream, alternates map[diskmodel.CylHeadSector]diskmodel.CylHeadSector) {
	rec, ok := a.tracks[key]
	if !ok {
		rec = &trackRecord{bestBySector: make(map[int]diskmodel.SectorOutcome)}
		a.tracks[key] = rec
	}
	rec.passCount++

	passScore := 0
	for _, o := range outcomes {
		passScore += sectorScore(o)
		prior, exists := rec.bestBySector[o.ObservedSector]
		if !exists || accepts(prior, o) {
			rec.bestBySector[o.ObservedSector] = o
		}
	}

	// The patched track (best-known sector outcomes so far) must score
	// at least as well as any single pass by construction; only replace
	// bestBits when this pass's raw score beats the stored best (spec
	// §4.7: "best single pass is preferred unless a patched track scores
	// strictly higher").
	if rec.bestBits.Words == nil || passScore > rec.bestScore {
		rec.bestBits = bits
		rec.bestScore = passScore
	}

	for bad, good := range alternates {
		a.AlternateMap[bad] = good
	}
}

// patchedScore sums sectorScore over the per-sector best-known outcomes
// recorded for a track.
func patchedScore(rec *trackRecord) int {
	total := 0
	for _, o := range rec.bestBySector {
		total += sectorScore(o)
	}
	return total
}

// BestTrack returns the sector outcomes and bit stream this aggregator
// would emit for key: the per-sector best-known outcomes always win for
// reporting purposes, while bits is the raw bit stream of whichever
// single pass scored highest. usePatched is true when the patched
// (per-sector-best) assembly scores strictly higher, in which case the
// caller should re-synthesize the track from sectors instead of reusing
// a single pass's bits (spec §4.7).
func (a *Aggregator) BestTrack(key TrackKey) (sectors []diskmodel.SectorOutcome, bits diskmodel.BitStream, usePatched bool) {
	rec, ok := a.tracks[key]
	if !ok {
		return nil, diskmodel.BitStream{}, false
	}
	for _, o := range rec.bestBySector {
		sectors = append(sectors, o)
	}
	usePatched = patchedScore(rec) > rec.bestScore
	return sectors, rec.bestBits, usePatched
}

// Tracks lists every (cylinder, head) this aggregator has seen at least
// one pass for.
func (a *Aggregator) Tracks() []TrackKey {
	keys := make([]TrackKey, 0, len(a.tracks))
	for k := range a.tracks {
		keys = append(keys, k)
	}
	return keys
}

// PassCount reports how many passes have been folded into key's record,
// 0 if key hasn't been seen.
func (a *Aggregator) PassCount(key TrackKey) int {
	rec, ok := a.tracks[key]
	if !ok {
		return 0
	}
	return rec.passCount
}

// ResolveAlternate follows a (bad cyl, bad head) -> (good cyl, good
// head) redirect for the given sector, returning the final location and
// whether a redirect applied (spec §4.7 alternate-track relocation).
func (a *Aggregator) ResolveAlternate(loc diskmodel.CylHeadSector) (diskmodel.CylHeadSector, bool) {
	good, ok := a.AlternateMap[loc]
	return good, ok
}
