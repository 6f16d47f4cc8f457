// Package analyzer implements the brute-force format analyzer (spec
// §4.8): given one or more sample tracks and nothing else, it estimates
// the bit-cell period, then searches the registry's profiles (exact
// match for model-specific profiles, Cartesian product of check-code
// parameters for general-purpose ones) until it finds a controller
// profile and check-code configuration that explains the track.
package analyzer

import (
	"math"
	"sort"

	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/framer"
	"github.com/vintage-drives/mfmflux/pll"
	"github.com/vintage-drives/mfmflux/registry"
)

// PeriodEstimate reports the dominant bit-cell period found in a delta
// histogram, and whether a third (RLL) peak was present (spec §4.8
// step 2).
type PeriodEstimate struct {
	PeriodNs float64
	RLL      bool
}

// EstimateBitCellPeriod buckets track's deltas into a coarse histogram
// and returns the two lowest-delta peaks' average spacing as the
// estimated bit-cell period, flagging RLL if a third, intermediate peak
// carries a significant fraction of the samples (spec §4.8 step 2:
// "estimate bit-cell period from the delta histogram's two lowest
// peaks... detect RLL via an intermediate peak").
func EstimateBitCellPeriod(track diskmodel.DeltaTrack) PeriodEstimate {
	if len(track.Deltas) == 0 {
		return PeriodEstimate{}
	}

	const bucketWidth = diskmodel.Delta(4) // ~20ns at 200MHz reference clock
	counts := make(map[diskmodel.Delta]int)
	for _, d := range track.Deltas {
		counts[d/bucketWidth] += 1
	}

	type peak struct {
		bucket diskmodel.Delta
		count  int
	}
	var peaks []peak
	for b, c := range counts {
		peaks = append(peaks, peak{b, c})
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].bucket < peaks[j].bucket })

	// Keep only buckets that are a local maximum relative to immediate
	// neighbors in bucket order, approximating "histogram peaks".
	var local []peak
	for i, p := range peaks {
		isPeak := true
		if i > 0 && peaks[i-1].count > p.count {
			isPeak = false
		}
		if i+1 < len(peaks) && peaks[i+1].count > p.count {
			isPeak = false
		}
		if isPeak && p.count > 0 {
			local = append(local, p)
		}
	}
	sort.Slice(local, func(i, j int) bool { return local[i].bucket < local[j].bucket })

	if len(local) == 0 {
		return PeriodEstimate{}
	}
	if len(local) == 1 {
		periodTicks := float64(local[0].bucket) * float64(bucketWidth)
		return PeriodEstimate{PeriodNs: float64(diskmodel.TicksToNs(uint64(periodTicks)))}
	}

	first, second := local[0], local[1]
	avgTicks := (float64(first.bucket) + float64(second.bucket)) / 2 * float64(bucketWidth)
	rll := len(local) >= 3
	return PeriodEstimate{PeriodNs: float64(diskmodel.TicksToNs(uint64(avgTicks))), RLL: rll}
}

// Match is the analyzer's report for one candidate profile and
// check-code parameter set (spec §4.8).
type Match struct {
	Profile     *registry.Profile
	HeaderCheck registry.CheckParams
	DataCheck   registry.CheckParams
	SectorSize  int
	GoodHeaders int
	GoodData    int
}

// Result is the outcome of a full analysis run: the best match, plus
// every other candidate that also satisfied the match threshold (spec
// §4.8: "reports matches with multiple candidates as serious errors but
// does not abort").
type Result struct {
	Best       *Match
	Candidates []*Match
}

// Ambiguous reports whether more than one profile matched.
func (r *Result) Ambiguous() bool { return len(r.Candidates) > 1 }

func headerGoodThreshold(sectorsPerTrack int) int {
	if sectorsPerTrack >= 64 {
		return 1
	}
	return 2
}

func dataGoodThreshold(sectorsPerTrack int) int {
	// ceil(num_sectors * 2/3), spec §4.8 step 3.
	return (sectorsPerTrack*2 + 2) / 3
}

// decodeUnderProfile runs the PLL and framer over track using p, and
// returns the resulting sector outcomes.
func decodeUnderProfile(p *registry.Profile, track diskmodel.DeltaTrack) []diskmodel.SectorOutcome {
	bits := pll.DecodeTrack(track, p.BitCellClockHz)
	f := framer.New(p, bits)
	outcomes, err := f.DecodeTrack(track.Cylinder, track.Head)
	if err != nil {
		return outcomes
	}
	return outcomes
}

func scoreOutcomes(outcomes []diskmodel.SectorOutcome) (goodHeaders, goodData int) {
	for _, o := range outcomes {
		if o.Status.Has(diskmodel.StatusHeaderFound) && !o.Status.Has(diskmodel.StatusBadHeader) {
			goodHeaders++
			if !o.Status.Has(diskmodel.StatusBadData) {
				goodData++
			}
		}
	}
	return
}

// AnalyzeModelProfile decodes track under p as-is (no parameter
// search), and reports whether enough headers and data CRCs came back
// good to call it a match (spec §4.8 step 3).
func AnalyzeModelProfile(p *registry.Profile, track diskmodel.DeltaTrack) (*Match, bool) {
	outcomes := decodeUnderProfile(p, track)
	goodHeaders, goodData := scoreOutcomes(outcomes)
	if goodHeaders >= headerGoodThreshold(p.SectorsPerTrack) && goodData >= dataGoodThreshold(p.SectorsPerTrack) {
		return &Match{Profile: p, HeaderCheck: p.HeaderCheck, DataCheck: p.DataCheck, SectorSize: p.SectorSize, GoodHeaders: goodHeaders, GoodData: goodData}, true
	}
	return nil, false
}

// withHeaderParams returns a shallow copy of p with its header check
// polynomial/init and sector size overridden, used while searching the
// Cartesian product (spec §4.8 step 4). init is masked to the header
// check's bit width, so the all-ones table entry becomes 0xffff for a
// 16-bit CRC.
func withHeaderParams(p registry.Profile, poly, init uint64, sectorSize int) *registry.Profile {
	p.HeaderCheck.Poly = poly
	if l := p.HeaderCheck.Length; l > 0 && l < 64 {
		init &= (uint64(1) << uint(l)) - 1
	}
	p.HeaderCheck.Init = init
	p.SectorSize = sectorSize
	return &p
}

// AnalyzeSearchProfile exhausts p's declared polynomial x init x
// sector-size Cartesian product, decoding track once per combination,
// and returns every combination meeting the good-header threshold,
// ranked best first: most good headers wins, ties broken by longer
// header byte count (spec §4.8 step 4: "prefer the set with the most
// good headers; on tie, prefer the longer header").
func AnalyzeSearchProfile(p *registry.Profile, track diskmodel.DeltaTrack) []*Match {
	var matches []*Match
	for pi := p.HeaderPolyRange[0]; pi < p.HeaderPolyRange[1] && pi < len(registry.CRCPolynomials); pi++ {
		for ii := p.InitRange[0]; ii < p.InitRange[1] && ii < len(registry.InitValues); ii++ {
			for _, size := range registry.SectorSizes {
				candidate := withHeaderParams(*p, registry.CRCPolynomials[pi], registry.InitValues[ii], size)
				outcomes := decodeUnderProfile(candidate, track)
				goodHeaders, goodData := scoreOutcomes(outcomes)
				threshold := headerGoodThreshold(candidate.SectorsPerTrack)
				if size >= 4096 {
					threshold = 1
				}
				if goodHeaders >= threshold {
					matches = append(matches, &Match{
						Profile: candidate, HeaderCheck: candidate.HeaderCheck, DataCheck: candidate.DataCheck,
						SectorSize: size, GoodHeaders: goodHeaders, GoodData: goodData,
					})
				}
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].GoodHeaders != matches[j].GoodHeaders {
			return matches[i].GoodHeaders > matches[j].GoodHeaders
		}
		return matches[i].Profile.HeaderBytes > matches[j].Profile.HeaderBytes
	})
	return matches
}

// refineDataParams runs a second Cartesian search over p.DataPolyRange x
// p.InitRange, holding the header profile fixed, to pick the data CRC
// configuration (spec §4.8 step 5). The sector size chosen by the header
// search is kept: sector sizes are not compared here, and good-data
// counts are not weighed against good-header counts. Among candidates
// with equal good-data counts the first in table order wins.
func refineDataParams(best *Match, track diskmodel.DeltaTrack) *Match {
	p := best.Profile
	type candidate struct {
		poly, init uint64
		goodData   int
	}
	var cands []candidate
	for pi := p.DataPolyRange[0]; pi < p.DataPolyRange[1] && pi < len(registry.CRCPolynomials); pi++ {
		for ii := p.InitRange[0]; ii < p.InitRange[1] && ii < len(registry.InitValues); ii++ {
			trial := *p
			trial.DataCheck.Poly = registry.CRCPolynomials[pi]
			trial.DataCheck.Init = registry.InitValues[ii]
			outcomes := decodeUnderProfile(&trial, track)
			_, goodData := scoreOutcomes(outcomes)
			cands = append(cands, candidate{registry.CRCPolynomials[pi], registry.InitValues[ii], goodData})
		}
	}
	if len(cands) == 0 {
		return best
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].goodData > cands[j].goodData })
	chosen := cands[0]
	refined := *best
	refined.DataCheck.Poly = chosen.poly
	refined.DataCheck.Init = chosen.init
	refined.GoodData = chosen.goodData
	return &refined
}

// Analyze runs the full brute-force procedure (spec §4.8 steps 3-5)
// against every registered profile, returning the best match and any
// other profiles that also satisfied the threshold.
func Analyze(track diskmodel.DeltaTrack, profiles []*registry.Profile) *Result {
	var all []*Match
	for _, p := range profiles {
		switch p.Analyze {
		case registry.AnalyzeModel:
			if m, ok := AnalyzeModelProfile(p, track); ok {
				all = append(all, m)
			}
		case registry.AnalyzeSearch:
			searchMatches := AnalyzeSearchProfile(p, track)
			if len(searchMatches) > 0 {
				all = append(all, refineDataParams(searchMatches[0], track))
			}
		}
	}
	if len(all) == 0 {
		return &Result{}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].GoodHeaders > all[j].GoodHeaders })
	return &Result{Best: all[0], Candidates: all}
}

// HeadCount steps heads 0..maxHeads-1 on cylinder 0, decoding each with
// readTrack and profile p, and returns one past the highest head that
// produced a plausible result: either any decoded LBA (its value is not
// range-checked), or a decoded header cylinder of 0, matching the
// track actually read (spec §4.8 step 6).
func HeadCount(p *registry.Profile, maxHeads int, readTrack func(cyl, head int) diskmodel.DeltaTrack) int {
	count := 0
	for head := 0; head < maxHeads; head++ {
		track := readTrack(0, head)
		outcomes := decodeUnderProfile(p, track)
		plausible := false
		for _, o := range outcomes {
			if o.Status.Has(diskmodel.StatusBadHeader) {
				continue
			}
			if o.HasLBA || o.ObservedCylinder == 0 {
				plausible = true
				break
			}
		}
		if !plausible {
			break
		}
		count = head + 1
	}
	return count
}

// CylinderCount steps cylinders upward (head 0) until two consecutive
// cylinders fail to decode any good header, returning one past the last
// cylinder that did (spec §4.8 step 6: "step cylinders until two
// consecutive unreadable tracks... to determine cylinder count").
func CylinderCount(p *registry.Profile, maxCylinders int, readTrack func(cyl, head int) diskmodel.DeltaTrack) int {
	lastGood := -1
	consecutiveBad := 0
	for cyl := 0; cyl < maxCylinders; cyl++ {
		track := readTrack(cyl, 0)
		outcomes := decodeUnderProfile(p, track)
		goodHeaders, _ := scoreOutcomes(outcomes)
		if goodHeaders > 0 {
			lastGood = cyl
			consecutiveBad = 0
		} else {
			consecutiveBad++
			if consecutiveBad >= 2 {
				break
			}
		}
	}
	return lastGood + 1
}

// SeekProber abstracts the hardware-specific fast-seek/slow-seek-back
// timing test (spec §4.8 step 7, "analyze_seek"); a capture adapter
// implements this against real drive hardware. The analyzer itself only
// interprets the reported timings.
type SeekProber interface {
	// BufferedSeek steps distance cylinders at the drive's fastest rate
	// and reports the elapsed time.
	BufferedSeek(distance int) (elapsedNs uint64, err error)
	// SlowSeekToZero steps back to track 0 one cylinder at a time and
	// reports whether the drive actually reached it.
	SlowSeekToZero() (reachedZero bool, err error)
}

// ProbeBufferedSeek runs the analyze_seek subtest: a fast buffered seek
// followed by a slow step-back to zero. BufferedSeeksSupported is true
// only if the drive actually lands on track 0 afterward.
func ProbeBufferedSeek(prober SeekProber, distance int) (bufferedSeeksSupported bool, elapsedNs uint64, err error) {
	elapsedNs, err = prober.BufferedSeek(distance)
	if err != nil {
		return false, 0, err
	}
	reachedZero, err := prober.SlowSeekToZero()
	if err != nil {
		return false, elapsedNs, err
	}
	return reachedZero, elapsedNs, nil
}

// PlausibleCellPeriod reports whether periodNs is within tolerance of
// either the standard ~200ns MFM cell or the ~231ns SA1000 variant (spec
// §4.8 step 2's sanity warning).
func PlausibleCellPeriod(periodNs float64) bool {
	const tolerance = 20.0
	return math.Abs(periodNs-200) < tolerance || math.Abs(periodNs-231) < tolerance
}
