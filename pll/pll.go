// Package pll converts flux-transition delta timings into an MFM
// bit-cell stream using a software phase-locked loop (spec §4.4).
package pll

import "github.com/vintage-drives/mfmflux/diskmodel"

// Type-II PLL filter coefficients, converted from continuous time by
// bilinear transformation and tuned empirically against real capture
// data (spec §4.4).
const (
	filterA = 0.034446428576716
	filterB = 0.034124999994713
)

// maxChunkBitCells bounds how many bit-cells a single delta may emit
// before the decoder force-flushes the run, so the raw-word shift
// register a caller folds bits into never silently overflows and loses
// the transition at the end of an abnormally long delta (spec §4.4
// "long deltas... must be processed in bounded chunks").
const maxChunkBitCells = 22

// Decoder is a streaming software PLL: feed it deltas in 200 MHz
// reference-clock ticks, one at a time, and it reports how many zero
// bit-cells preceded each transition.
type Decoder struct {
	nominal float64 // ideal bit-cell separation in ticks
	average float64 // "VCO" frequency: current estimate of bit-cell separation
	delay   float64 // filter state carried from the previous transition
	accum   float64 // clock-time accumulator
}

// NewDecoder creates a PLL decoder for a profile with the given nominal
// bit-cell clock rate. The average bit-cell separation starts at the
// nominal value (spec §4.4).
func NewDecoder(bitCellClockHz uint64) *Decoder {
	nominal := float64(diskmodel.ReferenceClockHz) / float64(bitCellClockHz)
	return &Decoder{nominal: nominal, average: nominal}
}

// filter implements the Type-II loop filter: out = (v+delay)*A -
// delay*B; delay is then replaced with v+delay (spec §4.4 step 3).
func (d *Decoder) filter(v float64) float64 {
	in := v + d.delay
	out := in*filterA - d.delay*filterB
	d.delay = in
	return out
}

// Run is one emitted unit of PLL output: zeros bit-cells decoded as 0,
// optionally followed by a single 1 bit at the transition the delta
// represents (spec §4.4 "Output").
type Run struct {
	Zeros int
	One   bool
}

// Feed processes one delta and returns the run(s) it produces. A delta
// longer than maxChunkBitCells worth of bit-cells is split into
// several zero-only runs (filter not updated, since no transition
// information is available mid-chunk) followed by one final run that
// carries the real transition and the filter update.
func (d *Decoder) Feed(delta diskmodel.Delta) []Run {
	remaining := float64(delta)
	var runs []Run
	for {
		chunkLimit := d.average * maxChunkBitCells
		if chunkLimit <= 0 || remaining <= chunkLimit {
			// The last bit-cell crossed is the transition itself.
			zeros := d.consume(remaining, true)
			if zeros > 0 {
				zeros--
			}
			runs = append(runs, Run{Zeros: zeros, One: true})
			return runs
		}
		runs = append(runs, Run{Zeros: d.consume(chunkLimit, false), One: false})
		remaining -= chunkLimit
	}
}

// consume advances the clock accumulator by ticks, counts how many
// whole bit-cells it crosses, and, if updateFilter is set, re-estimates
// the average bit-cell separation from the residual phase error (spec
// §4.4 steps 1-3).
func (d *Decoder) consume(ticks float64, updateFilter bool) int {
	d.accum += ticks
	zeros := 0
	for d.accum > d.average/2 {
		d.accum -= d.average
		zeros++
	}
	if updateFilter {
		d.average = d.nominal + d.filter(d.accum)
	}
	return zeros
}

// DecodeTrack folds every delta in track through the PLL and packs the
// resulting bit-cell runs into a diskmodel.BitStream, MSB-first, along
// with a TickMark at each transition so the bit position can be mapped
// back to a tick offset (spec §3 "Bit-cell stream").
func DecodeTrack(track diskmodel.DeltaTrack, bitCellClockHz uint64) diskmodel.BitStream {
	d := NewDecoder(bitCellClockHz)
	var words []uint32
	var marks []diskmodel.TickMark
	bitPos := 0
	var ticks uint64

	pushBit := func(b uint32) {
		wordIdx := bitPos / 32
		for wordIdx >= len(words) {
			words = append(words, 0)
		}
		shift := uint(31 - bitPos%32)
		words[wordIdx] |= b << shift
		bitPos++
	}

	for _, delta := range track.Deltas {
		ticks += uint64(delta)
		for _, run := range d.Feed(delta) {
			for i := 0; i < run.Zeros; i++ {
				pushBit(0)
			}
			if run.One {
				pushBit(1)
				marks = append(marks, diskmodel.TickMark{BitPos: bitPos - 1, Ticks: ticks})
			}
		}
	}

	return diskmodel.BitStream{Words: words, NumBits: bitPos, Marker: marks}
}
