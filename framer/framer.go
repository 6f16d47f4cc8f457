// Package framer implements the per-track sector framer (spec §4.6):
// a state machine, fed by the PLL-produced bit stream, that finds sync
// marks, extracts and interprets header and data fields, dispatches
// the profile's check code, and produces one diskmodel.SectorOutcome
// per sector found.
package framer

import (
	"github.com/vintage-drives/mfmflux/checkcode"
	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/mfm"
	"github.com/vintage-drives/mfmflux/registry"
)

// State names the framer's position in the per-track decode cycle
// (spec §4.6 state diagram).
type State int

const (
	StateMarkID State = iota
	StateMarkData
	StateHeaderSync
	StateDataSync
	StateProcessHeader
	StateProcessHeader2
	StateProcessData
)

// OutOfDataError reports that the bit stream ended before the framer
// finished decoding the sector it was in the middle of, along with the
// begin_time offset (in nanoseconds) a caller should retry with (spec
// §4.6 "Ran out of data").
type OutOfDataError struct {
	SectorIndex     int
	SuggestedBeginNs uint64
}

func (e *OutOfDataError) Error() string {
	return "framer: ran out of data before completing a sector"
}

// Framer decodes one track's bit stream against a single controller
// profile.
type Framer struct {
	profile *registry.Profile
	bits    diskmodel.BitStream

	pos int // next unread bit position

	shiftReg uint32
	zeroRun  int
	bitCount int

	// zeroRunHistory is a 16-deep ring buffer of zeroRun snapshots, used
	// by findSync to recover the zero-bit run that preceded the current
	// 16-bit sync candidate window rather than the run trailing off
	// inside the pattern itself.
	zeroRunHistory [syncWindowBits]int

	nextExpectedTick uint64 // "next expected header time", spec §4.6 gating

	// pendingOutcome carries a sector's header result across the
	// MARK_DATA/DATA_SYNC states into PROCESS_DATA.
	pendingOutcome *diskmodel.SectorOutcome

	// alternateMap records (bad cyl, bad head) -> (good cyl, good head)
	// mappings discovered via an alternate-track-redirect header flag
	// (spec §4.6 special cases).
	AlternateMap map[diskmodel.CylHeadSector]diskmodel.CylHeadSector
}

// New creates a framer for one track's bit stream, decoded against
// profile.
func New(profile *registry.Profile, bits diskmodel.BitStream) *Framer {
	return &Framer{
		profile:      profile,
		bits:         bits,
		AlternateMap: make(map[diskmodel.CylHeadSector]diskmodel.CylHeadSector),
	}
}

// nextRawBit consumes and returns the next bit, or ok=false at end of
// stream.
func (f *Framer) nextRawBit() (bit int, ok bool) {
	if f.pos >= f.bits.NumBits {
		return 0, false
	}
	bit = f.bits.Bit(f.pos)
	f.pos++
	return bit, true
}

// syncWindowBits is the width of a missing-clock sync pattern.
const syncWindowBits = 16

// findSync advances the bit stream until it sees the 16-bit missing
// clock sync pattern preceded by at least profile.RequiredZeroRun zero
// bits, or runs out of data (spec §4.6 "Sync search").
func (f *Framer) findSync(pattern uint16) bool {
	for {
		bit, ok := f.nextRawBit()
		if !ok {
			return false
		}
		f.shiftReg = f.shiftReg<<1 | uint32(bit)

		idx := f.bitCount % syncWindowBits
		priorZeroRun := f.zeroRunHistory[idx]
		f.zeroRunHistory[idx] = f.zeroRun

		if bit == 0 {
			f.zeroRun++
		} else {
			f.zeroRun = 0
		}
		f.bitCount++

		if f.bitCount >= syncWindowBits && uint16(f.shiftReg&0xffff) == pattern && priorZeroRun >= f.profile.RequiredZeroRun {
			return true
		}
	}
}

// readBytes decodes n bytes' worth of raw MFM bit cells from the
// current position.
func (f *Framer) readBytes(n int) ([]byte, bool) {
	need := n * 16
	if f.pos+need > f.bits.NumBits {
		return nil, false
	}
	words := make([]uint32, (need+31)/32)
	for i := 0; i < need; i++ {
		words[i/32] |= uint32(f.bits.Bit(f.pos+i)) << uint(31-i%32)
	}
	decoded := mfm.Decode(diskmodel.BitStream{Words: words, NumBits: need})
	f.pos += need
	return decoded, true
}

// tickAt reports the reference-clock tick offset of the last recorded
// TickMark at or before bitPos (0 when there is none); it does not
// interpolate between marks. Used to compute the "ran out of data"
// begin_time suggestion.
func (f *Framer) tickAt(bitPos int) uint64 {
	var last diskmodel.TickMark
	for _, m := range f.bits.Marker {
		if m.BitPos > bitPos {
			break
		}
		last = m
	}
	return last.Ticks
}

// runCheck evaluates params.Kind over data, which includes its captured
// trailing check bytes, and reports whether the check evaluates to zero.
// For a CRC with params.ECCSpan > 0 a non-zero residue is handed to ECC
// correction (which repairs data in place); correctedSpan is the span
// of that correction, 0 when none was applied.
func runCheck(data []byte, params registry.CheckParams) (zero bool, correctedSpan int) {
	switch params.Kind {
	case registry.CheckCRC:
		poly := checkcode.Poly{Value: params.Poly, Length: params.Length, Init: params.Init, ECCMaxSpan: params.ECCSpan}
		residue := checkcode.CRC64(data, poly)
		if residue == 0 {
			return true, 0
		}
		if params.ECCSpan > 0 {
			span := checkcode.ECC64(data, residue, poly)
			return span > 0, span
		}
		return false, 0
	case registry.CheckChecksum:
		poly := checkcode.Poly{Length: params.Length, Init: params.Init}
		return checkcode.Checksum64(data, poly) == 0, 0
	case registry.CheckParity:
		return checkcode.Parity64(data) == 0, 0
	case registry.CheckXOR16:
		return checkcode.XOR16(data) == 0, 0
	default:
		return true, 0
	}
}
