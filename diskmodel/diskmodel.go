// Package diskmodel holds the data types shared across the decode/encode
// pipeline: deltas and delta-tracks, the bit-cell stream, sector outcomes
// and drive parameters (spec §3). Nothing here performs I/O or decoding;
// it is the vocabulary every other package speaks.
package diskmodel

// ReferenceClockHz is the fixed reference clock every Delta is counted
// against: 200 MHz, 5 ns/tick (spec §3, §6).
const ReferenceClockHz = 200_000_000

// ClocksToNs is the single tick-to-nanosecond conversion constant named
// in spec §6.
const ClocksToNs = 5

// TicksToNs converts a count of 200 MHz reference-clock ticks to
// nanoseconds.
func TicksToNs(ticks uint64) uint64 { return ticks * ClocksToNs }

// NsToTicks converts nanoseconds to a count of 200 MHz reference-clock
// ticks, truncating any remainder below one tick.
func NsToTicks(ns uint64) uint64 { return ns / ClocksToNs }

// Delta is the number of 200 MHz reference-clock ticks between two
// consecutive magnetic transitions. Zero is never a valid delta.
type Delta uint32

// DeltaTrack is a finite ordered sequence of deltas covering at least one
// disk revolution, tagged with the cylinder/head it was captured from.
type DeltaTrack struct {
	Cylinder int
	Head     int
	Deltas   []Delta
}

// SumTicks returns the sum of all deltas in the track, in reference-clock
// ticks. A well-formed track's SumTicks is approximately
// (60/RPM)*200e6, modulo jitter (spec §3 invariant).
func (t DeltaTrack) SumTicks() uint64 {
	var sum uint64
	for _, d := range t.Deltas {
		sum += uint64(d)
	}
	return sum
}

// BitStream is a logical ordered sequence of MFM bit-cells (clock and
// data bits interleaved), packed MSB-first into 32-bit words as spec §3
// describes. Marker carries the bit-cell's tick offset from track start,
// to aid round-tripping back into deltas.
type BitStream struct {
	Words   []uint32
	NumBits int // number of valid bits; last word may be partially filled
	Marker  []TickMark
}

// TickMark records the tick offset of a notable bit position (typically
// a sync mark), so a bit-stream can be converted back to deltas without
// losing timing alignment.
type TickMark struct {
	BitPos int
	Ticks  uint64
}

// Bit returns the bit at position i (0 = MSB of Words[0]).
func (b BitStream) Bit(i int) int {
	word := b.Words[i/32]
	shift := 31 - (i % 32)
	return int((word >> shift) & 1)
}

// StatusFlags is a bitset describing the outcome of decoding one sector.
type StatusFlags uint32

const (
	StatusHeaderFound StatusFlags = 1 << iota
	StatusBadHeader
	StatusBadData
	StatusECCRecovered
	StatusZeroCRCAmbiguous
	StatusWrongCylinder
	StatusSpareOrBad
	StatusAlternateAssigned
	StatusSectorNotWritten
)

// Unrecovered reports whether the sector status represents data the
// caller cannot trust: a bad header or bad data that isn't explained by
// the sector being an intentional spare/bad placeholder (spec §3).
func (s StatusFlags) Unrecovered() bool {
	bad := s&(StatusBadHeader|StatusBadData) != 0
	return bad && s&StatusSpareOrBad == 0
}

func (s StatusFlags) Has(flag StatusFlags) bool { return s&flag != 0 }

// SectorOutcome is the per-sector result of framing and decoding one
// sector (spec §3).
type SectorOutcome struct {
	ExpectedCylinder, ExpectedHead, ExpectedSector int
	ObservedCylinder, ObservedHead, ObservedSector int
	LBA                                            int64
	HasLBA                                         bool
	Status                                         StatusFlags
	HeaderECCSpan                                  int
	DataECCSpan                                    int
	LastStatus                                     StatusFlags // for retry comparisons, spec §4.7
	Data                                           []byte
	Metadata                                       []byte
}

// DriveParams is the mutable configuration shaping one decode/encode run
// (spec §3). The analyzer neither reads nor updates it: analyzer.Analyze
// reports the discovered profile in its Result instead.
type DriveParams struct {
	Cylinders      int
	Heads          int
	SectorSize     int
	SectorsPerTrack int
	ProfileName    string
	SampleRateHz   uint64
	StartTimeNs    uint64
	// StartTimeFromFile records whether StartTimeNs came from a TRAN/EMU
	// file header. Nothing in this module reads it, and the CLI has no
	// --begin_time flag that could override a file's start time.
	StartTimeFromFile bool
	MarkBad           []CylHeadSector
	Stats             RunStats
}

// CylHeadSector addresses one sector by physical geometry.
type CylHeadSector struct {
	Cylinder, Head, Sector int
}

// RunStats accumulates per-run counters, owned exclusively by the current
// worker (spec §5 "Shared resources").
type RunStats struct {
	SectorsOK           int
	SectorsECCRecovered int
	SectorsBadHeader    int
	SectorsBadData      int
	TracksRead          int
}
