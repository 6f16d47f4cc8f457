// Package registry holds the controller profile table: an immutable,
// process-static description of every disk-controller sector layout the
// rest of the pipeline knows how to decode or encode (spec §3, §4.3).
// Profiles are declarative data, never behavior; the framer and encoder
// interpret them.
package registry

import "fmt"

// AnalyzeMode says how the format analyzer treats a profile during
// brute-force search (spec §4.8).
type AnalyzeMode int

const (
	// AnalyzeSearch exhausts the polynomial/init/sector-size Cartesian
	// product against this profile.
	AnalyzeSearch AnalyzeMode = iota
	// AnalyzeModel decodes a whole track under this profile only and
	// scores header/data CRC hit rate, without varying parameters.
	AnalyzeModel
)

// AddressingMode is the profile's sector-addressing scheme.
type AddressingMode int

const (
	AddressCHS AddressingMode = iota
	AddressLBA
	AddressNone
)

// CheckKind names which check-code family a header or data region uses
// (spec §3).
type CheckKind int

const (
	CheckNone CheckKind = iota
	CheckCRC
	CheckChecksum
	CheckParity
	CheckXOR16
)

// HeaderKind names the symbolic per-family header decode routine a
// profile uses (spec §4.6). The framer dispatches on this instead of a
// per-controller switch ladder.
type HeaderKind int

const (
	HeaderWD HeaderKind = iota
	HeaderOMTI
	HeaderXebec
	HeaderCorvus
	HeaderSymbolics3640
	HeaderNorthstar
	HeaderLBA24
)

// CheckParams names one check-code configuration: which polynomial (or
// checksum/parity width) and initial value to use, and the maximum burst
// span ECC will attempt to correct.
type CheckParams struct {
	Kind    CheckKind
	Poly    uint64 // for CheckCRC: the polynomial; unused otherwise
	Length  int    // bit width, 1..64
	Init    uint64
	ECCSpan int // max correctable burst length in bits; 0 disables ECC
}

// WDHeaderLayout carries the bit-placement details that vary across
// WD-family controllers (spec §4.6: "exact cyl-high bit placement,
// head/size/flag bit positions, and bad-block flag vary per profile").
type WDHeaderLayout struct {
	CylHighBits   int // number of high cylinder bits folded into the flag byte
	HeadBits      int
	SizeCodeBits  int
	BadBlockBit   int // bit position of the bad-block flag, -1 if unused
	AlternateBit  int // bit position of the "is alternate" flag, -1 if unused
	LastSectorBit int // bit position of the last-sector marker, -1 if unused
}

// Profile is one controller's complete, immutable on-media format
// description (spec §3 "Controller Profile (Registry entry)").
type Profile struct {
	Name string

	BitCellClockHz  uint64
	StartTimeNs     uint64

	// PolyRange/InitRange index into the shared CRCPolynomials/InitValues
	// tables (spec §4.3): [lo, hi) half-open ranges the analyzer will try.
	// Ignored when Analyze == AnalyzeModel.
	HeaderPolyRange [2]int
	DataPolyRange   [2]int
	InitRange       [2]int

	Addressing AddressingMode

	HeaderBytes        int
	DataHeaderBytes    int
	HeaderCRCIgnore    int
	DataCRCIgnore      int
	DataTrailerBytes   int
	MetadataBytes      int
	SeparateData       bool
	CopyExtra          int

	HeaderCheck CheckParams
	DataCheck   CheckParams

	SectorSize       int
	SectorsPerTrack  int
	FirstSectorNum   int
	TrackBitWordCount int

	HeaderKind HeaderKind
	WDLayout   WDHeaderLayout // valid only when HeaderKind == HeaderWD

	RequiredZeroRun int // minimum zero-bit run preceding a sync candidate (spec §4.6)

	// ReverseDataBits marks controllers (spec §4.6 "special cases") that
	// write sector bytes LSB-first; the framer reverses each byte before
	// handing it to the writer.
	ReverseDataBits bool

	// HasAlternateTracking marks controllers (Seagate ST11M, iSBC 215,
	// Shugart 1610, OMTI 5510) that redirect a track to an alternate
	// location; the framer records the mapping for the aggregator.
	HasAlternateTracking bool

	// NoDataMark marks controllers (Symbolics 3640) with no A1 mark in
	// the data region; resync happens on a single one-bit after a zero
	// run instead.
	NoDataMark bool

	// Layout is the track-layout template used by the encoder (and, for
	// profiles with a non-null layout, available to a future generalized
	// decoder). Nil means "encoder not supported" (spec §3).
	Layout *TrackNode

	Analyze AnalyzeMode
}

// Shared candidate tables the analyzer searches (spec §4.3).
var (
	// CRCPolynomials is the nine-entry candidate CRC polynomial table
	// profiles index into via Profile.HeaderPolyRange/DataPolyRange. It
	// has no entries for checksum or parity widths.
	CRCPolynomials = []uint64{
		0x00a00805,
		0x1021,
		0x8005,
		0x140a0445,
		0x0104c981,
		0x24409,
		0x3e4012,
		0x41044185,
		0x10210191,
	}

	// InitValues is the candidate initial-value table.
	InitValues = []uint64{
		0x0000000000000000,
		0xffffffffffffffff,
		0x0000000000000001,
	}

	// SectorSizes is the ascending candidate sector-size table the
	// analyzer tries during search-mode analysis.
	SectorSizes = []int{128, 256, 512, 524, 532, 1024, 1160, 1164, 2048, 4096, 10240}

	// LBASectorCounts is the candidate sectors-per-track table for
	// LBA-addressed profiles.
	LBASectorCounts = []int{17, 18, 32, 33}
)

var byName = map[string]*Profile{}

// Register adds a profile to the global registry. Called only from this
// package's init-time table construction; the registry is read-only
// after initialization (spec §4.7 "Shared resources").
func register(p *Profile) {
	if _, exists := byName[p.Name]; exists {
		panic(fmt.Sprintf("registry: duplicate profile name %q", p.Name))
	}
	byName[p.Name] = p
}

// Lookup returns the named profile (case-insensitive per spec §4.9
// "Controller selection"), or ok=false if no such profile is registered.
func Lookup(name string) (*Profile, bool) {
	p, ok := byName[foldName(name)]
	if ok {
		return p, true
	}
	// case-insensitive fallback
	for k, v := range byName {
		if foldName(k) == foldName(name) {
			return v, true
		}
	}
	return nil, false
}

// Names returns every registered profile's canonical name, in no
// particular order; the analyze and info subcommands iterate it.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	return names
}

func foldName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
