// Package encoder implements the track encoder (spec §4.9): given a
// profile with a non-null track-layout template, a sector image, and
// drive parameters, it walks the template to build a complete track
// byte buffer, computes and writes every check-code field, and
// MFM-encodes the result into a bit stream ready to be written to an
// EMU file.
package encoder

import (
	"fmt"

	"github.com/vintage-drives/mfmflux/checkcode"
	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/mfm"
	"github.com/vintage-drives/mfmflux/registry"
)

// Params carries the per-track inputs the template interpreter needs
// beyond the profile itself (spec §4.9).
type Params struct {
	Cylinder, Head int

	// Image is the full extract-file sector image this track's data is
	// read from; sectorOffset below computes the byte offset of one
	// sector within it.
	Image []byte
	// Metadata is the companion extract-metadata-file image, used only
	// by profiles with MetadataBytes > 0.
	Metadata []byte

	Heads, SectorsPerTrack int

	// SectorInterleave implements spec §4.9's "next =
	// (current + sector_interleave) mod sectors_per_track" ordering;
	// StartSector is this track's starting slot, the slot of the first
	// sector emitted. Any per-track advance of it is up to the caller.
	SectorInterleave, StartSector int

	// MarkBad names (cylinder, head, sector) triples whose data CRC
	// should be deliberately inverted so a decoder reports BAD-DATA
	// (spec §4.9 "mark-bad support").
	MarkBad map[diskmodel.CylHeadSector]bool
}

// sectorOffset computes a sector's byte offset within a CHS-addressed
// extract image (spec §6 "Extract file").
func sectorOffset(p *registry.Profile, heads, cyl, head, sector int) int {
	return ((cyl*heads+head)*p.SectorsPerTrack + (sector - p.FirstSectorNum)) * p.SectorSize
}

// sectorSequencer implements spec §4.9's interleaved sector ordering:
// "next = (current + sector_interleave) mod sectors_per_track, skipping
// already-used sectors".
type sectorSequencer struct {
	n, interleave, firstSectorNum, current int
	used                                   []bool
}

func newSectorSequencer(n, interleave, firstSectorNum, startSlot int) *sectorSequencer {
	// current starts one step back so that the first Next lands on startSlot.
	return &sectorSequencer{n: n, interleave: interleave, firstSectorNum: firstSectorNum, current: startSlot - interleave, used: make([]bool, n)}
}

// Next returns the next logical sector number (slot + firstSectorNum).
func (s *sectorSequencer) Next() int {
	candidate := (s.current + s.interleave) % s.n
	for s.used[candidate] {
		candidate = (candidate + 1) % s.n
	}
	s.used[candidate] = true
	s.current = candidate
	return candidate + s.firstSectorNum
}

// specialPosition records a byte offset in the track buffer that must
// receive a literal missing-clock sync pattern instead of a normal MFM
// encoding (spec §4.9 step 2 "special-positions list").
type specialPosition struct {
	offset  int
	pattern uint16
}

// builder accumulates a track's byte buffer while walking the
// track-layout template.
type builder struct {
	profile  *registry.Profile
	params   Params
	buf      []byte
	specials []specialPosition

	crcStart int // byte offset where the current MARK-CRC-START was recorded

	cyl, head, sector int
	badSector         bool
}

func (b *builder) emit(by byte) int {
	b.buf = append(b.buf, by)
	return len(b.buf) - 1
}

func (b *builder) emitN(n int, by byte) {
	for i := 0; i < n; i++ {
		b.emit(by)
	}
}

// EncodeTrack renders one complete track for profile p using params,
// returning its MFM bit-cell representation (spec §4.9 steps 1-4).
func EncodeTrack(p *registry.Profile, params Params) (diskmodel.BitStream, error) {
	if p.Layout == nil {
		return diskmodel.BitStream{}, fmt.Errorf("encoder: profile %q has no track-layout template", p.Name)
	}
	seq := newSectorSequencer(params.SectorsPerTrack, params.SectorInterleave, p.FirstSectorNum, params.StartSector)
	b := &builder{profile: p, params: params, cyl: params.Cylinder, head: params.Head}

	if err := b.walk(p.Layout, seq); err != nil {
		return diskmodel.BitStream{}, err
	}

	syncs := make([]mfm.SyncPattern, len(b.specials))
	for i, sp := range b.specials {
		syncs[i] = mfm.SyncPattern{Index: sp.offset, Pattern: sp.pattern}
	}
	return mfm.Encode(b.buf, syncs), nil
}

// walk interprets one track-layout node, recursing into its children.
// seq is consulted once per repeat of a sector-bearing NodeSub so each
// iteration picks up the next interleaved sector number.
func (b *builder) walk(node *registry.TrackNode, seq *sectorSequencer) error {
	switch node.Kind {
	case registry.NodeFill:
		b.emitN(node.FillCount, node.FillByte)
		return nil

	case registry.NodeSub:
		perSector := node.Count == b.params.SectorsPerTrack && node.Count > 1
		for i := 0; i < node.Count; i++ {
			if perSector {
				b.sector = seq.Next()
				b.badSector = b.params.MarkBad[diskmodel.CylHeadSector{Cylinder: b.cyl, Head: b.head, Sector: b.sector}]
			}
			for _, child := range node.Children {
				if err := b.walk(child, seq); err != nil {
					return err
				}
			}
		}
		return nil

	case registry.NodeField:
		return b.walkField(node)
	}
	return fmt.Errorf("encoder: unknown track-node kind %v", node.Kind)
}

func (b *builder) walkField(node *registry.TrackNode) error {
	for _, f := range node.Fields {
		if err := b.renderField(f); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) renderField(f *registry.FieldNode) error {
	switch f.Type {
	case registry.FieldFill:
		b.emitN(f.LengthBytes, byte(f.Value))

	case registry.FieldA1Sync:
		off := b.emit(0xa1)
		b.specials = append(b.specials, specialPosition{off, mfm.SyncA1})

	case registry.FieldC0Sync:
		off := b.emit(0xc0)
		b.specials = append(b.specials, specialPosition{off, mfm.SyncC0})

	case registry.FieldCyl:
		b.emitPacked(f, uint64(b.cyl))

	case registry.FieldHead:
		b.emitPacked(f, uint64(b.head))

	case registry.FieldSector:
		b.emitPacked(f, uint64(b.sector))

	case registry.FieldLBA:
		lba := sectorOffset(b.profile, b.params.Heads, b.cyl, b.head, b.sector) / b.profile.SectorSize
		b.emitPacked(f, uint64(lba))

	case registry.FieldHeaderCRC:
		b.emitCheck(f, b.profile.HeaderCheck, false)

	case registry.FieldDataCRC:
		b.emitCheck(f, b.profile.DataCheck, b.badSector)

	case registry.FieldSectorData:
		off := sectorOffset(b.profile, b.params.Heads, b.cyl, b.head, b.sector)
		b.emitSlice(b.params.Image, off, f.LengthBytes)

	case registry.FieldSectorMetadata:
		off := (b.sector - b.profile.FirstSectorNum) * b.profile.MetadataBytes
		b.emitSlice(b.params.Metadata, off, f.LengthBytes)

	case registry.FieldMarkCRCStart:
		b.crcStart = len(b.buf)

	case registry.FieldMarkCRCEnd:
		// No buffer effect; the matching FieldHeaderCRC/FieldDataCRC
		// already consumed crcStart when it ran.

	case registry.FieldNextSector, registry.FieldBadSector:
		// Not produced by any registered layout template yet; reserved
		// for profiles whose templates declare an explicit bad-sector
		// flag field distinct from the data-CRC inversion this encoder
		// already performs (spec §4.9 "mark-bad support").

	default:
		return fmt.Errorf("encoder: unknown field kind %v", f.Type)
	}
	return nil
}

// emitSlice copies length bytes from src at offset into the track
// buffer, zero-filling past the end of src.
func (b *builder) emitSlice(src []byte, offset, length int) {
	for i := 0; i < length; i++ {
		pos := offset + i
		var by byte
		if pos >= 0 && pos < len(src) {
			by = src[pos]
		}
		b.emit(by)
	}
}

// emitPacked writes value into f.LengthBytes bytes (or, when f.Bits is
// set, into the declared disjoint bit ranges within the enclosing
// field) honoring f.Op (spec §3 "bit-list unpacking" / "op semantics").
// Fields in the registered templates all use whole-byte placement
// (f.Bits is empty); the bit-range path is implemented for profiles
// whose templates declare one.
func (b *builder) emitPacked(f *registry.FieldNode, value uint64) {
	if len(f.Bits) == 0 {
		for i := 0; i < f.LengthBytes; i++ {
			shift := uint(8 * (f.LengthBytes - 1 - i))
			b.emit(applyOp(f.Op, byte(value>>shift)))
		}
		return
	}
	packed := make([]byte, f.LengthBytes)
	for _, r := range f.Bits {
		for i := 0; i < r.Length; i++ {
			bit := (value >> uint(r.Length-1-i)) & 1
			absBit := r.StartBit + i
			byteIdx := absBit / 8
			bitIdx := uint(7 - absBit%8)
			if byteIdx < len(packed) {
				packed[byteIdx] |= byte(bit << bitIdx)
			}
		}
	}
	for _, by := range packed {
		b.emit(applyOp(f.Op, by))
	}
}

func applyOp(op registry.FieldOp, by byte) byte {
	switch op {
	case registry.OpXOR:
		return by ^ 0xff
	case registry.OpReverse:
		return reverseByte(by)
	case registry.OpReverseXOR:
		return reverseByte(by) ^ 0xff
	default:
		return by
	}
}

func reverseByte(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r = r<<1 | (b & 1)
		b >>= 1
	}
	return r
}

// emitCheck computes params over [b.crcStart, len(b.buf)) and writes the
// result MSB-first into a check-code-sized field, inverting it first
// when invert is true (spec §4.9 step 3, and "mark-bad support").
func (b *builder) emitCheck(f *registry.FieldNode, params registry.CheckParams, invert bool) {
	region := b.buf[b.crcStart:]
	var value uint64
	switch params.Kind {
	case registry.CheckCRC:
		value = checkcode.CRC64(region, checkcode.Poly{Value: params.Poly, Length: params.Length, Init: params.Init, ECCMaxSpan: params.ECCSpan})
	case registry.CheckChecksum:
		value = checkcode.Checksum64(region, checkcode.Poly{Length: params.Length, Init: params.Init})
	case registry.CheckParity:
		value = uint64(checkcode.Parity64(region))
	case registry.CheckXOR16:
		value = uint64(checkcode.XOR16(region))
	}
	if invert {
		value = ^value
	}
	for i := 0; i < f.LengthBytes; i++ {
		shift := uint(8 * (f.LengthBytes - 1 - i))
		b.emit(applyOp(f.Op, byte(value>>shift)))
	}
}
