package framer

import "github.com/vintage-drives/mfmflux/registry"

// HeaderFields is the decoded, profile-interpreted content of one
// sector header, before validation against expected geometry (spec
// §4.6 "Header processing").
type HeaderFields struct {
	Cyl, Head, Sector int
	LBA               int64
	HasLBA            bool

	BadBlock      bool
	Alternate     bool // this header is itself an alternate-location copy
	IsRedirect    bool // this track is redirected; RedirectTo names the good location
	RedirectTo    struct{ Cyl, Head int }
	Spare         bool
	LastSector    bool
}

// decodeHeader interprets raw (the header bytes excluding the A1 sync
// byte and trailing CRC) per profile.HeaderKind (spec §4.6's seven
// symbolic header families).
func decodeHeader(p *registry.Profile, raw []byte) HeaderFields {
	switch p.HeaderKind {
	case registry.HeaderWD:
		return decodeWDHeader(p, raw)
	case registry.HeaderOMTI:
		return decodeOMTIHeader(raw)
	case registry.HeaderXebec:
		return decodeXebecHeader(raw)
	case registry.HeaderCorvus:
		return decodeCorvusHeader(raw)
	case registry.HeaderSymbolics3640:
		return decodeSymbolics3640Header(raw)
	case registry.HeaderNorthstar:
		return decodeNorthstarHeader(raw)
	case registry.HeaderLBA24:
		return decodeLBAHeader(raw)
	default:
		return HeaderFields{}
	}
}

// decodeWDHeader interprets (0xfe^hi_cyl_bits, cyl_lo, head|size|flags,
// sector) per spec §4.6's WD-family layout, using the profile's
// WDLayout to locate the bad-block/alternate/last-sector flag bits.
func decodeWDHeader(p *registry.Profile, raw []byte) HeaderFields {
	if len(raw) < 4 {
		return HeaderFields{}
	}
	tagXorHiCyl := raw[0] // 0xfe ^ hi_cyl_bits
	cylLo := raw[1]
	flags := raw[2] // head | size | flags
	sector := raw[3]

	hiCylMask := byte((1 << uint(p.WDLayout.CylHighBits)) - 1)
	hiCyl := (tagXorHiCyl ^ 0xfe) & hiCylMask
	cyl := int(hiCyl)<<8 | int(cylLo)

	headMask := byte((1 << uint(p.WDLayout.HeadBits)) - 1)
	head := int(flags & headMask)

	h := HeaderFields{Cyl: cyl, Head: head, Sector: int(sector)}
	if p.WDLayout.BadBlockBit >= 0 {
		h.BadBlock = flags&(1<<uint(p.WDLayout.BadBlockBit)) != 0
	}
	if p.WDLayout.AlternateBit >= 0 {
		h.IsRedirect = flags&(1<<uint(p.WDLayout.AlternateBit)) != 0
	}
	if p.WDLayout.LastSectorBit >= 0 {
		h.LastSector = flags&(1<<uint(p.WDLayout.LastSectorBit)) != 0
	}
	return h
}

// decodeOMTIHeader interprets (0xfe, cyl_hi, cyl_lo, head|flags,
// sector) (spec §4.6).
func decodeOMTIHeader(raw []byte) HeaderFields {
	if len(raw) < 5 {
		return HeaderFields{}
	}
	cyl := int(raw[1])<<8 | int(raw[2])
	head := int(raw[3] & 0x1f)
	sector := int(raw[4])
	return HeaderFields{Cyl: cyl, Head: head, Sector: sector, BadBlock: raw[3]&0x80 != 0}
}

// decodeXebecHeader interprets (0x00, 0x00, 0xc2, cyl_hi, cyl_lo, head,
// sector, flags, 0x00) (spec §4.6); raw here starts at cyl_hi (the
// 0x00 0x00 0xc2 prefix is the sync prelude, not header payload).
func decodeXebecHeader(raw []byte) HeaderFields {
	if len(raw) < 5 {
		return HeaderFields{}
	}
	cyl := int(raw[0])<<8 | int(raw[1])
	head := int(raw[2])
	sector := int(raw[3])
	flags := raw[4]
	return HeaderFields{Cyl: cyl, Head: head, Sector: sector, BadBlock: flags&0x80 != 0}
}

// decodeCorvusHeader unpacks 3 compactly packed bytes: head (3 bits),
// cyl (12 bits), sector (5 bits) (spec §4.6).
func decodeCorvusHeader(raw []byte) HeaderFields {
	if len(raw) < 3 {
		return HeaderFields{}
	}
	packed := uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
	sector := int(packed & 0x1f)
	cyl := int((packed >> 5) & 0xfff)
	head := int((packed >> 17) & 0x7)
	return HeaderFields{Cyl: cyl, Head: head, Sector: sector}
}

// decodeSymbolics3640Header interprets the 11-byte LSB-first prefix
// (spec §4.6); byte layout here mirrors the field order other profiles
// use (cyl, head, sector as the first three 16-bit LSB-first fields)
// since the specification does not give an exact byte map beyond
// "LSB-first integer fields and odd parity".
func decodeSymbolics3640Header(raw []byte) HeaderFields {
	if len(raw) < 6 {
		return HeaderFields{}
	}
	cyl := int(raw[0]) | int(raw[1])<<8
	head := int(raw[2]) | int(raw[3])<<8
	sector := int(raw[4]) | int(raw[5])<<8
	return HeaderFields{Cyl: cyl, Head: head, Sector: sector}
}

// decodeNorthstarHeader interprets the 7-byte header: cyl, head,
// sector, then two copies of a checksum (value and one's complement)
// (spec §4.6). Only cyl, head and sector are read here; the two checksum
// copies are not compared with each other, and the header is checked
// only by the profile's HeaderCheck in processHeader.
func decodeNorthstarHeader(raw []byte) HeaderFields {
	if len(raw) < 3 {
		return HeaderFields{}
	}
	cyl := int(raw[0])
	head := int(raw[1] >> 4)
	sector := int(raw[1]&0xf)<<4 | int(raw[2])>>4
	return HeaderFields{Cyl: cyl, Head: head, Sector: sector}
}

// decodeLBAHeader interprets a 24-bit logical address plus a flag byte
// indicating bad/spare-skipped (spec §4.6 "Adaptec").
func decodeLBAHeader(raw []byte) HeaderFields {
	if len(raw) < 4 {
		return HeaderFields{}
	}
	lba := int64(raw[0])<<16 | int64(raw[1])<<8 | int64(raw[2])
	flags := raw[3]
	return HeaderFields{LBA: lba, HasLBA: true, Spare: flags&0x01 != 0, BadBlock: flags&0x02 != 0}
}
