package framer

import "github.com/vintage-drives/mfmflux/diskmodel"

// DecodeTrack runs the framer's state machine over the whole bit
// stream once, returning one SectorOutcome per sector found (spec
// §4.6). expectedCyl/expectedHead are used to validate decoded headers
// and compute a WRONG_CYL seek difference on mismatch.
func (f *Framer) DecodeTrack(expectedCyl, expectedHead int) ([]diskmodel.SectorOutcome, error) {
	var outcomes []diskmodel.SectorOutcome
	state := StateMarkID

	for {
		switch state {
		case StateMarkID:
			if !f.findSync(syncA1Raw) {
				return outcomes, nil
			}
			state = StateHeaderSync

		case StateHeaderSync:
			// The sync search already consumed the full 16-bit A1 pattern,
			// so decoding resumes immediately at the header payload.
			state = StateProcessHeader

		case StateProcessHeader:
			outcome, err := f.processHeader(expectedCyl, expectedHead)
			if err != nil {
				return outcomes, err
			}
			if outcome.Status.Has(diskmodel.StatusBadHeader) {
				outcomes = append(outcomes, outcome)
				state = StateMarkID
				continue
			}
			if !f.profile.SeparateData {
				// No separate data region declared for this profile
				// variant; a bare header-only track still reports header
				// status.
				outcomes = append(outcomes, outcome)
				state = StateMarkID
				continue
			}
			state = StateMarkData
			f.pendingOutcome = &outcome

		case StateMarkData:
			syncPattern := uint16(syncA1Raw)
			if f.profile.NoDataMark {
				// Symbolics 3640: resync on a single one-bit after a zero
				// run instead of an A1 mark (spec §4.6 special cases).
				if !f.findSingleOne() {
					outcomes = append(outcomes, *f.pendingOutcome)
					return outcomes, nil
				}
			} else if !f.findSync(syncPattern) {
				outcomes = append(outcomes, *f.pendingOutcome)
				return outcomes, nil
			}
			state = StateDataSync

		case StateDataSync:
			state = StateProcessData

		case StateProcessData:
			outcome := f.processData(*f.pendingOutcome)
			outcomes = append(outcomes, outcome)
			f.pendingOutcome = nil
			state = StateMarkID

		case StateProcessHeader2:
			// Tag/metadata block between header and data (spec §4.6
			// special cases); not exercised by the profiles registered so
			// far, reserved for profiles with metadata_bytes > 0.
			state = StateMarkData
		}
	}
}

// syncA1Raw is the missing-clock raw bit pattern for an A1 sync mark
// (spec §3, §4.5): 0x4489.
const syncA1Raw = 0x4489

// findSingleOne advances past zero bits until it sees a single 1 bit,
// used by profiles with NoDataMark set (spec §4.6: "resynchronization
// occurs on a single one-bit after a zero run").
func (f *Framer) findSingleOne() bool {
	for {
		bit, ok := f.nextRawBit()
		if !ok {
			return false
		}
		if bit == 1 {
			return true
		}
	}
}

// processHeader captures header_bytes+crc bytes, checks them, and on a
// good CRC interprets the fields per the profile's HeaderKind (spec
// §4.6).
func (f *Framer) processHeader(expectedCyl, expectedHead int) (diskmodel.SectorOutcome, error) {
	p := f.profile
	crcBytes := (p.HeaderCheck.Length + 7) / 8
	total := p.HeaderBytes + crcBytes
	raw, ok := f.readBytes(total)
	if !ok {
		return diskmodel.SectorOutcome{}, &OutOfDataError{SuggestedBeginNs: diskmodel.TicksToNs(f.tickAt(f.pos))}
	}

	checked := raw[p.HeaderCRCIgnore:]
	zero, span := runCheck(checked, p.HeaderCheck)
	if !zero {
		return diskmodel.SectorOutcome{
			ExpectedCylinder: expectedCyl, ExpectedHead: expectedHead,
			Status: diskmodel.StatusBadHeader,
		}, nil
	}

	fields := decodeHeader(p, raw[:p.HeaderBytes])
	status := diskmodel.StatusHeaderFound
	if span > 0 {
		status |= diskmodel.StatusECCRecovered
	}
	if fields.BadBlock {
		status |= diskmodel.StatusSpareOrBad
	}
	if fields.Spare {
		status |= diskmodel.StatusSpareOrBad
	}
	if fields.LastSector {
		// Informational only; doesn't change status bits on its own.
	}

	outcome := diskmodel.SectorOutcome{
		ExpectedCylinder: expectedCyl, ExpectedHead: expectedHead,
		ObservedCylinder: fields.Cyl, ObservedHead: fields.Head, ObservedSector: fields.Sector,
		LBA: fields.LBA, HasLBA: fields.HasLBA,
		Status:         status,
		HeaderECCSpan:  span,
	}
	if !fields.HasLBA && fields.Cyl != expectedCyl {
		outcome.Status |= diskmodel.StatusWrongCylinder
	}
	if p.HasAlternateTracking && fields.IsRedirect {
		key := diskmodel.CylHeadSector{Cylinder: expectedCyl, Head: expectedHead, Sector: fields.Sector}
		f.AlternateMap[key] = diskmodel.CylHeadSector{Cylinder: fields.RedirectTo.Cyl, Head: fields.RedirectTo.Head, Sector: fields.Sector}
	}
	return outcome, nil
}

// processData captures the data region, checks it, applies ECC if
// needed, and finalizes the sector outcome (spec §4.6 "Data
// processing").
func (f *Framer) processData(outcome diskmodel.SectorOutcome) diskmodel.SectorOutcome {
	p := f.profile
	crcBytes := (p.DataCheck.Length + 7) / 8
	total := p.DataHeaderBytes + p.SectorSize + p.DataTrailerBytes + crcBytes
	raw, ok := f.readBytes(total)
	if !ok {
		outcome.Status |= diskmodel.StatusBadData
		return outcome
	}

	checked := raw[p.DataCRCIgnore:]
	zero, span := runCheck(checked, p.DataCheck)
	sectorStart := p.DataHeaderBytes
	sectorEnd := sectorStart + p.SectorSize
	data := raw[sectorStart:sectorEnd]
	if p.ReverseDataBits {
		data = reverseBits(data)
	}
	outcome.Data = data

	if zero {
		if span > 0 {
			outcome.Status |= diskmodel.StatusECCRecovered
		}
	} else {
		outcome.Status |= diskmodel.StatusBadData
	}
	outcome.DataECCSpan = span
	return outcome
}

// reverseBits reverses the bit order within every byte of data (spec
// §4.6: "some encode sector bytes LSB-first").
func reverseBits(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		var r byte
		for bit := 0; bit < 8; bit++ {
			r = r<<1 | (b & 1)
			b >>= 1
		}
		out[i] = r
	}
	return out
}
