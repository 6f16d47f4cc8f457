package registry

// wdTrackLayout builds the track-layout template for a WD-family
// profile: a leading gap, then sectorsPerTrack repeats of (header,
// intra-sector gap, data), synthesized the way a WD1006 controller
// actually writes a track (spec §4.9 walks exactly this shape: FILL,
// SUB(sectors, [FIELD...]), with A1/C0 sync positions and MARK-CRC
// bracketing recorded per sector).
func wdTrackLayout(sectorsPerTrack, sectorSize int) *TrackNode {
	header := &TrackNode{
		Kind:        NodeField,
		LengthBytes: 4 + 2, // header_bytes + 16-bit CRC
		Fields: []*FieldNode{
			{LengthBytes: 1, Type: FieldA1Sync},
			{Type: FieldMarkCRCStart},
			{LengthBytes: 1, Type: FieldCyl, Op: OpSet},
			{LengthBytes: 1, Type: FieldHead, Op: OpSet},
			{LengthBytes: 1, Type: FieldSector, Op: OpSet},
			{LengthBytes: 2, Type: FieldHeaderCRC, Op: OpSet},
			{Type: FieldMarkCRCEnd},
		},
	}
	headerGap := &TrackNode{Kind: NodeFill, FillCount: 12, FillByte: 0x4e}
	data := &TrackNode{
		Kind:        NodeField,
		LengthBytes: sectorSize + 2,
		Fields: []*FieldNode{
			{LengthBytes: 1, Type: FieldC0Sync},
			{Type: FieldMarkCRCStart},
			{LengthBytes: sectorSize, Type: FieldSectorData},
			{LengthBytes: 2, Type: FieldDataCRC, Op: OpSet},
			{Type: FieldMarkCRCEnd},
		},
	}
	dataGap := &TrackNode{Kind: NodeFill, FillCount: 20, FillByte: 0x4e}

	sector := &TrackNode{
		Kind: NodeSub,
		Count: 1,
		Children: []*TrackNode{header, headerGap, data, dataGap},
	}

	return &TrackNode{
		Kind: NodeSub,
		Count: 1,
		Children: []*TrackNode{
			{Kind: NodeFill, FillCount: 30, FillByte: 0x4e},
			{Kind: NodeSub, Count: sectorsPerTrack, Children: sector.Children},
		},
	}
}
