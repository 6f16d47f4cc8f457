package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vintage-drives/mfmflux/config"
	"github.com/vintage-drives/mfmflux/container"
	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/encoder"
	"github.com/vintage-drives/mfmflux/msglog"
	"github.com/vintage-drives/mfmflux/registry"
)

var (
	encodeProfileName string
	encodeInterleave  int
)

var encodeCmd = &cobra.Command{
	Use:   "encode IN.img OUT.emu",
	Short: "Synthesize an EMU flux-level file from a sector image (ext2emu)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName := encodeProfileName
		if profileName == "" {
			profileName = config.ProfileName
		}
		profile, ok := registry.Lookup(profileName)
		if !ok {
			return fmt.Errorf("unknown controller profile %q", profileName)
		}
		if profile.Layout == nil {
			return fmt.Errorf("profile %q has no track-layout template; encoding is not supported", profile.Name)
		}

		image, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read sector image %s: %w", args[0], err)
		}

		trackDataSize := uint32(profile.TrackBitWordCount) * 4
		ew, err := container.CreateEmu(args[1], container.EmuHeader{
			Major:           1,
			Minor:           0,
			TrackHeaderSize: 0,
			TrackDataSize:   trackDataSize,
			Cylinders:       uint32(config.Cylinders),
			Heads:           uint32(config.Heads),
			SampleRateHz:    uint32(diskmodel.ReferenceClockHz),
			DecodeCmdLine:   fmt.Sprintf("mfmflux encode %s %s", args[0], args[1]),
			Note:            fmt.Sprintf("profile=%s", profile.Name),
		})
		if err != nil {
			return fmt.Errorf("create EMU file %s: %w", args[1], err)
		}
		defer ew.Close()

		for cyl := 0; cyl < config.Cylinders; cyl++ {
			startSlot := (cyl * encodeInterleave) % profile.SectorsPerTrack
			for head := 0; head < config.Heads; head++ {
				bits, err := encoder.EncodeTrack(profile, encoder.Params{
					Cylinder: cyl, Head: head, Image: image,
					Heads: config.Heads, SectorsPerTrack: profile.SectorsPerTrack,
					SectorInterleave: encodeInterleave, StartSector: startSlot,
				})
				if err != nil {
					return fmt.Errorf("encode cylinder %d head %d: %w", cyl, head, err)
				}
				data := fitTrackData(container.BitStreamToBytes(bits), trackDataSize)
				if err := ew.WriteTrack(cyl, head, data); err != nil {
					return fmt.Errorf("write cylinder %d head %d: %w", cyl, head, err)
				}
				logger.Sectionf(msglog.MsgProgress, "encoded cylinder %d head %d", cyl, head)
			}
		}
		logger.Sectionf(msglog.MsgInfoSummary, "encode complete: %d cylinders, %d heads, saved to %s",
			config.Cylinders, config.Heads, args[1])
		return nil
	},
}

func init() {
	encodeCmd.Flags().StringVar(&encodeProfileName, "profile", "", "controller profile name (default: configured drive's profile)")
	encodeCmd.Flags().IntVar(&encodeInterleave, "interleave", 0, "sector interleave factor")
	rootCmd.AddCommand(encodeCmd)
}

// fitTrackData pads or truncates an encoded track's bytes to the EMU
// file's fixed per-track slot size (spec §3's track_bit_word_count).
func fitTrackData(data []byte, size uint32) []byte {
	if uint32(len(data)) == size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}
