package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vintage-drives/mfmflux/aggregator"
	"github.com/vintage-drives/mfmflux/config"
	"github.com/vintage-drives/mfmflux/container"
	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/framer"
	"github.com/vintage-drives/mfmflux/msglog"
	"github.com/vintage-drives/mfmflux/pll"
	"github.com/vintage-drives/mfmflux/registry"
)

var (
	decodeProfileName string
	decodeRetries     int
)

var decodeCmd = &cobra.Command{
	Use:   "decode IN.tran OUT.img",
	Short: "Decode a TRAN flux capture into a sector image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName := decodeProfileName
		if profileName == "" {
			profileName = config.ProfileName
		}
		profile, ok := registry.Lookup(profileName)
		if !ok {
			return fmt.Errorf("unknown controller profile %q", profileName)
		}

		agg := aggregator.New()
		var tracks []aggregator.TrackKey

		for pass := 0; pass < decodeRetries; pass++ {
			tr, err := container.OpenTran(args[0])
			if err != nil {
				return fmt.Errorf("open TRAN file %s: %w", args[0], err)
			}

			for {
				deltaTrack, done, err := tr.ReadTrack()
				if err != nil {
					tr.Close()
					return fmt.Errorf("read track (pass %d): %w", pass, err)
				}
				if done {
					break
				}
				key := aggregator.TrackKey{Cylinder: deltaTrack.Cylinder, Head: deltaTrack.Head}
				if pass == 0 {
					tracks = append(tracks, key)
				}

				bits := pll.DecodeTrack(deltaTrack, profile.BitCellClockHz)
				f := framer.New(profile, bits)
				outcomes, err := f.DecodeTrack(deltaTrack.Cylinder, deltaTrack.Head)
				if err != nil {
					logger.Sectionf(msglog.MsgErr, "cylinder %d head %d pass %d: %v",
						deltaTrack.Cylinder, deltaTrack.Head, pass, err)
				}
				agg.AddPass(key, outcomes, bits, nil)
				logger.Sectionf(msglog.MsgProgress, "decoded cylinder %d head %d pass %d (%d sectors)",
					deltaTrack.Cylinder, deltaTrack.Head, pass, len(outcomes))
			}
			tr.Close()
		}

		out, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("create output image %s: %w", args[1], err)
		}
		defer out.Close()

		var stats diskmodel.RunStats
		for _, key := range tracks {
			sectors, _, _ := agg.BestTrack(key)
			stats.TracksRead++
			for _, s := range sectors {
				switch {
				case s.Status.Has(diskmodel.StatusBadHeader):
					stats.SectorsBadHeader++
				case s.Status.Has(diskmodel.StatusBadData):
					stats.SectorsBadData++
				case s.HeaderECCSpan > 0 || s.DataECCSpan > 0:
					stats.SectorsECCRecovered++
				default:
					stats.SectorsOK++
				}
				if _, err := out.Write(s.Data); err != nil {
					return fmt.Errorf("write sector data for cylinder %d head %d sector %d: %w",
						key.Cylinder, key.Head, s.ExpectedSector, err)
				}
			}
		}

		logger.Stats("decode complete",
			"tracks", stats.TracksRead, "ok", stats.SectorsOK, "ecc", stats.SectorsECCRecovered,
			"bad_header", stats.SectorsBadHeader, "bad_data", stats.SectorsBadData)
		return nil
	},
}

func init() {
	decodeCmd.Flags().StringVar(&decodeProfileName, "profile", "", "controller profile name (default: configured drive's profile)")
	decodeCmd.Flags().IntVar(&decodeRetries, "retries", 1, "number of decode passes over the TRAN file to aggregate")
	rootCmd.AddCommand(decodeCmd)
}
