package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vintage-drives/mfmflux/analyzer"
	"github.com/vintage-drives/mfmflux/container"
	"github.com/vintage-drives/mfmflux/msglog"
	"github.com/vintage-drives/mfmflux/registry"
)

var analyzeProfileNames []string

var analyzeCmd = &cobra.Command{
	Use:   "analyze IN.tran",
	Short: "Identify the controller profile that best decodes a TRAN capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var profiles []*registry.Profile
		if len(analyzeProfileNames) == 0 {
			for _, name := range registry.Names() {
				p, _ := registry.Lookup(name)
				profiles = append(profiles, p)
			}
		} else {
			for _, name := range analyzeProfileNames {
				p, ok := registry.Lookup(name)
				if !ok {
					return fmt.Errorf("unknown controller profile %q", name)
				}
				profiles = append(profiles, p)
			}
		}

		tr, err := container.OpenTran(args[0])
		if err != nil {
			return fmt.Errorf("open TRAN file %s: %w", args[0], err)
		}
		defer tr.Close()

		track, done, err := tr.ReadTrack()
		if err != nil {
			return fmt.Errorf("read first track: %w", err)
		}
		if done {
			return fmt.Errorf("%s contains no tracks", args[0])
		}

		estimate := analyzer.EstimateBitCellPeriod(track)
		logger.Sectionf(msglog.MsgFormat, "estimated bit-cell period: %.1fns (%.0f bps)",
			estimate.PeriodNs, 1e9/estimate.PeriodNs)

		result := analyzer.Analyze(track, profiles)
		if len(result.Candidates) == 0 {
			return fmt.Errorf("no profile decoded cylinder %d head %d with acceptable confidence", track.Cylinder, track.Head)
		}
		for _, m := range result.Candidates {
			fmt.Printf("%-20s header_poly=0x%x header_init=0x%x data_poly=0x%x data_init=0x%x sector_size=%d good_headers=%d good_data=%d\n",
				m.Profile.Name, m.HeaderCheck.Poly, m.HeaderCheck.Init, m.DataCheck.Poly, m.DataCheck.Init, m.SectorSize, m.GoodHeaders, m.GoodData)
		}
		if result.Ambiguous() {
			logger.Sectionf(msglog.MsgErrSerious, "multiple profiles matched ambiguously; narrow with --profile")
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringSliceVar(&analyzeProfileNames, "profile", nil, "restrict search to these profile names (default: every registered profile)")
	rootCmd.AddCommand(analyzeCmd)
}
