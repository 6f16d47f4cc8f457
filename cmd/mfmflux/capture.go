package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vintage-drives/mfmflux/config"
	"github.com/vintage-drives/mfmflux/container"
	"github.com/vintage-drives/mfmflux/diskmodel"
	"github.com/vintage-drives/mfmflux/msglog"
)

var captureDeviceName string

var captureCmd = &cobra.Command{
	Use:   "capture OUT.tran",
	Short: "Capture raw flux transitions from a drive into a TRAN file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]

		dev, err := openCapture(captureDeviceName)
		if err != nil {
			return fmt.Errorf("open capture device: %w", err)
		}
		defer dev.Close()
		logger.Sectionf(msglog.MsgInfo, "using device: %s", dev.Status())

		tw, err := container.CreateTran(filename, container.TranHeader{
			Major:         1,
			Minor:         0,
			SampleRateHz:  uint32(diskmodel.ReferenceClockHz),
			DecodeCmdLine: strings.Join(append([]string{"mfmflux", "capture"}, args...), " "),
			Note:          fmt.Sprintf("drive=%s profile=%s", config.DriveName, config.ProfileName),
		})
		if err != nil {
			return fmt.Errorf("create TRAN file %s: %w", filename, err)
		}
		defer tw.Close()

		for cyl := 0; cyl < config.Cylinders; cyl++ {
			if err := dev.Seek(cyl); err != nil {
				return fmt.Errorf("seek to cylinder %d: %w", cyl, err)
			}
			for head := 0; head < config.Heads; head++ {
				if err := dev.SetHead(head); err != nil {
					return fmt.Errorf("select head %d: %w", head, err)
				}
				track, err := dev.ReadTrack(cyl, head)
				if err != nil {
					return fmt.Errorf("read cylinder %d head %d: %w", cyl, head, err)
				}
				if err := tw.WriteTrack(track); err != nil {
					return fmt.Errorf("write cylinder %d head %d: %w", cyl, head, err)
				}
				logger.Sectionf(msglog.MsgProgress, "captured cylinder %d head %d (%d transitions)",
					cyl, head, len(track.Deltas))
			}
		}
		logger.Sectionf(msglog.MsgInfoSummary, "capture complete: %d cylinders, %d heads, saved to %s",
			config.Cylinders, config.Heads, filename)
		return nil
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureDeviceName, "device", "greaseweazle", "capture device preset name")
	rootCmd.AddCommand(captureCmd)
}
