package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/vintage-drives/mfmflux/capture"
	_ "github.com/vintage-drives/mfmflux/capture/greaseweazle"
	_ "github.com/vintage-drives/mfmflux/capture/kryoflux"
	_ "github.com/vintage-drives/mfmflux/capture/supercardpro"
	"github.com/vintage-drives/mfmflux/config"
	"github.com/vintage-drives/mfmflux/msglog"
)

var (
	quietFlags []string
	logger     *msglog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mfmflux",
	Short: "Decode, encode, and capture vintage MFM hard-disk data",
	Long: `mfmflux turns flux transition captures from a USB flux reader into
decoded sector images, and can run the reverse transform to synthesize
a flux-level emulation file from a sector image.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger = msglog.New(cmd.ErrOrStderr(), msglog.DefaultMask&^msglog.ParseQuiet(quietFlags))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&quietFlags, "quiet", nil,
		"message categories to suppress (debug, debug_data, info, progress, err, info_summary, err_serious, err_summary, fatal, stats, format)")
}

// Execute runs the root command; cmd/mfmflux/main.go's sole entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cobra.CheckErr(err)
	}
}

// openCapture looks up the named capture preset, finds the registered
// capture.Backend claiming the preset's VID/PID, and opens it: the
// USB-only KryoFlux backend directly, a serial backend (Greaseweazle,
// SuperCard Pro) on an enumerated port whose VID/PID matches. It mirrors
// the teacher's findAdapter (adapter/root.go) but dispatches through the
// backend registry instead of three hardcoded client constructors.
func openCapture(presetName string) (capture.Device, error) {
	preset, err := config.GetCapturePreset(presetName)
	if err != nil {
		return nil, err
	}
	backend, ok := capture.Find(mustParseHexID(preset.VendorID), mustParseHexID(preset.ProductID))
	if !ok {
		return nil, fmt.Errorf("no capture backend registered for preset %q (vid=%s pid=%s)",
			presetName, preset.VendorID, preset.ProductID)
	}

	if backend.Name == "kryoflux" {
		return backend.Open("", preset.BaudRate)
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	for _, port := range ports {
		portVID, err := strconv.ParseUint(port.VID, 16, 16)
		if err != nil {
			continue
		}
		portPID, err := strconv.ParseUint(port.PID, 16, 16)
		if err != nil {
			continue
		}
		if uint16(portVID) == backend.VendorID && uint16(portPID) == backend.ProductID {
			dev, err := backend.Open(port.Name, preset.BaudRate)
			if err != nil {
				continue
			}
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no connected device matched capture preset %q", presetName)
}

func mustParseHexID(s string) uint16 {
	v, err := config.ParseHexID(s)
	if err != nil {
		return 0
	}
	return v
}
