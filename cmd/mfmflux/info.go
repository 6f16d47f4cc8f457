package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vintage-drives/mfmflux/config"
	"github.com/vintage-drives/mfmflux/registry"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the configured drive and the registered controller profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Drive: %s\n", config.DriveName)
		fmt.Printf("Geometry: %d cylinders, %d head(s)\n", config.Cylinders, config.Heads)
		fmt.Printf("Speed: %d RPM\n", config.RPM)
		fmt.Printf("Default profile: %s\n", config.ProfileName)
		fmt.Printf("\nRegistered controller profiles:\n")
		for _, name := range registry.Names() {
			p, _ := registry.Lookup(name)
			encodable := "no"
			if p.Layout != nil {
				encodable = "yes"
			}
			fmt.Printf("  %-20s sector_size=%-5d sectors_per_track=%-3d encode=%s\n",
				p.Name, p.SectorSize, p.SectorsPerTrack, encodable)
		}
		fmt.Printf("\nRegistered capture backends:\n")
		for _, preset := range config.CapturePresets() {
			fmt.Printf("  %-16s backend=%-12s vendor=%s product=%s baud=%d\n",
				preset.Name, preset.Backend, preset.VendorID, preset.ProductID, preset.BaudRate)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
