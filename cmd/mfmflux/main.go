// Command mfmflux captures, decodes, analyzes, and encodes vintage
// MFM hard-disk data. See Execute for subcommand wiring.
package main

func main() {
	Execute()
}
