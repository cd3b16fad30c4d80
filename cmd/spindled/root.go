// cmd/spindled/root.go
package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamzrod/spindle-link/internal/vfd"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "spindled",
	Short: "VFD spindle link daemon",
	Long: `Spindled drives a VFD spindle over a half-duplex RS-485 link.

It owns the serial bus: caller commands (state, speed) are queued and
interleaved with a background poll cycle that discovers the drive's
capabilities and reads back speed, direction and health.

Supported protocol families: ` + strings.Join(vfd.Families(), ", ") + `.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "spindle.yaml", "Path to the YAML configuration")
}
