// cmd/spindled/check.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tamzrod/spindle-link/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the effective settings",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	config.Normalize(cfg)

	s := cfg.Spindle
	fmt.Printf("vendor:      %s (addr %d)\n", s.Vendor, s.Link.Address)
	fmt.Printf("port:        %s %d %d%s%d", s.Link.Port, s.Link.Baud, s.Link.DataBits, s.Link.Parity, s.Link.StopBits)
	if s.Link.RS485.Enabled {
		fmt.Printf(" rs485 rts %dms/%dms", s.Link.RS485.RTSBeforeSendMs, s.Link.RS485.RTSAfterSendMs)
	}
	fmt.Println()
	fmt.Printf("rpm:         %d-%d\n", s.RPM.Min, s.RPM.Max)
	fmt.Printf("dwells:      up %dms, down %dms\n", s.Delays.SpinUpMs, s.Delays.SpinDownMs)
	fmt.Printf("poll:        every %dms, reply timeout %dms, %d retries\n", s.Poll.IntervalMs, s.Link.ResponseTimeoutMs, s.Retry.Max)
	fmt.Printf("queue depth: %d\n", s.QueueDepth)
	fmt.Println("configuration ok")
	return nil
}
