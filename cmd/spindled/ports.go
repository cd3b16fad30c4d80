// cmd/spindled/ports.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and their USB identities",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Println(p.Name)
			continue
		}
		fmt.Printf("%-16s usb %s:%s", p.Name, p.VID, p.PID)
		if p.SerialNumber != "" {
			fmt.Printf(" serial %s", p.SerialNumber)
		}
		if p.Product != "" {
			fmt.Printf(" (%s)", p.Product)
		}
		fmt.Println()
	}
	return nil
}
