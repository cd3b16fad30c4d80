// cmd/spindled/run.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamzrod/spindle-link/internal/bus"
	"github.com/tamzrod/spindle-link/internal/config"
	"github.com/tamzrod/spindle-link/internal/spindle"
	"github.com/tamzrod/spindle-link/internal/vfd"
)

var (
	runState string
	runRPM   uint32
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the spindle link",
	Long: `Open the configured serial port, start the transaction loop and keep
polling the drive. With --state the spindle is commanded once at startup;
without it the daemon just mirrors the drive. SIGINT/SIGTERM stop the
spindle before the process exits.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runState, "state", "", "Spindle state to command at startup (cw, ccw, off)")
	runCmd.Flags().Uint32Var(&runRPM, "rpm", 0, "Spindle speed to command at startup")
}

// consoleSystem is the stand-in machine around the daemon: no job, no abort,
// unscaled override. Faults land in the log instead of a motion planner.
type consoleSystem struct{}

func (consoleSystem) AbortActive() bool      { return false }
func (consoleSystem) JobRunning() bool       { return false }
func (consoleSystem) OverridePercent() uint8 { return 100 }
func (consoleSystem) RaiseFault(f bus.Fault) { log.Printf("[spindled] FAULT: %v", f) }

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	// The transaction loop gets its own context so shutdown can stop the
	// spindle and still have a live bus to transmit the disable.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	ctrl := spindle.New(loopCtx, consoleSystem{}, bus.NewLink())
	if err := ctrl.Init(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runState != "" {
		state, ok := vfd.ParseState(runState)
		if !ok {
			return fmt.Errorf("unknown spindle state %q", runState)
		}
		ctrl.SetState(ctx, state, runRPM)
	}

	// Mirror the drive into the log, one line per change.
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	var last spindle.Snapshot
	for {
		select {
		case <-tick.C:
			snap := ctrl.Snapshot()
			if snap != last {
				log.Printf("[spindled] state=%s rpm=%d max=%d synced=%v responsive=%v",
					snap.State, snap.RPM, snap.MaxRPM, snap.Synced, !snap.Unresponsive)
				last = snap
			}
		case <-ctx.Done():
			log.Printf("[spindled] shutting down, stopping spindle")
			ctrl.Stop()
			// Give the loop a moment to transmit the disable.
			time.Sleep(750 * time.Millisecond)
			return nil
		}
	}
}
