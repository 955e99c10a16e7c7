package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"

	"github.com/zkaudit/zk-account-soundness/internal/report"
)

func watchCmd() *cobra.Command {
	var (
		flags    sourceFlags
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously compare account state between two endpoints",
		Long: `Re-run the comparison on an interval, redrawing the report each cycle.
Divergence is also logged to stderr so it survives the screen redraw.

Examples:
  zksound watch --rpc-a https://node-a/rpc --rpc-b https://node-b/rpc \
      --address 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045
  zksound watch --rpc-a mainnet --rpc-b archive --address-file accounts.json --interval 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			settings, err := newRunSettings(cfg, &flags)
			if err != nil {
				return err
			}

			// Use config default unless explicitly overridden.
			if interval == 0 {
				interval = cfg.Defaults.WatchInterval.Std()
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be > 0")
			}
			return runWatch(settings, interval)
		},
	}

	addSourceFlags(cmd, &flags)
	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (defaults to config)")
	return cmd
}

func runWatch(settings *runSettings, interval time.Duration) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	clientA, clientB, closeAll, err := buildClients(ctx, settings)
	if err != nil {
		return err
	}
	defer closeAll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cycle := func() {
		summary, err := compareOnce(ctx, clientA, clientB, settings)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("comparison cycle failed", "err", err)
			return
		}

		fmt.Print("\033[2J\033[H") // ANSI clear screen and move cursor to top
		fmt.Printf("Watching %d accounts (interval: %s, Ctrl+C to exit)\n", len(settings.addresses), interval)
		report.RenderTerminal(os.Stdout, summary)

		if summary.Overall != report.StatusOK {
			log.Warn("state divergence observed",
				"mismatched", summary.Counts.Mismatch,
				"errors", summary.Counts.Errors)
		}
	}

	// Initial run before the first tick.
	cycle()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nExiting...")
			return nil
		case <-ticker.C:
			// Ticks can race cancellation; skip them once the context is dead.
			if ctx.Err() != nil {
				continue
			}
			cycle()
		}
	}
}
