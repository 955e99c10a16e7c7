package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"

	"github.com/zkaudit/zk-account-soundness/internal/env"
	"github.com/zkaudit/zk-account-soundness/internal/report"
)

const version = "0.3.0"

// Sentinel errors mapped to exit codes in main. Divergence and failed health
// probes exit 2 so scripts can tell them apart from usage errors (exit 1).
var (
	errMismatch  = errors.New("account state mismatch detected")
	errUnhealthy = errors.New("endpoint unhealthy")
)

func main() {
	env.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errMismatch) || errors.Is(err, errUnhealthy) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		verbose bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:     "zksound",
		Version: version,
		Short:   "Cross-check account state between two Ethereum JSON-RPC endpoints",
		Long: `zksound fetches balance and nonce for a set of accounts from two JSON-RPC
endpoints and reports any divergence. Typical uses: validating a fresh node
against a trusted one, auditing an archive snapshot at a pinned block, and
watching a pair of endpoints for drift.

Examples:
  zksound compare --rpc-a https://node-a/rpc --rpc-b https://node-b/rpc \
      --address 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045
  zksound compare --rpc-a mainnet --rpc-b archive --address-file accounts.json --json
  zksound health --rpc-a https://node-a/rpc --rpc-b https://node-b/rpc --samples 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lvl := log.LvlInfo
			if verbose {
				lvl = log.LvlDebug
			}
			log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StderrHandler))

			if noColor {
				report.DisableColors()
			}
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to YAML config file (optional)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log each fetch at debug level")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(compareCmd())
	cmd.AddCommand(watchCmd())
	cmd.AddCommand(healthCmd())

	return cmd
}
