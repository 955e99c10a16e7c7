package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zkaudit/zk-account-soundness/internal/compare"
	"github.com/zkaudit/zk-account-soundness/internal/report"
	"github.com/zkaudit/zk-account-soundness/internal/rpc"
)

func compareCmd() *cobra.Command {
	var (
		flags   sourceFlags
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare account state between two endpoints",
		Long: `Fetch balance and nonce for each address from both endpoints and
classify every account as matching, diverging, or unfetchable.

Exit codes: 0 when all accounts match, 2 on any mismatch or fetch
failure, 1 on usage or configuration errors.

Examples:
  zksound compare --rpc-a https://node-a/rpc --rpc-b https://node-b/rpc \
      --address 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045
  zksound compare --rpc-a mainnet --rpc-b archive --block-a 19000000 \
      --block-b 19000000 --address-file accounts.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			settings, err := newRunSettings(cfg, &flags)
			if err != nil {
				return err
			}
			return runCompare(settings, jsonOut)
		},
	}

	addSourceFlags(cmd, &flags)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the report as JSON on stdout")
	return cmd
}

func runCompare(settings *runSettings, jsonOut bool) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	clientA, clientB, closeAll, err := buildClients(ctx, settings)
	if err != nil {
		return err
	}
	defer closeAll()

	summary, err := compareOnce(ctx, clientA, clientB, settings)
	if err != nil {
		return err
	}

	if jsonOut {
		err = report.RenderJSON(os.Stdout, summary)
	} else {
		err = report.RenderTerminal(os.Stdout, summary)
	}
	if err != nil {
		return err
	}

	if summary.Overall != report.StatusOK {
		return errMismatch
	}
	return nil
}

// compareOnce runs a single comparison round and builds its summary.
func compareOnce(ctx context.Context, clientA, clientB *rpc.Client, settings *runSettings) (*report.RunSummary, error) {
	comparator := &compare.Comparator{
		A:           clientA,
		B:           clientB,
		MaxInFlight: settings.maxInFlight,
	}

	startedAt := time.Now()
	results, err := comparator.Run(ctx, settings.addresses)
	if err != nil {
		return nil, err
	}

	sourceA := rpc.Source{Name: settings.sourceA.Name, URL: settings.sourceA.URL, Block: settings.sourceA.Block}
	sourceB := rpc.Source{Name: settings.sourceB.Name, URL: settings.sourceB.URL, Block: settings.sourceB.Block}
	return report.Build(sourceA, sourceB, results, startedAt), nil
}
