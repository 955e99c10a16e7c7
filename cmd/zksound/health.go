package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"

	"github.com/zkaudit/zk-account-soundness/internal/config"
	"github.com/zkaudit/zk-account-soundness/internal/env"
	"github.com/zkaudit/zk-account-soundness/internal/rpc"
	"github.com/zkaudit/zk-account-soundness/internal/stats"
)

func healthCmd() *cobra.Command {
	var (
		rpcA, rpcB string
		samples    int
		timeout    time.Duration
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe both endpoints and report latency and head drift",
		Long: `Sample eth_blockNumber from each endpoint and report success rate, tail
latency, head height drift between the two, and chain ID agreement.

Exit codes: 0 when both endpoints responded at least once, 2 otherwise.

Examples:
  zksound health --rpc-a https://node-a/rpc --rpc-b https://node-b/rpc
  zksound health --rpc-a mainnet --rpc-b archive --samples 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runHealth(cfg, rpcA, rpcB, samples, timeout, jsonOut)
		},
	}

	cmd.Flags().StringVar(&rpcA, "rpc-a", "", "First endpoint: URL or config endpoint name (default $RPC_URL)")
	cmd.Flags().StringVar(&rpcB, "rpc-b", "", "Second endpoint: URL or config endpoint name")
	cmd.Flags().IntVar(&samples, "samples", 0, "Probes per endpoint (defaults to config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout (defaults to config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the health report as JSON on stdout")
	return cmd
}

type healthResult struct {
	endpoint string
	chainID  *big.Int
	height   uint64
	success  int
	total    int
	tail     stats.TailLatency
}

func runHealth(cfg *config.Config, rpcA, rpcB string, samples int, timeout time.Duration, jsonOut bool) error {
	refA := rpcA
	if refA == "" {
		refA = env.Lookup("RPC_URL", "")
	}
	if refA == "" {
		return fmt.Errorf("--rpc-a is required (or set RPC_URL)")
	}
	if rpcB == "" {
		return fmt.Errorf("--rpc-b is required")
	}

	nameA, urlA := resolveEndpoint(cfg, refA)
	if err := config.CheckURL(urlA); err != nil {
		return fmt.Errorf("--rpc-a: %w", err)
	}
	nameB, urlB := resolveEndpoint(cfg, rpcB)
	if err := config.CheckURL(urlB); err != nil {
		return fmt.Errorf("--rpc-b: %w", err)
	}

	if samples == 0 {
		samples = cfg.Defaults.HealthSamples
	}
	if samples <= 0 {
		return fmt.Errorf("--samples must be > 0")
	}
	if timeout == 0 {
		timeout = cfg.Defaults.Timeout.Std()
	}
	if timeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	// Probes never retry so the latency numbers stay honest.
	configs := []rpc.ClientConfig{
		{Name: nameA, URL: urlA, Timeout: timeout},
		{Name: nameB, URL: urlB, Timeout: timeout},
	}

	if !jsonOut {
		fmt.Printf("\nProbing 2 endpoints with %d samples each...\n\n", samples)
	}

	results := make([]healthResult, len(configs))
	var wg sync.WaitGroup

	for i, cc := range configs {
		wg.Add(1)
		go func(idx int, cc rpc.ClientConfig) {
			defer wg.Done()
			results[idx] = probeSource(ctx, cc, samples)
		}(i, cc)
	}

	wg.Wait()

	if jsonOut {
		if err := renderHealthJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		renderHealthTerminal(os.Stdout, results)
	}

	if results[0].success == 0 || results[1].success == 0 {
		return errUnhealthy
	}
	return nil
}

func probeSource(ctx context.Context, cc rpc.ClientConfig, samples int) healthResult {
	r := healthResult{endpoint: endpointLabel(cc), total: samples}

	client, err := rpc.NewClient(ctx, cc)
	if err != nil {
		log.Warn("failed to dial endpoint", "endpoint", r.endpoint, "err", err)
		return r
	}
	defer client.Close()

	if id, _, err := client.ChainID(ctx); err == nil {
		r.chainID = id
	} else {
		log.Debug("chain id probe failed", "endpoint", r.endpoint, "err", err)
	}

	var latencies []time.Duration
loop:
	for i := 0; i < samples; i++ {
		height, latency, err := client.BlockNumber(ctx)
		if err == nil {
			r.success++
			r.height = height
			latencies = append(latencies, latency)
		} else {
			log.Debug("health sample failed", "endpoint", r.endpoint, "sample", i+1, "err", err)
		}

		if i == samples-1 {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-time.After(200 * time.Millisecond): // don't hammer the endpoint
		}
	}

	r.tail = stats.CalculateTailLatency(latencies)
	return r
}

func endpointLabel(cc rpc.ClientConfig) string {
	if cc.Name != "" {
		return cc.Name
	}
	return cc.URL
}

func renderHealthTerminal(w io.Writer, results []healthResult) {
	fmt.Fprintf(w, "%-32s %8s %10s %10s %10s %12s\n",
		"Endpoint", "Success", "P50", "P95", "Max", "Height")
	fmt.Fprintln(w, strings.Repeat("─", 88))

	for _, r := range results {
		if r.success == 0 {
			fmt.Fprintf(w, "%-32s %7d%% %10s %10s %10s %12s\n", r.endpoint, 0, "—", "—", "—", "—")
			continue
		}
		successPct := float64(r.success) / float64(r.total) * 100
		fmt.Fprintf(w, "%-32s %7.0f%% %8dms %8dms %8dms %12d\n",
			r.endpoint,
			successPct,
			r.tail.P50.Milliseconds(),
			r.tail.P95.Milliseconds(),
			r.tail.Max.Milliseconds(),
			r.height)
	}
	fmt.Fprintln(w)

	a, b := results[0], results[1]
	switch {
	case a.success == 0 && b.success == 0:
		fmt.Fprintln(w, "✗ neither endpoint responded")
	case a.success == 0 || b.success == 0:
		fmt.Fprintln(w, "✗ one endpoint never responded")
	default:
		fmt.Fprintf(w, "✓ both endpoints responding, head drift: %d blocks\n", headDrift(a.height, b.height))
		if a.chainID != nil && b.chainID != nil && a.chainID.Cmp(b.chainID) != 0 {
			log.Warn("endpoints disagree on chain id", "a", a.chainID, "b", b.chainID)
			fmt.Fprintf(w, "⚠ chain ID mismatch: %s vs %s (endpoints serve different networks)\n", a.chainID, b.chainID)
		}
	}
	fmt.Fprintln(w)
}

type jsonHealthSide struct {
	Endpoint string `json:"endpoint"`
	Success  int    `json:"success"`
	Samples  int    `json:"samples"`
	P50Ms    int64  `json:"p50Ms"`
	P95Ms    int64  `json:"p95Ms"`
	MaxMs    int64  `json:"maxMs"`
	Height   uint64 `json:"height"`
	ChainID  string `json:"chainId,omitempty"`
}

type jsonHealth struct {
	SourceA      jsonHealthSide `json:"sourceA"`
	SourceB      jsonHealthSide `json:"sourceB"`
	HeadDrift    *uint64        `json:"headDrift"`
	ChainIDMatch *bool          `json:"chainIdMatch"`
	Healthy      bool           `json:"healthy"`
}

func renderHealthJSON(w io.Writer, results []healthResult) error {
	a, b := results[0], results[1]

	out := jsonHealth{
		SourceA: jsonHealthSideOf(a),
		SourceB: jsonHealthSideOf(b),
		Healthy: a.success > 0 && b.success > 0,
	}
	if a.success > 0 && b.success > 0 {
		drift := headDrift(a.height, b.height)
		out.HeadDrift = &drift
	}
	if a.chainID != nil && b.chainID != nil {
		match := a.chainID.Cmp(b.chainID) == 0
		out.ChainIDMatch = &match
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func jsonHealthSideOf(r healthResult) jsonHealthSide {
	side := jsonHealthSide{
		Endpoint: r.endpoint,
		Success:  r.success,
		Samples:  r.total,
		P50Ms:    r.tail.P50.Milliseconds(),
		P95Ms:    r.tail.P95.Milliseconds(),
		MaxMs:    r.tail.Max.Milliseconds(),
		Height:   r.height,
	}
	if r.chainID != nil {
		side.ChainID = r.chainID.String()
	}
	return side
}

func headDrift(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
