package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/zkaudit/zk-account-soundness/internal/config"
	"github.com/zkaudit/zk-account-soundness/internal/env"
	"github.com/zkaudit/zk-account-soundness/internal/rpc"
)

// sourceFlags holds the raw endpoint and fetch flags shared by compare and
// watch. Resolution against the config file happens in newRunSettings.
type sourceFlags struct {
	rpcA, rpcB     string
	blockA, blockB string
	addresses      []string
	addressFile    string
	timeout        time.Duration
	retries        int
	maxInFlight    int
}

func addSourceFlags(cmd *cobra.Command, f *sourceFlags) {
	cmd.Flags().StringVar(&f.rpcA, "rpc-a", "", "First endpoint: URL or config endpoint name (default $RPC_URL)")
	cmd.Flags().StringVar(&f.rpcB, "rpc-b", "", "Second endpoint: URL or config endpoint name")
	cmd.Flags().StringVar(&f.blockA, "block-a", "latest", "Block for the first endpoint: decimal, 0x hex, or tag")
	cmd.Flags().StringVar(&f.blockB, "block-b", "latest", "Block for the second endpoint")
	cmd.Flags().StringArrayVar(&f.addresses, "address", nil, "Account address to check (repeatable)")
	cmd.Flags().StringVar(&f.addressFile, "address-file", "", "JSON file holding an array of addresses")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-request timeout (defaults to config)")
	cmd.Flags().IntVar(&f.retries, "retries", -1, "Retries per fetch after a retryable failure (defaults to config)")
	cmd.Flags().IntVar(&f.maxInFlight, "max-inflight", 0, "Concurrent fetches (defaults to config)")
}

// runSettings is the fully resolved input for one run: flags win over the
// config file, which wins over built-in defaults. Packages below cmd never
// read flags or the environment.
type runSettings struct {
	sourceA, sourceB rpc.ClientConfig
	addresses        []common.Address
	maxInFlight      int
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newRunSettings validates and resolves everything before any network call.
func newRunSettings(cfg *config.Config, f *sourceFlags) (*runSettings, error) {
	refA := f.rpcA
	if refA == "" {
		refA = env.Lookup("RPC_URL", "")
	}
	if refA == "" {
		return nil, fmt.Errorf("--rpc-a is required (or set RPC_URL)")
	}
	if f.rpcB == "" {
		return nil, fmt.Errorf("--rpc-b is required")
	}

	nameA, urlA := resolveEndpoint(cfg, refA)
	if err := config.CheckURL(urlA); err != nil {
		return nil, fmt.Errorf("--rpc-a: %w", err)
	}
	nameB, urlB := resolveEndpoint(cfg, f.rpcB)
	if err := config.CheckURL(urlB); err != nil {
		return nil, fmt.Errorf("--rpc-b: %w", err)
	}

	blockA, err := rpc.ParseBlockRef(f.blockA)
	if err != nil {
		return nil, fmt.Errorf("--block-a: %w", err)
	}
	blockB, err := rpc.ParseBlockRef(f.blockB)
	if err != nil {
		return nil, fmt.Errorf("--block-b: %w", err)
	}

	addrs, err := collectAddresses(f.addresses, f.addressFile)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Defaults.Timeout.Std()
	if f.timeout != 0 {
		if f.timeout < 0 {
			return nil, fmt.Errorf("--timeout must be > 0")
		}
		timeout = f.timeout
	}

	retries := cfg.Defaults.MaxRetries
	if f.retries >= 0 {
		retries = f.retries
	}

	maxInFlight := cfg.Defaults.MaxInFlight
	if f.maxInFlight != 0 {
		if f.maxInFlight < 0 {
			return nil, fmt.Errorf("--max-inflight must be > 0")
		}
		maxInFlight = f.maxInFlight
	}

	return &runSettings{
		sourceA: rpc.ClientConfig{
			Name:       nameA,
			URL:        urlA,
			Block:      blockA,
			Timeout:    timeout,
			MaxRetries: retries,
		},
		sourceB: rpc.ClientConfig{
			Name:       nameB,
			URL:        urlB,
			Block:      blockB,
			Timeout:    timeout,
			MaxRetries: retries,
		},
		addresses:   addrs,
		maxInFlight: maxInFlight,
	}, nil
}

// resolveEndpoint maps a config endpoint name to (name, url). A ref that is
// not a known name is treated as a raw URL with no display name.
func resolveEndpoint(cfg *config.Config, ref string) (name, url string) {
	resolved := cfg.Resolve(ref)
	if resolved != ref {
		return ref, resolved
	}
	return "", ref
}

func collectAddresses(flagAddrs []string, file string) ([]common.Address, error) {
	raw := append([]string(nil), flagAddrs...)
	if file != "" {
		fromFile, err := loadAddressFile(file)
		if err != nil {
			return nil, err
		}
		raw = append(raw, fromFile...)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --address (or --address-file) is required")
	}

	addrs := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		addrs = append(addrs, common.HexToAddress(s))
	}
	return addrs, nil
}

func loadAddressFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read address file: %w", err)
	}
	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil, fmt.Errorf("failed to parse address file %s: %w", path, err)
	}
	return addrs, nil
}

// buildClients dials both sources. The returned close func releases both.
func buildClients(ctx context.Context, s *runSettings) (a, b *rpc.Client, closeAll func(), err error) {
	a, err = rpc.NewClient(ctx, s.sourceA)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err = rpc.NewClient(ctx, s.sourceB)
	if err != nil {
		a.Close()
		return nil, nil, nil, err
	}
	return a, b, func() { a.Close(); b.Close() }, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM so
// in-flight requests abort when the user interrupts.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
