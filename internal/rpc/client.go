package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/ledgerwatch/log/v3"
)

// DefaultTimeout bounds a single fetch when the caller does not set one.
const DefaultTimeout = 30 * time.Second

// ClientConfig carries everything needed to open a connection to one source.
type ClientConfig struct {
	Name       string
	URL        string
	Block      BlockRef
	Timeout    time.Duration
	MaxRetries int
}

// Client reads account state from a single JSON-RPC endpoint. Account
// queries are pinned to the configured block reference. A Client is safe for
// concurrent use.
type Client struct {
	name       string
	block      BlockRef
	timeout    time.Duration
	maxRetries int
	rpc        *gethrpc.Client
}

// NewClient dials the endpoint. HTTP transports connect lazily, so this does
// not verify reachability; the first call does.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	conn, err := gethrpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}

	return &Client{
		name:       name,
		block:      cfg.Block,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		rpc:        conn,
	}, nil
}

func (c *Client) Name() string { return c.name }

// Close releases the underlying connection.
func (c *Client) Close() { c.rpc.Close() }

// AccountState fetches the balance and nonce of addr at the client's block
// reference as one batched call. Failures come back as *FetchError; an
// account unknown to the endpoint yields zero balance and nonce, not an
// error.
func (c *Client) AccountState(ctx context.Context, addr common.Address) (*AccountState, time.Duration, error) {
	var (
		balance hexutil.Big
		nonce   hexutil.Uint64
	)

	start := time.Now()
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		balance, nonce = hexutil.Big{}, 0
		batch := []gethrpc.BatchElem{
			{Method: "eth_getBalance", Args: []interface{}{addr, c.block.rpcArg()}, Result: &balance},
			{Method: "eth_getTransactionCount", Args: []interface{}{addr, c.block.rpcArg()}, Result: &nonce},
		}
		if err := c.rpc.BatchCallContext(callCtx, batch); err != nil {
			return err
		}
		for _, elem := range batch {
			if elem.Error != nil {
				return elem.Error
			}
		}
		return nil
	})
	latency := time.Since(start)

	if err != nil {
		return nil, latency, err
	}

	log.Debug("fetched account state",
		"source", c.name,
		"address", addr,
		"block", c.block,
		"latency", latency)

	return &AccountState{
		Address: addr,
		Balance: (*big.Int)(&balance),
		Nonce:   uint64(nonce),
	}, latency, nil
}

// BlockNumber fetches the endpoint's current head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, time.Duration, error) {
	var height hexutil.Uint64

	start := time.Now()
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		height = 0
		return c.rpc.CallContext(callCtx, &height, "eth_blockNumber")
	})
	latency := time.Since(start)

	if err != nil {
		return 0, latency, err
	}
	return uint64(height), latency, nil
}

// ChainID fetches the endpoint's chain identifier.
func (c *Client) ChainID(ctx context.Context) (*big.Int, time.Duration, error) {
	var id hexutil.Big

	start := time.Now()
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		id = hexutil.Big{}
		return c.rpc.CallContext(callCtx, &id, "eth_chainId")
	})
	latency := time.Since(start)

	if err != nil {
		return nil, latency, err
	}
	return (*big.Int)(&id), latency, nil
}

// withRetry runs op with a per-attempt timeout, retrying transient failures
// with exponential backoff. Cancellation of ctx always wins and is returned
// as the bare context error, never as a *FetchError.
func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var (
		lastErr error
		kind    ErrorKind
	)

	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := op(callCtx)
		cancel()

		attempts++
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr, kind = err, classify(err)
		if !retryable(kind) || attempt == c.maxRetries {
			break
		}

		log.Debug("retrying fetch",
			"source", c.name,
			"kind", kind,
			"attempt", attempt+1,
			"err", err)

		// Exponential backoff: 100ms, 200ms, 400ms...
		backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	if attempts > 1 {
		lastErr = fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	}
	return &FetchError{Source: c.name, Kind: kind, Err: lastErr}
}
