package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

// rpcStub is a minimal JSON-RPC endpoint that understands both single and
// batched requests. Unknown accounts report zero balance and nonce, like a
// real node.
type rpcStub struct {
	mu         sync.Mutex
	balances   map[string]string // lowercase address -> hex wei
	nonces     map[string]string // lowercase address -> hex count
	height     string
	chainID    string
	failMethod map[string]*rpcErrorBody // forced JSON-RPC errors
	failFirst  int                      // serve 503 to this many requests first
	rawBody    string                   // non-empty: served verbatim
	delay      time.Duration
	blockArgs  []string
	calls      int

	srv *httptest.Server
}

func newRPCStub() *rpcStub {
	s := &rpcStub{
		balances:   make(map[string]string),
		nonces:     make(map[string]string),
		height:     "0x121eac0",
		chainID:    "0x1",
		failMethod: make(map[string]*rpcErrorBody),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *rpcStub) URL() string { return s.srv.URL }
func (s *rpcStub) Close()      { s.srv.Close() }

// configure mutates stub state under its lock so handler goroutines never
// race with test setup.
func (s *rpcStub) configure(fn func(*rpcStub)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *rpcStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *rpcStub) recordedBlocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.blockArgs...)
}

func (s *rpcStub) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls++
	fail := s.failFirst > 0
	if fail {
		s.failFirst--
	}
	delay := s.delay
	raw := s.rawBody
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if fail {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if raw != "" {
		io.WriteString(w, raw)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resps := make([]rpcResponse, len(reqs))
		for i, req := range reqs {
			resps[i] = s.respond(req)
		}
		json.NewEncoder(w).Encode(resps)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(s.respond(req))
}

func (s *rpcStub) respond(req rpcRequest) rpcResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	if forced, ok := s.failMethod[req.Method]; ok {
		resp.Error = forced
		return resp
	}

	switch req.Method {
	case "eth_blockNumber":
		resp.Result = s.height
	case "eth_chainId":
		resp.Result = s.chainID
	case "eth_getBalance", "eth_getTransactionCount":
		var addr, block string
		if len(req.Params) > 0 {
			json.Unmarshal(req.Params[0], &addr)
		}
		if len(req.Params) > 1 {
			json.Unmarshal(req.Params[1], &block)
		}
		s.blockArgs = append(s.blockArgs, block)

		table := s.balances
		if req.Method == "eth_getTransactionCount" {
			table = s.nonces
		}
		if v, ok := table[strings.ToLower(addr)]; ok {
			resp.Result = v
		} else {
			resp.Result = "0x0"
		}
	default:
		resp.Error = &rpcErrorBody{Code: -32601, Message: "the method " + req.Method + " does not exist/is not available"}
	}
	return resp
}

func newTestClient(t *testing.T, stub *rpcStub, cfg ClientConfig) *Client {
	t.Helper()
	cfg.URL = stub.URL()
	client, err := NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

var testAddr = common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")

func TestAccountStateFunded(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) {
		s.balances[strings.ToLower(testAddr.Hex())] = "0xde0b6b3a7640000" // 1 ETH
		s.nonces[strings.ToLower(testAddr.Hex())] = "0x2a"
	})

	client := newTestClient(t, stub, ClientConfig{Name: "stub"})

	state, latency, err := client.AccountState(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("AccountState: %v", err)
	}
	if want := big.NewInt(1e18); state.Balance.Cmp(want) != 0 {
		t.Errorf("Balance = %s, want %s", state.Balance, want)
	}
	if state.Nonce != 42 {
		t.Errorf("Nonce = %d, want 42", state.Nonce)
	}
	if state.Address != testAddr {
		t.Errorf("Address = %s, want %s", state.Address, testAddr)
	}
	if latency <= 0 {
		t.Error("latency should be positive")
	}
}

func TestAccountStateUnknownAccountIsZero(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()

	client := newTestClient(t, stub, ClientConfig{Name: "stub"})

	state, _, err := client.AccountState(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"))
	if err != nil {
		t.Fatalf("AccountState: %v", err)
	}
	if state.Balance.Sign() != 0 {
		t.Errorf("Balance = %s, want 0", state.Balance)
	}
	if state.Nonce != 0 {
		t.Errorf("Nonce = %d, want 0", state.Nonce)
	}
}

func TestAccountStatePinnedBlock(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()

	client := newTestClient(t, stub, ClientConfig{Name: "stub", Block: BlockAt(19000000)})

	if _, _, err := client.AccountState(context.Background(), testAddr); err != nil {
		t.Fatalf("AccountState: %v", err)
	}

	blocks := stub.recordedBlocks()
	if len(blocks) != 2 {
		t.Fatalf("recorded %d block params, want 2 (balance + nonce)", len(blocks))
	}
	for _, block := range blocks {
		if block != "0x121eac0" {
			t.Errorf("block param = %s, want 0x121eac0", block)
		}
	}
}

func TestAccountStateRPCError(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) {
		s.failMethod["eth_getBalance"] = &rpcErrorBody{Code: -32000, Message: "missing trie node"}
	})

	client := newTestClient(t, stub, ClientConfig{Name: "stub", MaxRetries: 3})

	_, _, err := client.AccountState(context.Background(), testAddr)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != ErrRPC {
		t.Errorf("Kind = %s, want %s", fe.Kind, ErrRPC)
	}
	// RPC errors are deterministic, so no retry should fire.
	if got := stub.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestAccountStateTimeout(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) { s.delay = 200 * time.Millisecond })

	client := newTestClient(t, stub, ClientConfig{Name: "stub", Timeout: 20 * time.Millisecond})

	_, _, err := client.AccountState(context.Background(), testAddr)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != ErrTimeout {
		t.Errorf("Kind = %s, want %s", fe.Kind, ErrTimeout)
	}
}

func TestAccountStateConnectionRefused(t *testing.T) {
	stub := newRPCStub()
	url := stub.URL()
	stub.Close() // free the port so connections fail

	client, err := NewClient(context.Background(), ClientConfig{Name: "stub", URL: url})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	_, _, err = client.AccountState(context.Background(), testAddr)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != ErrConnRefused {
		t.Errorf("Kind = %s, want %s", fe.Kind, ErrConnRefused)
	}
}

func TestAccountStateInvalidJSON(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) { s.rawBody = "upstream proxy error" })

	client := newTestClient(t, stub, ClientConfig{Name: "stub"})

	_, _, err := client.AccountState(context.Background(), testAddr)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != ErrInvalidResponse {
		t.Errorf("Kind = %s, want %s", fe.Kind, ErrInvalidResponse)
	}
}

func TestAccountStateMalformedHex(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) {
		s.balances[strings.ToLower(testAddr.Hex())] = "0xzz"
	})

	client := newTestClient(t, stub, ClientConfig{Name: "stub", MaxRetries: 2})

	_, _, err := client.AccountState(context.Background(), testAddr)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != ErrInvalidResponse {
		t.Errorf("Kind = %s, want %s", fe.Kind, ErrInvalidResponse)
	}
	// Malformed payloads are deterministic; no retries.
	if got := stub.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestAccountStateRetriesServerError(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) { s.failFirst = 1 })

	client := newTestClient(t, stub, ClientConfig{Name: "stub", MaxRetries: 1})

	state, _, err := client.AccountState(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("AccountState after retry: %v", err)
	}
	if state.Balance.Sign() != 0 {
		t.Errorf("Balance = %s, want 0", state.Balance)
	}
	if got := stub.callCount(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestAccountStateNoRetryByDefault(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) { s.failFirst = 1 })

	client := newTestClient(t, stub, ClientConfig{Name: "stub"})

	_, _, err := client.AccountState(context.Background(), testAddr)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != ErrServer {
		t.Errorf("Kind = %s, want %s", fe.Kind, ErrServer)
	}
	if got := stub.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestAccountStateCancelledContext(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()

	client := newTestClient(t, stub, ClientConfig{Name: "stub"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := client.AccountState(ctx, testAddr)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		t.Error("cancellation should not be wrapped in FetchError")
	}
}

func TestBlockNumber(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) { s.height = "0x10" })

	client := newTestClient(t, stub, ClientConfig{Name: "stub"})

	height, _, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if height != 16 {
		t.Errorf("height = %d, want 16", height)
	}
}

func TestChainID(t *testing.T) {
	stub := newRPCStub()
	defer stub.Close()
	stub.configure(func(s *rpcStub) { s.chainID = "0x89" })

	client := newTestClient(t, stub, ClientConfig{Name: "stub"})

	id, _, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID: %v", err)
	}
	if id.Int64() != 137 {
		t.Errorf("chain id = %s, want 137", id)
	}
}
