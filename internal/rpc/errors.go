package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind categorizes a failed fetch so reports and retry logic can treat
// transport-level failures differently from endpoint-level ones.
type ErrorKind string

const (
	ErrTimeout         ErrorKind = "timeout"
	ErrConnRefused     ErrorKind = "connection_refused"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrServer          ErrorKind = "server_error"
	ErrRPC             ErrorKind = "rpc_error"
	ErrInvalidResponse ErrorKind = "invalid_response"
	ErrOther           ErrorKind = "other"
)

// FetchError is a failed account state fetch: the endpoint it came from, a
// classified kind, and the underlying cause. It never represents a data
// difference between endpoints; those are comparison outcomes, not errors.
type FetchError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// classify maps a transport or decode error onto an ErrorKind.
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnRefused
	}

	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return ErrRateLimited
		case httpErr.StatusCode >= 500:
			return ErrServer
		}
		return ErrOther
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrInvalidResponse
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return ErrRPC
	}

	return ErrOther
}

// retryable reports whether a fetch failing with this kind is worth another
// attempt. Endpoint answers (RPC errors, malformed payloads) are
// deterministic and never retried.
func retryable(kind ErrorKind) bool {
	switch kind {
	case ErrTimeout, ErrConnRefused, ErrRateLimited, ErrServer, ErrOther:
		return true
	}
	return false
}
