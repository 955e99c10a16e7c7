// Package rpc provides account state access over Ethereum JSON-RPC. A Client
// wraps a single endpoint pinned to a block reference and classifies
// transport failures so callers can tell timeouts, refused connections, and
// malformed responses apart.
package rpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountState is the scalar state of one account at one block: wei balance
// and transaction count (nonce). An account the chain has never seen reports
// zero balance and zero nonce, which is a valid state, not an error.
type AccountState struct {
	Address common.Address
	Balance *big.Int
	Nonce   uint64
}

// Source identifies one side of a comparison: an endpoint plus the block
// reference its queries are pinned to.
type Source struct {
	Name  string
	URL   string
	Block BlockRef
}

// Label returns the name for logs and report headers, falling back to the URL.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.URL
}
