package compare

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerwatch/log/v3"
	"golang.org/x/sync/errgroup"

	"github.com/zkaudit/zk-account-soundness/internal/rpc"
)

// DefaultMaxInFlight bounds concurrent fetches when the caller does not.
const DefaultMaxInFlight = 8

// Reader is the account state access the comparator needs from each side.
// *rpc.Client satisfies it.
type Reader interface {
	Name() string
	AccountState(ctx context.Context, addr common.Address) (*rpc.AccountState, time.Duration, error)
}

// Comparator fetches every input account from A and B and classifies each
// pair. It holds no state between runs.
type Comparator struct {
	A, B        Reader
	MaxInFlight int
}

// Run fetches all accounts from both sides and returns one classified result
// per input, in input order. Individual fetch failures are recorded in the
// result and never abort the run; only cancellation does, in which case no
// results are returned.
func (c *Comparator) Run(ctx context.Context, addrs []common.Address) ([]AccountResult, error) {
	results := make([]AccountResult, len(addrs))
	var mu sync.Mutex

	limit := c.MaxInFlight
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	// Two fetch tasks per account, one per side. Writes are index-targeted,
	// so completion order never affects result order.
	for i, addr := range addrs {
		i, addr := i, addr // capture loop vars
		results[i].Address = addr

		g.Go(func() error {
			state, _, err := c.A.AccountState(gctx, addr)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			results[i].StateA, results[i].ErrA = state, err
			mu.Unlock()
			return nil
		})

		g.Go(func() error {
			state, _, err := c.B.AccountState(gctx, addr)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			results[i].StateB, results[i].ErrB = state, err
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range results {
		r := &results[i]
		r.Outcome = Classify(r.StateA, r.StateB, r.ErrA, r.ErrB)

		switch r.Outcome {
		case OutcomeMatch:
		case OutcomeFetchError:
			if r.ErrA != nil {
				log.Warn("account fetch failed", "source", c.A.Name(), "address", r.Address, "err", r.ErrA)
			}
			if r.ErrB != nil {
				log.Warn("account fetch failed", "source", c.B.Name(), "address", r.Address, "err", r.ErrB)
			}
		default:
			c.logMismatch(r)
		}
	}

	return results, nil
}

func (c *Comparator) logMismatch(r *AccountResult) {
	if r.Outcome == OutcomeMismatchBalance || r.Outcome == OutcomeMismatchBoth {
		log.Warn("balance mismatch", "address", r.Address, c.A.Name(), r.StateA.Balance, c.B.Name(), r.StateB.Balance)
	}
	if r.Outcome == OutcomeMismatchNonce || r.Outcome == OutcomeMismatchBoth {
		log.Warn("nonce mismatch", "address", r.Address, c.A.Name(), r.StateA.Nonce, c.B.Name(), r.StateB.Nonce)
	}
}
