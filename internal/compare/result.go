// Package compare fetches the same accounts from two sources and classifies
// each per-account outcome. Fetches run concurrently under a configurable
// bound; results come back in input order regardless of completion order.
package compare

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/zkaudit/zk-account-soundness/internal/rpc"
)

// Outcome labels one account comparison. The values are stable strings that
// appear verbatim in reports.
type Outcome string

const (
	OutcomeMatch           Outcome = "MATCH"
	OutcomeMismatchBalance Outcome = "MISMATCH_BALANCE"
	OutcomeMismatchNonce   Outcome = "MISMATCH_NONCE"
	OutcomeMismatchBoth    Outcome = "MISMATCH_BOTH"
	OutcomeFetchError      Outcome = "FETCH_ERROR"
)

// AccountResult is the two-sided fetch result for a single input account.
// Exactly one result exists per input position; a duplicated input address
// yields one result per occurrence.
type AccountResult struct {
	Address common.Address
	StateA  *rpc.AccountState
	StateB  *rpc.AccountState
	ErrA    error
	ErrB    error
	Outcome Outcome
}

// Classify derives the outcome for one account from its two fetches. Equal
// scalars mean MATCH; comparison is exact integer equality, no tolerance.
// Any fetch failure dominates the data comparison.
func Classify(stateA, stateB *rpc.AccountState, errA, errB error) Outcome {
	if errA != nil || errB != nil || stateA == nil || stateB == nil {
		return OutcomeFetchError
	}

	balanceEqual := stateA.Balance.Cmp(stateB.Balance) == 0
	nonceEqual := stateA.Nonce == stateB.Nonce

	switch {
	case balanceEqual && nonceEqual:
		return OutcomeMatch
	case !balanceEqual && !nonceEqual:
		return OutcomeMismatchBoth
	case !balanceEqual:
		return OutcomeMismatchBalance
	default:
		return OutcomeMismatchNonce
	}
}
