package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/zkaudit/zk-account-soundness/internal/compare"
)

// JSONReport is the machine-readable rendering. Field names are stable;
// integrations parse them.
type JSONReport struct {
	SourceA       string        `json:"sourceA"`
	SourceB       string        `json:"sourceB"`
	BlockA        string        `json:"blockA"`
	BlockB        string        `json:"blockB"`
	Timestamp     time.Time     `json:"timestamp"`
	Accounts      []JSONAccount `json:"accounts"`
	Counts        JSONCounts    `json:"counts"`
	OverallStatus string        `json:"overallStatus"`
	ElapsedMs     int64         `json:"elapsedMs"`
}

// JSONAccount is one account row. Balances are decimal strings so arbitrary
// precision survives JSON; a side that failed to fetch reports null scalars
// and a populated error field.
type JSONAccount struct {
	Address  string  `json:"address"`
	BalanceA *string `json:"balanceA"`
	BalanceB *string `json:"balanceB"`
	NonceA   *uint64 `json:"nonceA"`
	NonceB   *uint64 `json:"nonceB"`
	Outcome  string  `json:"outcome"`
	ErrorA   string  `json:"errorA,omitempty"`
	ErrorB   string  `json:"errorB,omitempty"`
}

// JSONCounts mirrors Counts with stable keys.
type JSONCounts struct {
	Match    int `json:"match"`
	Mismatch int `json:"mismatch"`
	Errors   int `json:"error"`
}

// RenderJSON writes the summary as indented JSON.
func RenderJSON(w io.Writer, s *RunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(convertToJSON(s))
}

// convertToJSON transforms the internal summary to the wire format.
func convertToJSON(s *RunSummary) *JSONReport {
	jr := &JSONReport{
		SourceA:   s.SourceA.URL,
		SourceB:   s.SourceB.URL,
		BlockA:    s.SourceA.Block.String(),
		BlockB:    s.SourceB.Block.String(),
		Timestamp: s.Timestamp,
		Accounts:  make([]JSONAccount, 0, len(s.Results)),
		Counts: JSONCounts{
			Match:    s.Counts.Match,
			Mismatch: s.Counts.Mismatch,
			Errors:   s.Counts.Errors,
		},
		OverallStatus: string(s.Overall),
		ElapsedMs:     s.Elapsed.Milliseconds(),
	}

	for _, r := range s.Results {
		jr.Accounts = append(jr.Accounts, convertAccount(r))
	}
	return jr
}

func convertAccount(r compare.AccountResult) JSONAccount {
	a := JSONAccount{
		Address: r.Address.Hex(),
		Outcome: string(r.Outcome),
	}

	if r.StateA != nil {
		balance, nonce := r.StateA.Balance.String(), r.StateA.Nonce
		a.BalanceA, a.NonceA = &balance, &nonce
	}
	if r.StateB != nil {
		balance, nonce := r.StateB.Balance.String(), r.StateB.Nonce
		a.BalanceB, a.NonceB = &balance, &nonce
	}
	if r.ErrA != nil {
		a.ErrorA = r.ErrA.Error()
	}
	if r.ErrB != nil {
		a.ErrorB = r.ErrB.Error()
	}
	return a
}
