// Package report aggregates comparison results into a run summary and
// renders it, either as stable machine-readable JSON or as a colored table
// for humans. Both renderings are views over the same RunSummary.
package report

import (
	"time"

	"github.com/zkaudit/zk-account-soundness/internal/compare"
	"github.com/zkaudit/zk-account-soundness/internal/rpc"
)

// OverallStatus summarizes a whole run.
type OverallStatus string

const (
	StatusOK       OverallStatus = "OK"
	StatusMismatch OverallStatus = "MISMATCH"
)

// Counts breaks results down by outcome class. Fetch failures are counted
// apart from data mismatches, but either makes the run a MISMATCH.
type Counts struct {
	Match    int
	Mismatch int
	Errors   int
}

// RunSummary is the complete record of one comparison run. Results keep
// input order. Timestamp is the UTC run start, captured once by the caller
// before the first fetch.
type RunSummary struct {
	SourceA   rpc.Source
	SourceB   rpc.Source
	Timestamp time.Time
	Elapsed   time.Duration
	Results   []compare.AccountResult
	Counts    Counts
	Overall   OverallStatus
}

// Build aggregates per-account results into a RunSummary. startedAt is the
// run start; elapsed is measured from it.
func Build(sourceA, sourceB rpc.Source, results []compare.AccountResult, startedAt time.Time) *RunSummary {
	s := &RunSummary{
		SourceA:   sourceA,
		SourceB:   sourceB,
		Timestamp: startedAt.UTC(),
		Elapsed:   time.Since(startedAt),
		Results:   results,
		Overall:   StatusOK,
	}

	for _, r := range results {
		switch r.Outcome {
		case compare.OutcomeMatch:
			s.Counts.Match++
		case compare.OutcomeFetchError:
			s.Counts.Errors++
		default:
			s.Counts.Mismatch++
		}
	}

	if s.Counts.Mismatch > 0 || s.Counts.Errors > 0 {
		s.Overall = StatusMismatch
	}
	return s
}
