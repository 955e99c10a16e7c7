package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/zkaudit/zk-account-soundness/internal/compare"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// DisableColors turns off ANSI output, for non-TTY destinations.
func DisableColors() {
	color.NoColor = true
}

// RenderTerminal writes a human-readable summary with a per-account table
// and a final verdict line.
func RenderTerminal(w io.Writer, s *RunSummary) error {
	fmt.Fprintf(w, "\n%s\n\n", bold("Account State Comparison"))
	fmt.Fprintf(w, "  Source A: %s (block %s)\n", cyan(s.SourceA.Label()), s.SourceA.Block)
	fmt.Fprintf(w, "  Source B: %s (block %s)\n", cyan(s.SourceB.Label()), s.SourceB.Block)
	fmt.Fprintf(w, "  Accounts: %d   Time: %s   Elapsed: %dms\n\n",
		len(s.Results), s.Timestamp.Format("2006-01-02 15:04:05 UTC"), s.Elapsed.Milliseconds())

	headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()

	tbl := table.New("Account", "Balance A", "Balance B", "Nonce A", "Nonce B", "Outcome")
	tbl.WithHeaderFormatter(headerFmt).WithWriter(w)

	for _, r := range s.Results {
		balanceA, nonceA := "—", "—"
		if r.StateA != nil {
			balanceA = r.StateA.Balance.String()
			nonceA = fmt.Sprintf("%d", r.StateA.Nonce)
		}
		balanceB, nonceB := "—", "—"
		if r.StateB != nil {
			balanceB = r.StateB.Balance.String()
			nonceB = fmt.Sprintf("%d", r.StateB.Nonce)
		}
		tbl.AddRow(r.Address.Hex(), balanceA, balanceB, nonceA, nonceB, formatOutcome(r.Outcome))
	}

	tbl.Print()
	renderVerdict(w, s)
	return nil
}

func formatOutcome(o compare.Outcome) string {
	switch o {
	case compare.OutcomeMatch:
		return green(string(o))
	case compare.OutcomeFetchError:
		return yellow(string(o))
	default:
		return red(string(o))
	}
}

func renderVerdict(w io.Writer, s *RunSummary) {
	fmt.Fprintln(w)
	switch {
	case s.Overall == StatusOK:
		fmt.Fprintf(w, "%s all %d accounts match\n", green("✓"), s.Counts.Match)
	case s.Counts.Mismatch > 0:
		fmt.Fprintf(w, "%s STATE MISMATCH: %d of %d accounts diverge\n",
			red("✗"), s.Counts.Mismatch, len(s.Results))
	default:
		fmt.Fprintf(w, "%s %d of %d accounts could not be fetched\n",
			yellow("⚠"), s.Counts.Errors, len(s.Results))
	}

	if s.Counts.Errors > 0 {
		for _, r := range s.Results {
			if r.Outcome != compare.OutcomeFetchError {
				continue
			}
			if r.ErrA != nil {
				fmt.Fprintf(w, "  %s %s: %v\n", yellow("!"), r.Address.Hex(), r.ErrA)
			}
			if r.ErrB != nil {
				fmt.Fprintf(w, "  %s %s: %v\n", yellow("!"), r.Address.Hex(), r.ErrB)
			}
		}
	}
}
