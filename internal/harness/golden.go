package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/storeclone/internal/engine"
)

// Snapshot renders a result as stable text: one line per run, one line per
// outcome, the injected failures and resets in order, then both ledger
// sheets with tab-separated cells.
//
// Timestamps and run ids are left out so snapshots only change when
// behavior does.
func Snapshot(r *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", r.Name)
	for _, line := range r.transcript {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, s := range r.Sheets {
		fmt.Fprintf(&b, "sheet %s:\n", s.Name)
		if len(s.Header) > 0 {
			fmt.Fprintf(&b, "  %s\n", strings.Join(s.Header, "\t"))
		}
		for _, row := range s.Rows {
			fmt.Fprintf(&b, "  %s\n", strings.Join(row, "\t"))
		}
	}
	return []byte(b.String())
}

func runLine(n int, r *engine.Report) string {
	return fmt.Sprintf("run %d: window=%s discovered=%d added=%d processed=%d succeeded=%d failed=%d skipped=%d archived=%s",
		n, orDash(r.Window), r.Discovered, len(r.Added), r.Processed, r.Succeeded, r.Failed, r.Skipped,
		orDash(strings.Join(r.Archived, ",")))
}

func outcomeLine(o engine.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  #%d %s %s %s %s", o.Seq, o.ProductID, orDash(o.Store), o.Action, orDash(o.From))
	if o.To != "" {
		b.WriteString(" -> " + o.To)
	}
	if o.Reason != "" {
		b.WriteString(" (" + o.Reason + ")")
	}
	if o.Error != "" {
		b.WriteString(" !error")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RunWithGolden runs a scenario, fails t on any expectation or assertion
// error and compares the snapshot with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run scenario %s: %v", s.Name, err)
	}
	for _, e := range result.Errors {
		t.Errorf("%s: %s", s.Name, e)
	}
	AssertGolden(t, s.Name, result)
	return result
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(result))
}
