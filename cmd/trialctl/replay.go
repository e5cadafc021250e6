package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/logging"
	"github.com/med-material/HandStrengthener/internal/replay"
	"github.com/med-material/HandStrengthener/internal/state"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// errDiverged is returned when a replay or audit finds mismatches.
var errDiverged = eris.New("replay diverged from expectations")

var replayCmd = &cobra.Command{
	Use:   "replay <fixture>...",
	Short: "Replay scripted fixtures through a fresh controller",
	Long: "Each fixture (JSON or YAML) carries a seed, a session config and a script of " +
		"ticks, inputs and commands. Decisions are compared against the fixture's expected outcomes.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		diverged := false
		for _, path := range args {
			n, err := replayFixture(cmd.OutOrStdout(), path)
			if err != nil {
				return err
			}
			if n > 0 {
				diverged = true
			}
		}
		if diverged {
			return errDiverged
		}
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Re-resolve a stored session's decisions offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(cfg.Store.Path)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close()

		recs, err := logging.ReadDecisions(store.DB(), args[0])
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return eris.Errorf("no decisions logged for session %s", args[0])
		}
		ms := replay.Audit(recs)
		out := cmd.OutOrStdout()
		for _, m := range ms {
			fmt.Fprintln(out, m.String())
		}
		fmt.Fprintf(out, "\nSummary: %d total, %d match, %d diverge\n", len(recs), len(recs)-countTrials(ms), countTrials(ms))
		if len(ms) > 0 {
			return errDiverged
		}
		return nil
	},
}

// #region output
// replayFixture runs one fixture and prints its comparison table. It returns
// the number of mismatches.
func replayFixture(out io.Writer, path string) (int, error) {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return 0, err
	}
	res, err := replay.Run(f, zap.L().Named("replay"))
	if err != nil {
		return 0, eris.Wrapf(err, "replay %s", path)
	}

	fmt.Fprintf(out, "== %s", path)
	if f.Description != "" {
		fmt.Fprintf(out, ": %s", f.Description)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%-6s| %-10s| %-10s| %-12s| %s\n", "Trial", "Goal", "Outcome", "Trigger", "Match")
	fmt.Fprintf(out, "%-6s+%-11s+%-11s+%-13s+%s\n", "------", "-----------", "-----------", "-------------", "------")

	ms := replay.Compare(f, res)
	bad := make(map[int]bool, len(ms))
	for _, m := range ms {
		bad[m.Trial] = true
	}
	for _, d := range res.Decisions {
		match := "OK"
		if bad[d.Trial] {
			match = "DIFF"
		}
		fmt.Fprintf(out, "%-6d| %-10s| %-10s| %-12s| %s\n", d.Trial, d.DesignedGoal, d.RealizedOutcome, d.Trigger, match)
	}

	s := replay.Summarize(res)
	fmt.Fprintf(out, "\nSummary: %d decided of %d, %d recycled, accept=%d reject=%d fabricate=%d",
		s.Decided, s.TotalTrials, s.Recycled,
		s.ByOutcome[trial.Accept], s.ByOutcome[trial.Reject], s.ByOutcome[trial.Fabricate])
	if s.Ended {
		fmt.Fprintf(out, ", ended (forced=%v)", s.Forced)
	}
	fmt.Fprintln(out)

	for _, se := range res.StepErrors {
		fmt.Fprintf(out, "  step %d refused: %v\n", se.Step, se.Err)
	}
	for _, m := range ms {
		fmt.Fprintf(out, "  mismatch %s\n", m.String())
	}
	fmt.Fprintln(out)
	return len(ms), nil
}

func countTrials(ms []replay.Mismatch) int {
	seen := make(map[int]bool, len(ms))
	for _, m := range ms {
		seen[m.Trial] = true
	}
	return len(seen)
}

// #endregion output

func init() {
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(auditCmd)
}
