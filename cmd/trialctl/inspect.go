package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/med-material/HandStrengthener/internal/logging"
	"github.com/med-material/HandStrengthener/internal/state"
)

var (
	inspectLast    int
	inspectSession string
	inspectJSON    bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List stored sessions, or one session's decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(cfg.Store.Path)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if inspectSession != "" {
			return runDetailMode(out, store, inspectSession, inspectJSON)
		}
		return runListMode(out, store, inspectLast, inspectJSON)
	},
}

// #region list-mode

type listRow struct {
	SessionID string         `json:"session_id"`
	Mode      string         `json:"mode"`
	Total     int            `json:"total_trials"`
	Decisions int            `json:"decisions"`
	Outcomes  map[string]int `json:"outcomes"`
	StartedAt string         `json:"started_at"`
	EndedAt   string         `json:"ended_at,omitempty"`
	Forced    bool           `json:"forced"`
}

func runListMode(out io.Writer, store *state.Store, last int, jsonOut bool) error {
	sessions, err := store.ListSessions(last)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions found")
		return nil
	}

	rows := make([]listRow, len(sessions))
	for i, s := range sessions {
		r := listRow{
			SessionID: s.ID,
			Mode:      s.Mode,
			Total:     s.TotalTrials,
			Decisions: s.Decisions,
			Outcomes:  s.Outcomes,
			StartedAt: s.StartedAt.Format("2006-01-02T15:04:05Z"),
			Forced:    s.Forced,
		}
		if !s.Open() {
			r.EndedAt = s.EndedAt.Format("2006-01-02T15:04:05Z")
		}
		rows[i] = r
	}

	if jsonOut {
		return printJSON(out, rows)
	}

	fmt.Fprintf(out, "%-10s  %-10s  %9s  %6s  %6s  %9s  %-8s  %s\n",
		"Session", "Mode", "Decided", "Accept", "Reject", "Fabricate", "Status", "Started")
	fmt.Fprintf(out, "%-10s+-%-10s+-%9s+-%6s+-%6s+-%9s+-%-8s+-%s\n",
		"----------", "----------", "---------", "------", "------", "---------", "--------", "--------------------")
	for _, r := range rows {
		status := "open"
		switch {
		case r.EndedAt != "" && r.Forced:
			status = "ended"
		case r.EndedAt != "":
			status = "done"
		}
		fmt.Fprintf(out, "%-10s  %-10s  %4d/%-4d  %6d  %6d  %9d  %-8s  %s\n",
			shortID(r.SessionID), r.Mode, r.Decisions, r.Total,
			r.Outcomes["Accept"], r.Outcomes["Reject"], r.Outcomes["Fabricate"], status, r.StartedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	SessionID  string          `json:"session_id"`
	Mode       string          `json:"mode"`
	Total      int             `json:"total_trials"`
	Seed       uint64          `json:"seed"`
	Categories json.RawMessage `json:"categories,omitempty"`
	StartedAt  string          `json:"started_at"`
	EndedAt    string          `json:"ended_at,omitempty"`
	Forced     bool            `json:"forced"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	Decisions  []decisionRow   `json:"decisions"`
}

type decisionRow struct {
	Trial    int     `json:"trial"`
	Goal     string  `json:"goal"`
	Outcome  string  `json:"outcome"`
	Trigger  string  `json:"trigger"`
	Deadline float64 `json:"fabrication_deadline"`
	Elapsed  float64 `json:"window_elapsed"`
	Sequence int64   `json:"input_sequence,omitempty"`
	Source   string  `json:"input_source,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

func runDetailMode(out io.Writer, store *state.Store, sessionID string, jsonOut bool) error {
	sess, err := store.GetSession(sessionID)
	if err != nil {
		return err
	}
	decisions, err := store.ListDecisions(sessionID)
	if err != nil {
		return err
	}
	reasons, err := logging.ReadReasons(store.DB(), sessionID)
	if err != nil {
		return err
	}

	d := detailOutput{
		SessionID: sess.ID,
		Mode:      sess.Mode,
		Total:     sess.TotalTrials,
		Seed:      sess.Seed,
		StartedAt: sess.StartedAt.Format("2006-01-02T15:04:05Z"),
		Forced:    sess.Forced,
	}
	if sess.Categories != "" {
		d.Categories = json.RawMessage(sess.Categories)
	}
	if sess.StatsJSON != "" {
		d.Stats = json.RawMessage(sess.StatsJSON)
	}
	if !sess.Open() {
		d.EndedAt = sess.EndedAt.Format("2006-01-02T15:04:05Z")
	}
	for _, rec := range decisions {
		d.Decisions = append(d.Decisions, decisionRow{
			Trial:    rec.Trial,
			Goal:     rec.DesignedGoal,
			Outcome:  rec.RealizedOutcome,
			Trigger:  rec.Trigger,
			Deadline: rec.FabricationDeadline,
			Elapsed:  rec.WindowElapsed,
			Sequence: rec.InputSequence,
			Source:   rec.InputSource,
			Reason:   reasons[rec.Trial],
		})
	}

	if jsonOut {
		return printJSON(out, d)
	}

	fmt.Fprintf(out, "Session:    %s\n", d.SessionID)
	fmt.Fprintf(out, "Mode:       %s\n", d.Mode)
	fmt.Fprintf(out, "Seed:       %d\n", d.Seed)
	fmt.Fprintf(out, "Started:    %s\n", d.StartedAt)
	if d.EndedAt != "" {
		fmt.Fprintf(out, "Ended:      %s (forced=%v)\n", d.EndedAt, d.Forced)
	}
	fmt.Fprintf(out, "Decided:    %d/%d\n\n", len(d.Decisions), d.Total)

	fmt.Fprintf(out, "%-6s| %-10s| %-10s| %-12s| %8s| %8s| %s\n", "Trial", "Goal", "Outcome", "Trigger", "Deadline", "Elapsed", "Reason")
	fmt.Fprintf(out, "%-6s+%-11s+%-11s+%-13s+%9s+%9s+%s\n",
		"------", "-----------", "-----------", "-------------", "---------", "---------", "--------------------")
	for _, r := range d.Decisions {
		fmt.Fprintf(out, "%-6d| %-10s| %-10s| %-12s| %8.3f| %8.3f| %s\n",
			r.Trial, r.Goal, r.Outcome, r.Trigger, r.Deadline, r.Elapsed, r.Reason)
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal json")
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

func init() {
	inspectCmd.Flags().IntVar(&inspectLast, "last", 20, "show N most recent sessions")
	inspectCmd.Flags().StringVar(&inspectSession, "session", "", "show one session's decisions")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON instead of table")
	rootCmd.AddCommand(inspectCmd)
}
