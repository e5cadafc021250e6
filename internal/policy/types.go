package policy

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region mode
// Mode selects how received input is reconciled with the designed goal.
type Mode string

const (
	// Strict reports genuine input validity; only a Fabricate goal overrides it.
	Strict Mode = "strict"
	// MeetGoals forces Reject and Fabricate goals and only accepts an Accept
	// goal on Accepted input. Rejected input on an Accept goal is recycled.
	MeetGoals Mode = "meet_goals"
	// Loose acknowledges any input as Accept.
	Loose Mode = "loose"
)

// Modes lists the supported modes.
var Modes = []Mode{Strict, MeetGoals, Loose}

// ParseMode accepts the mode names case-insensitively, with '-' or '_'.
func ParseMode(s string) (Mode, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, m := range Modes {
		if norm == string(m) {
			return m, nil
		}
	}
	return "", eris.Errorf("unknown policy mode %q", s)
}

// #endregion mode

// #region trigger
// Trigger names what resolved a trial.
type Trigger string

const (
	TriggerNone        Trigger = ""
	TriggerInput       Trigger = "input"
	TriggerFabrication Trigger = "fabrication"
	TriggerExpiry      Trigger = "expiry"
)

// #endregion trigger

// #region resolution
// Resolution is the output of Resolve.
type Resolution struct {
	Decided  bool
	Outcome  trial.Outcome // empty unless Decided
	Trigger  Trigger
	Recycled bool // input was consumed without deciding the trial
	Reason   string
}

// #endregion resolution
