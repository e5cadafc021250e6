package session

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/med-material/HandStrengthener/internal/allocator"
	"github.com/med-material/HandStrengthener/internal/clock"
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region errors
var (
	ErrAlreadyRunning  = eris.New("session already running")
	ErrNotRunning      = eris.New("session not running")
	ErrSessionFinished = eris.New("session finished")
	ErrLoopClosed      = eris.New("session loop closed")
)

// #endregion errors

// #region config
// Config is everything a Controller needs to lay out and pace a session.
type Config struct {
	Mode        policy.Mode
	TotalTrials int
	Categories  []allocator.Category
	Clock       clock.Config
	Seed        uint64 // 0 picks a random seed
}

// Validate checks the parts the allocator and clock do not.
func (c Config) Validate() error {
	known := false
	for _, m := range policy.Modes {
		if c.Mode == m {
			known = true
			break
		}
	}
	if !known {
		return eris.Wrapf(allocator.ErrConfig, "unknown mode %q", c.Mode)
	}
	if c.TotalTrials <= 0 {
		return eris.Wrapf(allocator.ErrConfig, "total trials %d must be positive", c.TotalTrials)
	}
	return c.Clock.Validate()
}

// #endregion config

// #region command
// Command is an operator command addressed to a running session.
type Command string

const (
	CmdRun    Command = "run"
	CmdPause  Command = "pause"
	CmdResume Command = "resume"
	CmdEnd    Command = "end"
)

// Commands lists every Command.
var Commands = []Command{CmdRun, CmdPause, CmdResume, CmdEnd}

// ParseCommand maps a case-insensitive name to a Command.
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Commands {
		if s == string(c) {
			return c, nil
		}
	}
	return "", eris.Errorf("unknown command %q", s)
}

// #endregion command

// #region snapshot
// Snapshot is a read-only view of the controller, safe to hand to other
// goroutines.
type Snapshot struct {
	SessionID         string
	State             trial.SessionState
	Mode              policy.Mode
	Phase             clock.Phase
	Finished          bool
	Index             int
	Total             int
	Goal              trial.Outcome // empty unless a window is open
	InterTrialElapsed float64
	WindowElapsed     float64
	RemainingCounts   map[trial.Outcome]int
	ResultCounts      map[trial.Outcome]int
	Rates             map[trial.Outcome]float64
}

// #endregion snapshot
