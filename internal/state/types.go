package state

import "time"

// #region session-record
// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID          string
	Mode        string
	TotalTrials int
	Seed        uint64
	Categories  string // JSON
	StartedAt   time.Time
	EndedAt     time.Time // zero while the session is open
	Forced      bool
	StatsJSON   string
}

// Open reports whether the session has not ended yet.
func (r SessionRecord) Open() bool {
	return r.EndedAt.IsZero()
}

// #endregion session-record

// #region decision-record
// DecisionRecord is one committed trial.
type DecisionRecord struct {
	SessionID           string
	Trial               int
	DesignedGoal        string
	RealizedOutcome     string
	Trigger             string
	FabricationDeadline float64
	WindowElapsed       float64
	InputSequence       int64   // 0 when no input decided the trial
	InputConfidence     float64 // 0 when no input decided the trial
	InputSource         string
	CreatedAt           time.Time
}

// #endregion decision-record

// #region session-summary
// SessionSummary pairs a session with its decision tallies.
type SessionSummary struct {
	SessionRecord
	Decisions int
	Outcomes  map[string]int
}

// #endregion session-summary
