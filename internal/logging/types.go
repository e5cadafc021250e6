package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	SessionID   string
	Trial       int
	TriggerType string
	RecordJSON  string // DecisionRecord
	Outcome     string
	Reason      string
	CreatedAt   time.Time
}

// #endregion decision-entry

// #region decision-record
// DecisionRecord captures everything the policy saw when it resolved a trial.
// Serialized as JSON into decision_log.record_json so a trial can be
// re-resolved offline.
type DecisionRecord struct {
	Trial int    `json:"trial"`
	Mode  string `json:"mode"`

	DesignedGoal    string `json:"designed_goal"`
	RealizedOutcome string `json:"realized_outcome"`
	Trigger         string `json:"trigger"`

	// Timing at decision time
	FabricationDeadline float64 `json:"fabrication_deadline"`
	WindowElapsed       float64 `json:"window_elapsed"`

	// Deciding input, if any
	Input *DecisionInput `json:"input,omitempty"`
}

// DecisionInput is the input event that decided a trial.
type DecisionInput struct {
	Validity   string  `json:"validity"`
	Confidence float64 `json:"confidence"`
	Sequence   int64   `json:"sequence"`
	Source     string  `json:"source,omitempty"`
}

// #endregion decision-record
