package events

import (
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region kind
// Kind names an outbound event type.
type Kind string

const (
	KindWindowOpened        Kind = "window_opened"
	KindWindowClosed        Kind = "window_closed"
	KindDecisionMade        Kind = "decision_made"
	KindInputRecycled       Kind = "input_recycled"
	KindRatesUpdated        Kind = "rates_updated"
	KindSessionStateChanged Kind = "session_state_changed"
	KindTimersUpdated       Kind = "timers_updated"
	KindSessionEnded        Kind = "session_ended"
)

// Event is anything the session core emits.
type Event interface {
	Kind() Kind
}

// #endregion kind

// #region window-events
// WindowOpened is emitted when an input window opens with its goal cached.
type WindowOpened struct {
	Trial               int // 0-based trial index
	Goal                trial.Outcome
	WindowSeconds       float64
	FabricationDeadline float64
}

// WindowClosed is emitted after the trial's outcome is committed.
type WindowClosed struct {
	Trial   int
	Outcome trial.Outcome
	Credit  float64 // unused window seconds carried into the next gap
}

func (WindowOpened) Kind() Kind { return KindWindowOpened }
func (WindowClosed) Kind() Kind { return KindWindowClosed }

// #endregion window-events

// #region decision-events
// DecisionMade records the single outcome committed for a trial.
type DecisionMade struct {
	Trial               int
	DesignedGoal        trial.Outcome
	RealizedOutcome     trial.Outcome
	FabricationDeadline float64
	WindowElapsed       float64
	Trigger             policy.Trigger
	Input               *trial.InputEvent // nil unless Trigger is input
	Mode                policy.Mode
}

// InputRecycled is emitted when input reached an open window but left the
// trial undecided.
type InputRecycled struct {
	Trial int
	Goal  trial.Outcome
	Input trial.InputEvent
}

// RatesUpdated carries realized-outcome rates after each commit.
type RatesUpdated struct {
	AcceptRate      float64
	RejectRate      float64
	FabricateRate   float64
	RemainingCounts map[trial.Outcome]int
}

func (DecisionMade) Kind() Kind  { return KindDecisionMade }
func (InputRecycled) Kind() Kind { return KindInputRecycled }
func (RatesUpdated) Kind() Kind  { return KindRatesUpdated }

// #endregion decision-events

// #region session-events
// SessionStateChanged is emitted on every Stopped/Running/Paused transition.
type SessionStateChanged struct {
	From trial.SessionState
	To   trial.SessionState
}

// TimersUpdated is emitted once per processed tick, for display only.
type TimersUpdated struct {
	Phase             string
	InterTrialElapsed float64
	WindowElapsed     float64
}

// Stats is the statistics snapshot attached to SessionEnded.
type Stats struct {
	Index           int                       `json:"index"`
	Total           int                       `json:"total"`
	RemainingCounts map[trial.Outcome]int     `json:"remaining_counts"`
	ResultCounts    map[trial.Outcome]int     `json:"result_counts"`
	Rates           map[trial.Outcome]float64 `json:"rates"`
}

// SessionEnded is emitted once, when trials run out or the session is ended.
type SessionEnded struct {
	Forced bool // ended by command rather than exhaustion
	Stats  Stats
}

func (SessionStateChanged) Kind() Kind { return KindSessionStateChanged }
func (TimersUpdated) Kind() Kind       { return KindTimersUpdated }
func (SessionEnded) Kind() Kind        { return KindSessionEnded }

// #endregion session-events

// #region sink
// Sink receives events from the session core. Publish must not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(ev).
func (f SinkFunc) Publish(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// #endregion sink
