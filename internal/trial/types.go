package trial

import (
	"strings"

	"github.com/rotisserie/eris"
)

// #region outcome
// Outcome names a trial category. The same vocabulary is used for designed
// goals handed out by the allocator and for realized outcomes committed after
// policy resolution.
type Outcome string

const (
	Accept    Outcome = "Accept"
	Reject    Outcome = "Reject"
	Fabricate Outcome = "Fabricate"
)

// Outcomes lists the known outcomes in reporting order.
var Outcomes = []Outcome{Accept, Reject, Fabricate}

// ParseOutcome maps a case-insensitive name to a known Outcome.
func ParseOutcome(s string) (Outcome, error) {
	for _, o := range Outcomes {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", eris.Errorf("unknown outcome %q", s)
}

// Known reports whether o is one of Outcomes.
func (o Outcome) Known() bool {
	for _, k := range Outcomes {
		if o == k {
			return true
		}
	}
	return false
}

// #endregion outcome

// #region validity
// Validity is the verdict an upstream classifier attaches to an input.
type Validity string

const (
	Accepted Validity = "Accepted"
	Rejected Validity = "Rejected"
)

// ParseValidity maps a case-insensitive name to a Validity.
func ParseValidity(s string) (Validity, error) {
	switch {
	case strings.EqualFold(s, string(Accepted)):
		return Accepted, nil
	case strings.EqualFold(s, string(Rejected)):
		return Rejected, nil
	}
	return "", eris.Errorf("unknown validity %q", s)
}

// #endregion validity

// #region session-state
// SessionState is the controller's run state.
type SessionState string

const (
	Stopped SessionState = "Stopped"
	Running SessionState = "Running"
	Paused  SessionState = "Paused"
)

// #endregion session-state

// #region input-source
// InputSource identifies the producer of an InputEvent. The core never
// branches on it; it is carried through to decisions for logging.
type InputSource string

const (
	SourceUnknown      InputSource = ""
	SourceKeySequence  InputSource = "key_sequence"
	SourceBlink        InputSource = "blink"
	SourceMotorImagery InputSource = "motor_imagery"
	SourceSimulated    InputSource = "simulated"
	SourceRemote       InputSource = "remote"
)

// #endregion input-source

// #region input-event
// InputEvent is one classified input delivered by an upstream producer.
type InputEvent struct {
	Validity   Validity
	Confidence float64 // [0, 1]
	Sequence   int64   // strictly increasing per session
	Source     InputSource
}

// #endregion input-event
