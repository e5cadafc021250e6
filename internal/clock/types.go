package clock

import "github.com/rotisserie/eris"

// #region phase
// Phase is the clock's position in the trial cycle.
type Phase string

const (
	// Halted is the initial phase and the phase after the last trial.
	Halted Phase = "halted"
	// InterTrial counts down the gap before the next window.
	InterTrial Phase = "inter_trial"
	// Open is the input window.
	Open Phase = "open"
	// Closed is entered when the clock is stopped before trials ran out.
	Closed Phase = "closed"
)

// #endregion phase

// #region signal
// Signal reports a phase transition caused by a Tick.
type Signal int

const (
	SignalNone Signal = iota
	SignalWindowOpened
	SignalSessionEnded
)

func (s Signal) String() string {
	switch s {
	case SignalWindowOpened:
		return "window_opened"
	case SignalSessionEnded:
		return "session_ended"
	default:
		return "none"
	}
}

// #endregion signal

// #region config
// Config holds the timing targets in seconds.
type Config struct {
	InterTrialSeconds   float64
	WindowSeconds       float64
	FabAlarmBase        float64 // centre of the fabrication deadline draw
	FabAlarmVariability float64 // half-width of the draw
}

// DefaultConfig mirrors the study's usual cadence.
func DefaultConfig() Config {
	return Config{
		InterTrialSeconds:   4.0,
		WindowSeconds:       1.0,
		FabAlarmBase:        0.5,
		FabAlarmVariability: 0.2,
	}
}

// Validate rejects timings the clock cannot run.
func (c Config) Validate() error {
	if c.InterTrialSeconds < 0 {
		return eris.Wrapf(ErrInvalidDuration, "inter-trial seconds %v", c.InterTrialSeconds)
	}
	if c.WindowSeconds <= 0 {
		return eris.Wrapf(ErrInvalidDuration, "window seconds %v", c.WindowSeconds)
	}
	if c.FabAlarmVariability < 0 {
		return eris.Wrapf(ErrInvalidDuration, "fabrication variability %v", c.FabAlarmVariability)
	}
	return nil
}

// #endregion config

// #region errors
var (
	// ErrInvalidDuration is returned for negative or zero timing targets.
	ErrInvalidDuration = eris.New("invalid duration")
	// ErrNotOpen is returned by Close when no window is open.
	ErrNotOpen = eris.New("window not open")
)

// #endregion errors
