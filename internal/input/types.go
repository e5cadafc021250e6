package input

import (
	"strings"

	"github.com/rotisserie/eris"
)

// #region mode
// Mode selects how a confidence stream is thresholded.
type Mode string

const (
	// SingleThreshold classifies each sample on its own.
	SingleThreshold Mode = "single"
	// ConsecutiveThreshold requires a full buffer of samples above threshold.
	ConsecutiveThreshold Mode = "consecutive"
)

// ParseMode accepts "single" or "consecutive", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case SingleThreshold:
		return SingleThreshold, nil
	case ConsecutiveThreshold:
		return ConsecutiveThreshold, nil
	}
	return "", eris.Errorf("unknown input mode %q", s)
}

// #endregion mode

// #region class
// Class is the classifier's current reading of the stream.
type Class string

const (
	Rest         Class = "rest"
	MotorImagery Class = "motor_imagery"
)

// #endregion class

// #region config
// ClassifierConfig holds the thresholding knobs.
type ClassifierConfig struct {
	Mode       Mode
	Threshold  float64 // sample must exceed this
	BufferSize int     // consecutive mode only
}

// DefaultClassifierConfig returns the study defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Mode:       SingleThreshold,
		Threshold:  0.7,
		BufferSize: 8,
	}
}

// #endregion config
