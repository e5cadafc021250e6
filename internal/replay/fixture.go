package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/med-material/HandStrengthener/internal/allocator"
	"github.com/med-material/HandStrengthener/internal/clock"
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/session"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region fixture-types

// Fixture is a scripted session: a configuration, the ticks, inputs and
// commands to feed it, and the outcomes it must produce.
type Fixture struct {
	Description string          `json:"description" yaml:"description"`
	Config      FixtureConfig   `json:"config" yaml:"config"`
	Steps       []Step          `json:"steps" yaml:"steps"`
	Expected    []Expected      `json:"expected" yaml:"expected"`
	ExpectEnd   *ExpectedEnding `json:"expect_end,omitempty" yaml:"expect_end,omitempty"`
}

// FixtureConfig mirrors session.Config with serialization tags.
type FixtureConfig struct {
	Mode                string               `json:"mode" yaml:"mode"`
	TotalTrials         int                  `json:"total_trials" yaml:"total_trials"`
	Seed                uint64               `json:"seed" yaml:"seed"`
	InterTrialSeconds   float64              `json:"inter_trial_seconds" yaml:"inter_trial_seconds"`
	WindowSeconds       float64              `json:"window_seconds" yaml:"window_seconds"`
	FabAlarmBase        float64              `json:"fab_alarm_base" yaml:"fab_alarm_base"`
	FabAlarmVariability float64              `json:"fab_alarm_variability" yaml:"fab_alarm_variability"`
	Categories          []allocator.Category `json:"categories" yaml:"categories"`
}

// Step is one scripted action. Exactly one field should be set. Repeat runs
// a tick step several times.
type Step struct {
	Tick                 *float64      `json:"tick,omitempty" yaml:"tick,omitempty"`
	Repeat               int           `json:"repeat,omitempty" yaml:"repeat,omitempty"`
	Input                *FixtureInput `json:"input,omitempty" yaml:"input,omitempty"`
	Command              string        `json:"command,omitempty" yaml:"command,omitempty"`
	SetWindowSeconds     *float64      `json:"set_window_seconds,omitempty" yaml:"set_window_seconds,omitempty"`
	SetInterTrialSeconds *float64      `json:"set_inter_trial_seconds,omitempty" yaml:"set_inter_trial_seconds,omitempty"`
}

// FixtureInput mirrors trial.InputEvent with serialization tags.
type FixtureInput struct {
	Validity   string  `json:"validity" yaml:"validity"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Sequence   int64   `json:"sequence" yaml:"sequence"`
	Source     string  `json:"source,omitempty" yaml:"source,omitempty"`
}

// Expected is the outcome one trial must commit. Empty fields are not checked.
type Expected struct {
	Trial   int    `json:"trial" yaml:"trial"`
	Goal    string `json:"goal,omitempty" yaml:"goal,omitempty"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Trigger string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
}

// ExpectedEnding checks how the session ended.
type ExpectedEnding struct {
	Forced bool `json:"forced" yaml:"forced"`
	Index  int  `json:"index" yaml:"index"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a JSON or YAML fixture, chosen by file extension.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read fixture %s", path)
	}
	var f Fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "parse fixture %s", path)
	}
	return &f, nil
}

// ToSessionConfig converts the fixture config to a session.Config.
func (fc *FixtureConfig) ToSessionConfig() (session.Config, error) {
	mode, err := policy.ParseMode(fc.Mode)
	if err != nil {
		return session.Config{}, eris.Wrap(err, "fixture mode")
	}
	return session.Config{
		Mode:        mode,
		TotalTrials: fc.TotalTrials,
		Categories:  fc.Categories,
		Seed:        fc.Seed,
		Clock: clock.Config{
			InterTrialSeconds:   fc.InterTrialSeconds,
			WindowSeconds:       fc.WindowSeconds,
			FabAlarmBase:        fc.FabAlarmBase,
			FabAlarmVariability: fc.FabAlarmVariability,
		},
	}, nil
}

// ToInputEvent converts a FixtureInput to a trial.InputEvent. The validity
// string is passed through unparsed when it is not recognised so that the
// controller's own validation sees it.
func (fi *FixtureInput) ToInputEvent() trial.InputEvent {
	v, err := trial.ParseValidity(fi.Validity)
	if err != nil {
		v = trial.Validity(fi.Validity)
	}
	return trial.InputEvent{
		Validity:   v,
		Confidence: fi.Confidence,
		Sequence:   fi.Sequence,
		Source:     trial.InputSource(fi.Source),
	}
}

// #endregion fixture-loader
