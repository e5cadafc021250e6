package replay

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/events"
	"github.com/med-material/HandStrengthener/internal/session"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region types
// StepError records a step the controller refused. Refusals are part of a
// replay's result, not a failure of the replay itself.
type StepError struct {
	Step int
	Err  error
}

// Result is everything a replay produced.
type Result struct {
	Decisions  []events.DecisionMade
	Events     []events.Event
	StepErrors []StepError
	Ended      *events.SessionEnded
	Final      session.Snapshot
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTrials int
	Decided     int
	Recycled    int
	ByOutcome   map[trial.Outcome]int
	ByTrigger   map[string]int
	Ended       bool
	Forced      bool
}

// Mismatch is one difference between a fixture's expectations and a result.
type Mismatch struct {
	Trial int
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("trial %d: %s want %q got %q", m.Trial, m.Field, m.Want, m.Got)
}

// #endregion types

// #region replay
// Run feeds the fixture's steps to a fresh controller, in order, on the
// calling goroutine. log may be nil.
func Run(f *Fixture, log *zap.Logger) (*Result, error) {
	cfg, err := f.Config.ToSessionConfig()
	if err != nil {
		return nil, err
	}
	rec := &events.Recorder{}
	ctrl, err := session.New(cfg, rec, log)
	if err != nil {
		return nil, eris.Wrap(err, "build controller")
	}

	res := &Result{}
	for i, step := range f.Steps {
		for _, err := range apply(ctrl, step) {
			res.StepErrors = append(res.StepErrors, StepError{Step: i, Err: err})
		}
	}

	res.Events = rec.Events()
	res.Decisions = rec.Decisions()
	for _, ev := range res.Events {
		if e, ok := ev.(events.SessionEnded); ok {
			e := e
			res.Ended = &e
		}
	}
	res.Final = ctrl.Snapshot()
	return res, nil
}

func apply(ctrl *session.Controller, step Step) []error {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	switch {
	case step.Tick != nil:
		n := step.Repeat
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			keep(ctrl.OnTick(*step.Tick))
		}
	case step.Input != nil:
		keep(ctrl.OnInput(step.Input.ToInputEvent()))
	case step.Command != "":
		cmd, err := session.ParseCommand(step.Command)
		if err != nil {
			keep(err)
			break
		}
		keep(ctrl.Apply(cmd))
	case step.SetWindowSeconds != nil:
		keep(ctrl.SetWindowSeconds(*step.SetWindowSeconds))
	case step.SetInterTrialSeconds != nil:
		keep(ctrl.SetInterTrialSeconds(*step.SetInterTrialSeconds))
	default:
		keep(eris.New("empty step"))
	}
	return errs
}

// #endregion replay

// #region summarize
// Summarize computes aggregate stats from a replay result.
func Summarize(res *Result) Summary {
	s := Summary{
		TotalTrials: res.Final.Total,
		ByOutcome:   make(map[trial.Outcome]int),
		ByTrigger:   make(map[string]int),
	}
	for _, d := range res.Decisions {
		s.Decided++
		s.ByOutcome[d.RealizedOutcome]++
		s.ByTrigger[string(d.Trigger)]++
	}
	for _, ev := range res.Events {
		if ev.Kind() == events.KindInputRecycled {
			s.Recycled++
		}
	}
	if res.Ended != nil {
		s.Ended = true
		s.Forced = res.Ended.Forced
	}
	return s
}

// Compare checks a result against the fixture's expectations.
func Compare(f *Fixture, res *Result) []Mismatch {
	var out []Mismatch
	byTrial := make(map[int]events.DecisionMade, len(res.Decisions))
	for _, d := range res.Decisions {
		byTrial[d.Trial] = d
	}
	for _, exp := range f.Expected {
		d, ok := byTrial[exp.Trial]
		if !ok {
			out = append(out, Mismatch{Trial: exp.Trial, Field: "decision", Want: exp.Outcome, Got: ""})
			continue
		}
		if exp.Outcome != string(d.RealizedOutcome) {
			out = append(out, Mismatch{Trial: exp.Trial, Field: "outcome", Want: exp.Outcome, Got: string(d.RealizedOutcome)})
		}
		if exp.Goal != "" && exp.Goal != string(d.DesignedGoal) {
			out = append(out, Mismatch{Trial: exp.Trial, Field: "goal", Want: exp.Goal, Got: string(d.DesignedGoal)})
		}
		if exp.Trigger != "" && exp.Trigger != string(d.Trigger) {
			out = append(out, Mismatch{Trial: exp.Trial, Field: "trigger", Want: exp.Trigger, Got: string(d.Trigger)})
		}
	}
	if len(f.Expected) > 0 && len(res.Decisions) != len(f.Expected) {
		out = append(out, Mismatch{
			Trial: -1,
			Field: "decisions",
			Want:  fmt.Sprint(len(f.Expected)),
			Got:   fmt.Sprint(len(res.Decisions)),
		})
	}
	if f.ExpectEnd != nil {
		switch {
		case res.Ended == nil:
			out = append(out, Mismatch{Trial: -1, Field: "ended", Want: "true", Got: "false"})
		default:
			if res.Ended.Forced != f.ExpectEnd.Forced {
				out = append(out, Mismatch{Trial: -1, Field: "forced",
					Want: fmt.Sprint(f.ExpectEnd.Forced), Got: fmt.Sprint(res.Ended.Forced)})
			}
			if res.Ended.Stats.Index != f.ExpectEnd.Index {
				out = append(out, Mismatch{Trial: -1, Field: "index",
					Want: fmt.Sprint(f.ExpectEnd.Index), Got: fmt.Sprint(res.Ended.Stats.Index)})
			}
		}
	}
	return out
}

// #endregion summarize
