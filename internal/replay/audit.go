package replay

import (
	"github.com/med-material/HandStrengthener/internal/logging"
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region audit
// Audit re-resolves logged decisions offline. Each record's trigger tells
// which deadline had passed, so the policy sees the same inputs it saw live.
// Any record whose re-resolution differs is reported.
func Audit(recs []logging.DecisionRecord) []Mismatch {
	var out []Mismatch
	for _, rec := range recs {
		mode, err := policy.ParseMode(rec.Mode)
		if err != nil {
			out = append(out, Mismatch{Trial: rec.Trial, Field: "mode", Want: "known mode", Got: rec.Mode})
			continue
		}
		var in *trial.InputEvent
		if rec.Input != nil {
			in = &trial.InputEvent{
				Validity:   trial.Validity(rec.Input.Validity),
				Confidence: rec.Input.Confidence,
				Sequence:   rec.Input.Sequence,
				Source:     trial.InputSource(rec.Input.Source),
			}
		}
		trig := policy.Trigger(rec.Trigger)
		res := policy.Resolve(mode, trial.Outcome(rec.DesignedGoal), in,
			trig == policy.TriggerFabrication, trig == policy.TriggerExpiry)

		if !res.Decided {
			out = append(out, Mismatch{Trial: rec.Trial, Field: "decision", Want: rec.RealizedOutcome, Got: ""})
			continue
		}
		if string(res.Outcome) != rec.RealizedOutcome {
			out = append(out, Mismatch{Trial: rec.Trial, Field: "outcome", Want: rec.RealizedOutcome, Got: string(res.Outcome)})
		}
		if res.Trigger != trig {
			out = append(out, Mismatch{Trial: rec.Trial, Field: "trigger", Want: rec.Trigger, Got: string(res.Trigger)})
		}
	}
	return out
}

// #endregion audit
