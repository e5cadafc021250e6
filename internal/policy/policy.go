package policy

import (
	"fmt"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region resolve
// Resolve reconciles one trial's state into at most one outcome. It is a pure
// function of its arguments. Triggers are tried in order:
//  1. input present: apply the mode rule
//  2. fabrication alarm fired on a Fabricate goal: Fabricate
//  3. window expired: Reject
//
// Input the mode rule leaves undecided is recycled and the later triggers are
// still tried, so an expired window always resolves. A mode outside Modes
// decides nothing from input.
func Resolve(mode Mode, goal trial.Outcome, input *trial.InputEvent, alarmFired, windowExpired bool) Resolution {
	recycled := false

	// --- Trigger 1: live input ---
	if input != nil {
		if out, ok := applyMode(mode, goal, input.Validity); ok {
			return Resolution{
				Decided: true,
				Outcome: out,
				Trigger: TriggerInput,
				Reason:  fmt.Sprintf("%s: goal=%s input=%s", mode, goal, input.Validity),
			}
		}
		recycled = true
	}

	// --- Trigger 2: fabrication deadline ---
	if alarmFired && goal == trial.Fabricate {
		return Resolution{
			Decided:  true,
			Outcome:  trial.Fabricate,
			Trigger:  TriggerFabrication,
			Recycled: recycled,
			Reason:   "fabrication deadline elapsed",
		}
	}

	// --- Trigger 3: window expiry ---
	if windowExpired {
		return Resolution{
			Decided:  true,
			Outcome:  trial.Reject,
			Trigger:  TriggerExpiry,
			Recycled: recycled,
			Reason:   "window expired without input",
		}
	}

	reason := "waiting"
	if recycled {
		reason = fmt.Sprintf("%s: %s input recycled on %s goal", mode, input.Validity, goal)
	}
	return Resolution{Recycled: recycled, Reason: reason}
}

// #endregion resolve

// #region mode-rules
// applyMode maps input validity to an outcome under mode. ok is false when
// the input leaves the trial undecided.
func applyMode(mode Mode, goal trial.Outcome, v trial.Validity) (trial.Outcome, bool) {
	switch mode {
	case Strict:
		if goal == trial.Fabricate {
			return trial.Fabricate, true
		}
		return fromValidity(v), true
	case MeetGoals:
		switch goal {
		case trial.Reject, trial.Fabricate:
			return goal, true
		}
		if v == trial.Accepted {
			return trial.Accept, true
		}
		return "", false
	case Loose:
		return trial.Accept, true
	default:
		return "", false
	}
}

func fromValidity(v trial.Validity) trial.Outcome {
	if v == trial.Accepted {
		return trial.Accept
	}
	return trial.Reject
}

// #endregion mode-rules
