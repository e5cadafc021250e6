package transport

import (
	"math"

	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/med-material/HandStrengthener/internal/session"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region input
// InputToStruct encodes an input event for SubmitInput.
func InputToStruct(ev trial.InputEvent) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"validity":   string(ev.Validity),
		"confidence": ev.Confidence,
		"sequence":   ev.Sequence,
		"source":     string(ev.Source),
	})
}

// InputFromStruct decodes a SubmitInput request. Range checks are left to
// the session; only shape is checked here.
func InputFromStruct(s *structpb.Struct) (trial.InputEvent, error) {
	f := s.GetFields()
	v, err := trial.ParseValidity(f["validity"].GetStringValue())
	if err != nil {
		return trial.InputEvent{}, err
	}
	seq := f["sequence"].GetNumberValue()
	if seq != math.Trunc(seq) {
		return trial.InputEvent{}, eris.Errorf("sequence %v is not an integer", seq)
	}
	conf, ok := f["confidence"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return trial.InputEvent{}, eris.New("confidence must be a number")
	}
	return trial.InputEvent{
		Validity:   v,
		Confidence: conf.NumberValue,
		Sequence:   int64(seq),
		Source:     trial.InputSource(f["source"].GetStringValue()),
	}, nil
}

// #endregion input

// #region snapshot
// SnapshotToStruct encodes a session snapshot.
func SnapshotToStruct(snap session.Snapshot) (*structpb.Struct, error) {
	counts := func(m map[trial.Outcome]int) map[string]interface{} {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[string(k)] = v
		}
		return out
	}
	rates := make(map[string]interface{}, len(snap.Rates))
	for k, v := range snap.Rates {
		rates[string(k)] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"session_id":          snap.SessionID,
		"state":               string(snap.State),
		"mode":                string(snap.Mode),
		"phase":               string(snap.Phase),
		"finished":            snap.Finished,
		"index":               snap.Index,
		"total":               snap.Total,
		"goal":                string(snap.Goal),
		"inter_trial_elapsed": snap.InterTrialElapsed,
		"window_elapsed":      snap.WindowElapsed,
		"remaining_counts":    counts(snap.RemainingCounts),
		"result_counts":       counts(snap.ResultCounts),
		"rates":               rates,
	})
}

// #endregion snapshot
