package events

import (
	"io"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region to-struct
// ToStruct encodes an event as a protobuf Struct with a "kind" field.
func ToStruct(ev Event) (*structpb.Struct, error) {
	fields := map[string]interface{}{"kind": string(ev.Kind())}
	switch e := ev.(type) {
	case WindowOpened:
		fields["trial"] = e.Trial
		fields["goal"] = string(e.Goal)
		fields["window_seconds"] = e.WindowSeconds
		fields["fabrication_deadline"] = e.FabricationDeadline
	case WindowClosed:
		fields["trial"] = e.Trial
		fields["outcome"] = string(e.Outcome)
		fields["credit"] = e.Credit
	case DecisionMade:
		fields["trial"] = e.Trial
		fields["designed_goal"] = string(e.DesignedGoal)
		fields["realized_outcome"] = string(e.RealizedOutcome)
		fields["fabrication_deadline"] = e.FabricationDeadline
		fields["window_elapsed"] = e.WindowElapsed
		fields["trigger"] = string(e.Trigger)
		fields["mode"] = string(e.Mode)
		if e.Input != nil {
			fields["input"] = inputFields(*e.Input)
		}
	case InputRecycled:
		fields["trial"] = e.Trial
		fields["goal"] = string(e.Goal)
		fields["input"] = inputFields(e.Input)
	case RatesUpdated:
		fields["accept_rate"] = e.AcceptRate
		fields["reject_rate"] = e.RejectRate
		fields["fabricate_rate"] = e.FabricateRate
		fields["remaining_counts"] = countFields(e.RemainingCounts)
	case SessionStateChanged:
		fields["from"] = string(e.From)
		fields["to"] = string(e.To)
	case TimersUpdated:
		fields["phase"] = e.Phase
		fields["inter_trial_elapsed"] = e.InterTrialElapsed
		fields["window_elapsed"] = e.WindowElapsed
	case SessionEnded:
		fields["forced"] = e.Forced
		fields["index"] = e.Stats.Index
		fields["total"] = e.Stats.Total
		fields["remaining_counts"] = countFields(e.Stats.RemainingCounts)
		fields["result_counts"] = countFields(e.Stats.ResultCounts)
		rates := make(map[string]interface{}, len(e.Stats.Rates))
		for k, v := range e.Stats.Rates {
			rates[string(k)] = v
		}
		fields["rates"] = rates
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, eris.Wrapf(err, "encode %s", ev.Kind())
	}
	return s, nil
}

func inputFields(in trial.InputEvent) map[string]interface{} {
	return map[string]interface{}{
		"validity":   string(in.Validity),
		"confidence": in.Confidence,
		"sequence":   in.Sequence,
		"source":     string(in.Source),
	}
}

func countFields(m map[trial.Outcome]int) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// #endregion to-struct

// #region jsonl
// JSONLWriter is a Sink that writes each event as one protojson line.
// Encoding and write errors are logged and do not reach the publisher.
type JSONLWriter struct {
	mu  sync.Mutex
	w   io.Writer
	log *zap.Logger
}

// NewJSONLWriter wraps w. log may be nil.
func NewJSONLWriter(w io.Writer, log *zap.Logger) *JSONLWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONLWriter{w: w, log: log}
}

// Publish encodes and writes ev.
func (j *JSONLWriter) Publish(ev Event) {
	s, err := ToStruct(ev)
	if err != nil {
		j.log.Error("encode event", zap.Error(err))
		return
	}
	line, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(s)
	if err != nil {
		j.log.Error("marshal event", zap.String("kind", string(ev.Kind())), zap.Error(err))
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		j.log.Error("write event", zap.String("kind", string(ev.Kind())), zap.Error(err))
	}
}

// #endregion jsonl
