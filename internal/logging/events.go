package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/med-material/HandStrengthener/internal/events"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// EventLogger is an events.Sink that writes one structured log line per
// event. TimersUpdated is logged at debug, everything else at info.
type EventLogger struct {
	log *zap.Logger
}

// NewEventLogger logs through log, or zap.L() if nil.
func NewEventLogger(log *zap.Logger) *EventLogger {
	if log == nil {
		log = zap.L()
	}
	return &EventLogger{log: log.Named("events")}
}

// Publish implements events.Sink.
func (l *EventLogger) Publish(ev events.Event) {
	level := zapcore.InfoLevel
	var fields []zap.Field
	switch e := ev.(type) {
	case events.WindowOpened:
		fields = []zap.Field{
			zap.Int("trial", e.Trial),
			zap.String("goal", string(e.Goal)),
			zap.Float64("window_seconds", e.WindowSeconds),
			zap.Float64("fabrication_deadline", e.FabricationDeadline),
		}
	case events.WindowClosed:
		fields = []zap.Field{
			zap.Int("trial", e.Trial),
			zap.String("outcome", string(e.Outcome)),
			zap.Float64("credit", e.Credit),
		}
	case events.DecisionMade:
		fields = []zap.Field{
			zap.Int("trial", e.Trial),
			zap.String("goal", string(e.DesignedGoal)),
			zap.String("outcome", string(e.RealizedOutcome)),
			zap.String("trigger", string(e.Trigger)),
			zap.Float64("window_elapsed", e.WindowElapsed),
		}
		if e.Input != nil {
			fields = append(fields, zap.Int64("input_sequence", e.Input.Sequence))
		}
	case events.InputRecycled:
		fields = []zap.Field{
			zap.Int("trial", e.Trial),
			zap.String("goal", string(e.Goal)),
			zap.Int64("input_sequence", e.Input.Sequence),
		}
	case events.RatesUpdated:
		fields = []zap.Field{
			zap.Float64("accept_rate", e.AcceptRate),
			zap.Float64("reject_rate", e.RejectRate),
			zap.Float64("fabricate_rate", e.FabricateRate),
			zap.Any("remaining", e.RemainingCounts),
		}
	case events.SessionStateChanged:
		fields = []zap.Field{zap.String("from", string(e.From)), zap.String("to", string(e.To))}
	case events.TimersUpdated:
		level = zapcore.DebugLevel
		fields = []zap.Field{
			zap.String("phase", e.Phase),
			zap.Float64("inter_trial_elapsed", e.InterTrialElapsed),
			zap.Float64("window_elapsed", e.WindowElapsed),
		}
	case events.SessionEnded:
		fields = []zap.Field{
			zap.Bool("forced", e.Forced),
			zap.Int("index", e.Stats.Index),
			zap.Int("total", e.Stats.Total),
			zap.Int("accepted", e.Stats.ResultCounts[trial.Accept]),
			zap.Int("rejected", e.Stats.ResultCounts[trial.Reject]),
			zap.Int("fabricated", e.Stats.ResultCounts[trial.Fabricate]),
		}
	}
	if ce := l.log.Check(level, string(ev.Kind())); ce != nil {
		ce.Write(fields...)
	}
}
