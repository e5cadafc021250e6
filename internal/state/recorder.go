package state

import (
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/events"
)

// #region recorder
// Recorder persists one session's outbound events: each DecisionMade becomes
// a trial_decisions row and SessionEnded closes the session row. Store
// failures are logged; the session keeps running.
type Recorder struct {
	store     *Store
	sessionID string
	log       *zap.Logger
	errs      int
}

// NewRecorder writes events for sessionID, which must already exist in store.
func NewRecorder(store *Store, sessionID string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, sessionID: sessionID, log: log}
}

// Publish implements events.Sink.
func (r *Recorder) Publish(ev events.Event) {
	var err error
	switch e := ev.(type) {
	case events.DecisionMade:
		err = r.store.InsertDecision(decisionRecord(r.sessionID, e))
	case events.SessionEnded:
		var stats []byte
		stats, err = json.Marshal(e.Stats)
		if err == nil {
			err = r.store.EndSession(r.sessionID, e.Forced, string(stats), time.Time{})
		}
	default:
		return
	}
	if err != nil {
		r.errs++
		r.log.Error("persist event",
			zap.String("session", r.sessionID),
			zap.String("kind", string(ev.Kind())),
			zap.Error(err),
		)
	}
}

// Drain publishes everything from ch until it is closed.
func (r *Recorder) Drain(ch <-chan events.Event) {
	for ev := range ch {
		r.Publish(ev)
	}
}

// Errors returns how many events failed to persist.
func (r *Recorder) Errors() int { return r.errs }

func decisionRecord(sessionID string, e events.DecisionMade) DecisionRecord {
	d := DecisionRecord{
		SessionID:           sessionID,
		Trial:               e.Trial,
		DesignedGoal:        string(e.DesignedGoal),
		RealizedOutcome:     string(e.RealizedOutcome),
		Trigger:             string(e.Trigger),
		FabricationDeadline: e.FabricationDeadline,
		WindowElapsed:       e.WindowElapsed,
	}
	if e.Input != nil {
		d.InputSequence = e.Input.Sequence
		d.InputConfidence = e.Input.Confidence
		d.InputSource = string(e.Input.Source)
	}
	return d
}

// #endregion recorder

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Seeds are stored as text; SQLite integers are signed 64-bit.
func formatSeed(seed uint64) string {
	return strconv.FormatUint(seed, 10)
}

func parseSeed(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

// #endregion helpers
