package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/events"
)

// #region log-decision
// LogDecision writes an entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (session_id, trial, trigger_type, record_json, outcome, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Trial,
		entry.TriggerType,
		entry.RecordJSON,
		entry.Outcome,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return eris.Wrap(err, "log decision")
	}
	return nil
}

// ReadDecisions returns a session's decision records in trial order.
func ReadDecisions(db *sql.DB, sessionID string) ([]DecisionRecord, error) {
	rows, err := db.Query(
		`SELECT record_json FROM decision_log WHERE session_id = ? ORDER BY trial, id`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "read decisions")
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "scan decision")
		}
		var rec DecisionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrap(err, "unmarshal decision record")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadReasons maps trial index to the logged decision reason.
func ReadReasons(db *sql.DB, sessionID string) (map[int]string, error) {
	rows, err := db.Query(`SELECT trial, reason FROM decision_log WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "read reasons")
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var trialIdx int
		var reason sql.NullString
		if err := rows.Scan(&trialIdx, &reason); err != nil {
			return nil, eris.Wrap(err, "scan reason")
		}
		if reason.Valid {
			out[trialIdx] = reason.String
		}
	}
	return out, rows.Err()
}

// #endregion log-decision

// #region provenance-sink
// Provenance is an events.Sink that writes every DecisionMade to the
// decision log. Write failures are logged and dropped.
type Provenance struct {
	db        *sql.DB
	sessionID string
	log       *zap.Logger
}

// NewProvenance writes decisions for sessionID into db. log may be nil.
func NewProvenance(db *sql.DB, sessionID string, log *zap.Logger) *Provenance {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provenance{db: db, sessionID: sessionID, log: log}
}

// Publish implements events.Sink.
func (p *Provenance) Publish(ev events.Event) {
	d, ok := ev.(events.DecisionMade)
	if !ok {
		return
	}
	entry, err := Entry(p.sessionID, d)
	if err == nil {
		err = LogDecision(p.db, entry)
	}
	if err != nil {
		p.log.Error("decision log", zap.Int("trial", d.Trial), zap.Error(err))
	}
}

// Entry builds the decision_log row for a DecisionMade event.
func Entry(sessionID string, d events.DecisionMade) (DecisionEntry, error) {
	rec := DecisionRecord{
		Trial:               d.Trial,
		Mode:                string(d.Mode),
		DesignedGoal:        string(d.DesignedGoal),
		RealizedOutcome:     string(d.RealizedOutcome),
		Trigger:             string(d.Trigger),
		FabricationDeadline: d.FabricationDeadline,
		WindowElapsed:       d.WindowElapsed,
	}
	if d.Input != nil {
		rec.Input = &DecisionInput{
			Validity:   string(d.Input.Validity),
			Confidence: d.Input.Confidence,
			Sequence:   d.Input.Sequence,
			Source:     string(d.Input.Source),
		}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return DecisionEntry{}, eris.Wrap(err, "marshal decision record")
	}
	return DecisionEntry{
		SessionID:   sessionID,
		Trial:       d.Trial,
		TriggerType: string(d.Trigger),
		RecordJSON:  string(raw),
		Outcome:     string(d.RealizedOutcome),
		Reason:      reason(rec),
	}, nil
}

func reason(rec DecisionRecord) string {
	if rec.Input != nil {
		return fmt.Sprintf("%s: goal=%s input=%s", rec.Mode, rec.DesignedGoal, rec.Input.Validity)
	}
	switch rec.Trigger {
	case "fabrication":
		return "fabrication deadline elapsed"
	case "expiry":
		return "window expired"
	}
	return ""
}

// #endregion provenance-sink

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
