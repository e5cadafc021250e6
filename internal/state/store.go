package state

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	total_trials  INTEGER NOT NULL,
	seed          TEXT NOT NULL,
	categories    TEXT,
	started_at    TEXT NOT NULL,
	ended_at      TEXT,
	forced        INTEGER NOT NULL DEFAULT 0,
	stats_json    TEXT
);

CREATE TABLE IF NOT EXISTS trial_decisions (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id           TEXT NOT NULL,
	trial                INTEGER NOT NULL,
	designed_goal        TEXT NOT NULL,
	realized_outcome     TEXT NOT NULL,
	trigger              TEXT NOT NULL,
	fabrication_deadline REAL NOT NULL,
	window_elapsed       REAL NOT NULL,
	input_sequence       INTEGER,
	input_confidence     REAL,
	input_source         TEXT,
	created_at           TEXT NOT NULL,
	UNIQUE (session_id, trial),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	trial         INTEGER NOT NULL,
	trigger_type  TEXT NOT NULL,
	record_json   TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store persists sessions and their trial decisions in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "open db")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, eris.Wrap(err, "pragma")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, eris.Wrap(err, "pragma fk")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, eris.Wrap(err, "migrate")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the decision log writer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region sessions
// CreateSession inserts a new open session. An empty ID gets a fresh uuid.
func (s *Store) CreateSession(rec SessionRecord) (SessionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, mode, total_trials, seed, categories, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Mode, rec.TotalTrials, formatSeed(rec.Seed), nullIfEmpty(rec.Categories),
		rec.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return SessionRecord{}, eris.Wrapf(err, "insert session %s", rec.ID)
	}
	return rec, nil
}

// EndSession stamps the end time and final statistics on a session.
func (s *Store) EndSession(id string, forced bool, statsJSON string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, forced = ?, stats_json = ? WHERE session_id = ?`,
		at.Format(time.RFC3339Nano), boolInt(forced), nullIfEmpty(statsJSON), id,
	)
	if err != nil {
		return eris.Wrapf(err, "end session %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("session %s not found", id)
	}
	return nil
}

// GetSession reads one session.
func (s *Store) GetSession(id string) (SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT session_id, mode, total_trials, seed, categories, started_at, ended_at, forced, stats_json
		 FROM sessions WHERE session_id = ?`, id,
	)
	rec, err := scanSession(row)
	if err != nil {
		return SessionRecord{}, eris.Wrapf(err, "get session %s", id)
	}
	return rec, nil
}

// ListSessions returns the most recent sessions with their decision tallies.
func (s *Store) ListSessions(limit int) ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT session_id, mode, total_trials, seed, categories, started_at, ended_at, forced, stats_json
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "list sessions")
	}
	var out []SessionSummary
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "scan session")
		}
		out = append(out, SessionSummary{SessionRecord: rec})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, eris.Wrap(err, "list sessions")
	}
	rows.Close()

	for i := range out {
		counts, err := s.OutcomeCounts(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Outcomes = counts
		for _, n := range counts {
			out[i].Decisions += n
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (SessionRecord, error) {
	var rec SessionRecord
	var seed, started string
	var categories, ended, stats sql.NullString
	var forced int
	if err := row.Scan(&rec.ID, &rec.Mode, &rec.TotalTrials, &seed, &categories, &started, &ended, &forced, &stats); err != nil {
		return SessionRecord{}, err
	}
	rec.Seed = parseSeed(seed)
	rec.Categories = categories.String
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if ended.Valid {
		rec.EndedAt, _ = time.Parse(time.RFC3339Nano, ended.String)
	}
	rec.Forced = forced != 0
	rec.StatsJSON = stats.String
	return rec, nil
}

// #endregion sessions

// #region decisions
// InsertDecision stores one committed trial. A trial can only be stored once
// per session.
func (s *Store) InsertDecision(d DecisionRecord) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	var seq, conf interface{}
	if d.InputSequence > 0 {
		seq = d.InputSequence
		conf = d.InputConfidence
	}
	_, err := s.db.Exec(
		`INSERT INTO trial_decisions (session_id, trial, designed_goal, realized_outcome, trigger,
			fabrication_deadline, window_elapsed, input_sequence, input_confidence, input_source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.Trial, d.DesignedGoal, d.RealizedOutcome, d.Trigger,
		d.FabricationDeadline, d.WindowElapsed, seq, conf, nullIfEmpty(d.InputSource),
		d.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return eris.Wrapf(err, "insert decision %s/%d", d.SessionID, d.Trial)
	}
	return nil
}

// ListDecisions returns a session's decisions in trial order.
func (s *Store) ListDecisions(sessionID string) ([]DecisionRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, trial, designed_goal, realized_outcome, trigger, fabrication_deadline,
			window_elapsed, input_sequence, input_confidence, input_source, created_at
		 FROM trial_decisions WHERE session_id = ? ORDER BY trial`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "list decisions")
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		var seq sql.NullInt64
		var conf sql.NullFloat64
		var source sql.NullString
		var created string
		if err := rows.Scan(&d.SessionID, &d.Trial, &d.DesignedGoal, &d.RealizedOutcome, &d.Trigger,
			&d.FabricationDeadline, &d.WindowElapsed, &seq, &conf, &source, &created); err != nil {
			return nil, eris.Wrap(err, "scan decision")
		}
		d.InputSequence = seq.Int64
		d.InputConfidence = conf.Float64
		d.InputSource = source.String
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// OutcomeCounts tallies realized outcomes for a session.
func (s *Store) OutcomeCounts(sessionID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT realized_outcome, COUNT(*) FROM trial_decisions WHERE session_id = ? GROUP BY realized_outcome`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "count outcomes")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "scan outcome count")
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// #endregion decisions
