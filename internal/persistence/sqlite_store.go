package persistence

import (
	"database/sql"
	"strings"
)

// SQLiteStore is a ProgramStore and ParticipantStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// An in-memory database (":memory:") exists per connection, so callers
// using one should call db.SetMaxOpenConns(1).
type SQLiteStore struct {
	sqlStore
}

var _ ProgramStore = (*SQLiteStore)(nil)

var _ ParticipantStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given
// database and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{sqlStore{
		db: db,
		dialect: sqlDialect{
			name:              "sqlite",
			isUniqueViolation: isSQLiteUniqueViolation,
		},
	}}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			abbreviation TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL DEFAULT '',
			end_date TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			step_booking INTEGER NOT NULL DEFAULT 0,
			step_initial_audit INTEGER NOT NULL DEFAULT 0,
			step_tech_review INTEGER NOT NULL DEFAULT 0,
			step_quote_generation INTEGER NOT NULL DEFAULT 0,
			step_work_orders INTEGER NOT NULL DEFAULT 0,
			step_final_audit INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS participants (
			id TEXT PRIMARY KEY,
			program_id TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			postal_code TEXT NOT NULL DEFAULT '',
			property_type TEXT NOT NULL DEFAULT '',
			assigned_advisor TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			on_hold INTEGER NOT NULL DEFAULT 0,
			pre_hold_status TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			completed_at INTEGER,
			version INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_participants_program ON participants(program_id);

		CREATE TABLE IF NOT EXISTS participant_status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			participant_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			assigned_to TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			updated_by TEXT NOT NULL DEFAULT '',
			UNIQUE (participant_id, seq)
		);
	`)
	return err
}

func isSQLiteUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY")
}
