package persistence

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore is a ProgramStore and ParticipantStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver, typically
// "github.com/jackc/pgx/v5/stdlib". The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	sqlStore
}

var _ ProgramStore = (*PostgresStore)(nil)

var _ ParticipantStore = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given
// database and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{sqlStore{
		db: db,
		dialect: sqlDialect{
			name:              "postgres",
			numbered:          true,
			isUniqueViolation: isPostgresUniqueViolation,
		},
	}}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			abbreviation TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL DEFAULT '',
			end_date TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			step_booking BOOLEAN NOT NULL DEFAULT FALSE,
			step_initial_audit BOOLEAN NOT NULL DEFAULT FALSE,
			step_tech_review BOOLEAN NOT NULL DEFAULT FALSE,
			step_quote_generation BOOLEAN NOT NULL DEFAULT FALSE,
			step_work_orders BOOLEAN NOT NULL DEFAULT FALSE,
			step_final_audit BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS participants (
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
			on_hold BOOLEAN NOT NULL DEFAULT FALSE,
			pre_hold_status TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			completed_at BIGINT,
			version BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_program ON participants(program_id)`,
		`CREATE TABLE IF NOT EXISTS participant_status_history (
			id BIGSERIAL PRIMARY KEY,
			participant_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			assigned_to TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			updated_at BIGINT NOT NULL,
			updated_by TEXT NOT NULL DEFAULT '',
			UNIQUE (participant_id, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func isPostgresUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
