package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/retrofit/pkg/api"
)

// sqlDialect captures the few differences between the SQL backends.
type sqlDialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of '?'.
	numbered bool
	// isUniqueViolation reports whether err is a primary-key clash.
	isUniqueViolation func(err error) bool
}

// rebind rewrites '?' placeholders for dialects that use numbered ones.
func (d sqlDialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements ProgramStore and ParticipantStore on database/sql.
// Timestamps are stored as unix nanoseconds so every backend round-trips
// them exactly.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

const programColumns = `id, name, abbreviation, start_date, end_date, is_active,
	step_booking, step_initial_audit, step_tech_review, step_quote_generation, step_work_orders, step_final_audit`

const participantColumns = `id, program_id, first_name, last_name, email, phone, address, city, postal_code,
	property_type, assigned_advisor, priority, status, on_hold, pre_hold_status, created_at, completed_at, version`

func (s *sqlStore) SaveProgram(ctx context.Context, prog api.Program) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO programs (`+programColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		prog.ID,
		prog.Name,
		prog.Abbreviation,
		prog.StartDate,
		prog.EndDate,
		prog.IsActive,
		prog.Steps.Booking,
		prog.Steps.InitialAudit,
		prog.Steps.TechReview,
		prog.Steps.QuoteGeneration,
		prog.Steps.WorkOrders,
		prog.Steps.FinalAudit,
	)
	if err != nil && s.dialect.isUniqueViolation(err) {
		return ErrProgramExists
	}
	return err
}

func (s *sqlStore) UpdateProgram(ctx context.Context, prog api.Program) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE programs
		SET name = ?, abbreviation = ?, start_date = ?, end_date = ?, is_active = ?,
		    step_booking = ?, step_initial_audit = ?, step_tech_review = ?,
		    step_quote_generation = ?, step_work_orders = ?, step_final_audit = ?
		WHERE id = ?`),
		prog.Name,
		prog.Abbreviation,
		prog.StartDate,
		prog.EndDate,
		prog.IsActive,
		prog.Steps.Booking,
		prog.Steps.InitialAudit,
		prog.Steps.TechReview,
		prog.Steps.QuoteGeneration,
		prog.Steps.WorkOrders,
		prog.Steps.FinalAudit,
		prog.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProgramNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row rowScanner) (api.Program, error) {
	var prog api.Program
	err := row.Scan(
		&prog.ID,
		&prog.Name,
		&prog.Abbreviation,
		&prog.StartDate,
		&prog.EndDate,
		&prog.IsActive,
		&prog.Steps.Booking,
		&prog.Steps.InitialAudit,
		&prog.Steps.TechReview,
		&prog.Steps.QuoteGeneration,
		&prog.Steps.WorkOrders,
		&prog.Steps.FinalAudit,
	)
	return prog, err
}

func (s *sqlStore) GetProgram(ctx context.Context, id string) (api.Program, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+programColumns+`
		FROM programs
		WHERE id = ?`),
		id,
	)
	prog, err := scanProgram(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.Program{}, ErrProgramNotFound
		}
		return api.Program{}, err
	}
	return prog, nil
}

func (s *sqlStore) ListPrograms(ctx context.Context) ([]api.Program, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+programColumns+` FROM programs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Program
	for rows.Next() {
		prog, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prog)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveParticipant(ctx context.Context, p *api.Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO participants (`+participantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID,
		p.ProgramID,
		p.FirstName,
		p.LastName,
		p.Email,
		p.Phone,
		p.Address,
		p.City,
		p.PostalCode,
		p.PropertyType,
		p.AssignedAdvisor,
		string(p.Priority),
		string(p.Status),
		p.OnHold,
		string(p.PreHoldStatus),
		p.CreatedAt.UnixNano(),
		nullableNanos(p.CompletedAt),
		p.Version,
	)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return ErrParticipantExists
		}
		return err
	}

	if err := s.appendHistory(ctx, tx, p.ID, 0, p.StatusHistory); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqlStore) UpdateParticipant(ctx context.Context, p *api.Participant, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.dialect.rebind(`
		UPDATE participants
		SET program_id = ?, first_name = ?, last_name = ?, email = ?, phone = ?, address = ?,
		    city = ?, postal_code = ?, property_type = ?, assigned_advisor = ?, priority = ?,
		    status = ?, on_hold = ?, pre_hold_status = ?, completed_at = ?, version = ?
		WHERE id = ? AND version = ?`),
		p.ProgramID,
		p.FirstName,
		p.LastName,
		p.Email,
		p.Phone,
		p.Address,
		p.City,
		p.PostalCode,
		p.PropertyType,
		p.AssignedAdvisor,
		string(p.Priority),
		string(p.Status),
		p.OnHold,
		string(p.PreHoldStatus),
		nullableNanos(p.CompletedAt),
		p.Version,
		p.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var one int
		err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM participants WHERE id = ?`), p.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		return ErrVersionConflict
	}

	var stored int
	if err := tx.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT COUNT(*) FROM participant_status_history WHERE participant_id = ?`), p.ID).Scan(&stored); err != nil {
		return err
	}
	if len(p.StatusHistory) < stored {
		return ErrHistoryRewrite
	}

	if err := s.appendHistory(ctx, tx, p.ID, stored, p.StatusHistory[stored:]); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqlStore) appendHistory(ctx context.Context, tx *sql.Tx, participantID string, offset int, entries []api.ParticipantStatusUpdate) error {
	for i, u := range entries {
		_, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO participant_status_history (participant_id, seq, status, assigned_to, notes, updated_at, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			participantID,
			offset+i,
			string(u.Status),
			u.AssignedTo,
			u.Notes,
			u.UpdatedAt.UnixNano(),
			u.UpdatedBy,
		)
		if err != nil {
			return fmt.Errorf("append history entry %d: %w", offset+i, err)
		}
	}
	return nil
}

func scanParticipant(row rowScanner) (*api.Participant, error) {
	var (
		p           api.Participant
		priority    string
		status      string
		preHold     string
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(
		&p.ID,
		&p.ProgramID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Phone,
		&p.Address,
		&p.City,
		&p.PostalCode,
		&p.PropertyType,
		&p.AssignedAdvisor,
		&priority,
		&status,
		&p.OnHold,
		&preHold,
		&createdAt,
		&completedAt,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}

	p.Priority = api.Priority(priority)
	p.Status = api.ParticipantStatus(status)
	p.PreHoldStatus = api.ParticipantStatus(preHold)
	p.CreatedAt = time.Unix(0, createdAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		p.CompletedAt = &t
	}
	return &p, nil
}

func (s *sqlStore) GetParticipant(ctx context.Context, id string) (*api.Participant, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+participantColumns+`
		FROM participants
		WHERE id = ?`),
		id,
	)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}

	if p.StatusHistory, err = s.loadHistory(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *sqlStore) ListParticipants(ctx context.Context, filter ParticipantFilter) ([]*api.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants`
	var args []any
	var clauses []string

	if filter.ProgramID != "" {
		clauses = append(clauses, "program_id = ?")
		args = append(args, filter.ProgramID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.OnHold != nil {
		clauses = append(clauses, "on_hold = ?")
		args = append(args, *filter.OnHold)
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}

	var participants []*api.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before loading history so single-connection pools don't block.
	rows.Close()

	for _, p := range participants {
		if p.StatusHistory, err = s.loadHistory(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return participants, nil
}

func (s *sqlStore) loadHistory(ctx context.Context, participantID string) ([]api.ParticipantStatusUpdate, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT status, assigned_to, notes, updated_at, updated_by
		FROM participant_status_history
		WHERE participant_id = ?
		ORDER BY seq ASC`), participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.ParticipantStatusUpdate
	for rows.Next() {
		var (
			u         api.ParticipantStatusUpdate
			status    string
			updatedAt int64
		)
		if err := rows.Scan(&status, &u.AssignedTo, &u.Notes, &updatedAt, &u.UpdatedBy); err != nil {
			return nil, err
		}
		u.Status = api.ParticipantStatus(status)
		u.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
