package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/intakemesh/core"
)

const recordColumns = `ticket_id, record_type, flow_id, identity, category, sub_category,
	classification, status, priority, assigned_to, fields_json, media_json,
	timeline_json, notes_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a record. A taken ticket id yields core.ErrDuplicate.
func (s *Store) Create(ctx context.Context, rec core.IntakeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.TicketID) == "" {
		return errors.New("ticket id is required")
	}

	args, err := recordArgs(rec)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticket %s: %w", rec.TicketID, core.ErrDuplicate)
		}
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// FindByTicket returns one record by ticket id.
func (s *Store) FindByTicket(ctx context.Context, ticketID string) (core.IntakeRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE ticket_id = ?`, ticketID)
	return scanRecord(row)
}

// FindLatestByIdentity returns the newest record filed by identity.
func (s *Store) FindLatestByIdentity(ctx context.Context, identity string) (core.IntakeRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE identity = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, identity)
	return scanRecord(row)
}

// List returns records matching filter, newest first.
func (s *Store) List(ctx context.Context, filter core.RecordFilter) ([]core.IntakeRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.RecordType != "" {
		where = append(where, "record_type = ?")
		args = append(args, string(filter.RecordType))
	}
	if filter.Identity != "" {
		where = append(where, "identity = ?")
		args = append(args, filter.Identity)
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]core.IntakeRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Update loads the record, applies fn and writes the result in one
// transaction.
func (s *Store) Update(ctx context.Context, ticketID string, fn func(*core.IntakeRecord) error) (core.IntakeRecord, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return core.IntakeRecord{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE ticket_id = ?`, ticketID))
	if err != nil {
		return core.IntakeRecord{}, err
	}

	if err := fn(&rec); err != nil {
		return core.IntakeRecord{}, err
	}
	rec.TicketID = ticketID

	args, err := recordArgs(rec)
	if err != nil {
		return core.IntakeRecord{}, err
	}
	// drop ticket_id from the front and use it in the WHERE clause
	args = append(args[1:], ticketID)

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET record_type = ?, flow_id = ?, identity = ?, category = ?,
		   sub_category = ?, classification = ?, status = ?, priority = ?, assigned_to = ?,
		   fields_json = ?, media_json = ?, timeline_json = ?, notes_json = ?,
		   created_at = ?, updated_at = ?
		 WHERE ticket_id = ?`,
		args...,
	); err != nil {
		return core.IntakeRecord{}, fmt.Errorf("update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.IntakeRecord{}, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

// CountByStatus returns the number of records per status.
func (s *Store) CountByStatus(ctx context.Context) (map[core.Status]int, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count records: %w", err)
		}
		counts[core.Status(status)] = n
	}
	return counts, rows.Err()
}

func recordArgs(rec core.IntakeRecord) ([]any, error) {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	blobs := make([]string, 0, 4)
	for _, v := range []any{fields, nonNil(rec.Media), nonNil(rec.Timeline), nonNil(rec.Notes)} {
		b, err := marshalJSON(v)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.TicketID, err)
		}
		blobs = append(blobs, b)
	}

	return []any{
		rec.TicketID,
		string(rec.RecordType),
		rec.FlowID,
		rec.Identity,
		rec.Category,
		rec.SubCategory,
		rec.Classification,
		string(rec.Status),
		string(rec.Priority),
		rec.AssignedTo,
		blobs[0], blobs[1], blobs[2], blobs[3],
		toMillis(rec.CreatedAt),
		toMillis(rec.UpdatedAt),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanRecord(row rowScanner) (core.IntakeRecord, error) {
	var (
		rec                          core.IntakeRecord
		recordType, status, priority string
		fieldsJSON, mediaJSON        string
		timelineJSON, notesJSON      string
		createdAt, updatedAt         int64
	)
	err := row.Scan(
		&rec.TicketID, &recordType, &rec.FlowID, &rec.Identity, &rec.Category, &rec.SubCategory,
		&rec.Classification, &status, &priority, &rec.AssignedTo, &fieldsJSON, &mediaJSON,
		&timelineJSON, &notesJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IntakeRecord{}, core.ErrNotFound
	}
	if err != nil {
		return core.IntakeRecord{}, fmt.Errorf("scan record: %w", err)
	}

	rec.RecordType = core.RecordType(recordType)
	rec.Status = core.Status(status)
	rec.Priority = core.Priority(priority)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)

	for _, blob := range []struct {
		src string
		dst any
	}{
		{fieldsJSON, &rec.Fields},
		{mediaJSON, &rec.Media},
		{timelineJSON, &rec.Timeline},
		{notesJSON, &rec.Notes},
	} {
		if err := json.Unmarshal([]byte(blob.src), blob.dst); err != nil {
			return core.IntakeRecord{}, fmt.Errorf("decode record %s: %w", rec.TicketID, err)
		}
	}

	return rec, nil
}
