// Package pgstore provides a PostgreSQL implementation of triage.Store.
// Per-alert mutation serialization uses row locks (SELECT ... FOR UPDATE);
// the audit entry is written in the same transaction as the record, so a
// state change whose audit entry cannot be durably written fails.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

var tracer = otel.Tracer("github.com/Kidomigon/nursing-home-ai/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists alerts and their audit trail in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const alertColumns = `id, room_id, resident_ref, severity, kind, explanation, occurrence_count,
	status, created_at, last_seen_at, acknowledged_by, acknowledged_at,
	resolved_by, resolved_at, notes, last_escalated_at, escalation_count`

// Create persists a new alert with its CREATED audit entry in one
// transaction.
func (s *Store) Create(ctx context.Context, al *triage.Alert, entry *triage.AuditEntry) error {
	ctx, span := tracer.Start(ctx, "pgstore.Create", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertAlert(ctx, tx, al); err != nil {
			return err
		}
		return insertAudit(ctx, tx, entry)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return storageErr(err)
	}
	return nil
}

// Get retrieves an alert by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Alert, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	al, err := scanAlert(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, storageErr(err)
	}
	if al == nil {
		return nil, false, nil
	}
	return al, true, nil
}

// Mutate applies fn to the alert under a row lock and persists the updated
// record together with its audit entry.
func (s *Store) Mutate(ctx context.Context, id string, fn triage.Mutation) (*triage.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Mutate", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	var (
		updated   *triage.Alert
		domainErr error // from the mutation callback, passed through unwrapped
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1 FOR UPDATE`
		al, err := scanAlert(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}
		if al == nil {
			domainErr = &triage.NotFoundError{AlertID: id}
			return domainErr
		}

		entry, err := fn(al)
		if err != nil {
			domainErr = err
			return err
		}

		if err := updateAlert(ctx, tx, al); err != nil {
			return err
		}
		if err := insertAudit(ctx, tx, entry); err != nil {
			return err
		}
		updated = al
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domainErr != nil {
			return nil, domainErr
		}
		return nil, storageErr(err)
	}
	return updated, nil
}

// OpenByRoom lists the NEW and ACKNOWLEDGED alerts for a room.
func (s *Store) OpenByRoom(ctx context.Context, roomID string) ([]*triage.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.OpenByRoom", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE room_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, roomID, string(triage.StatusNew), string(triage.StatusAcknowledged))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr(err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// List returns alerts matching the filter, newest first.
func (s *Store) List(ctx context.Context, f triage.Filter) ([]*triage.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.RoomID != "" {
		add("room_id = $%d", f.RoomID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= $%d", f.Until)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr(err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// Audit returns the audit trail for an alert in append order.
func (s *Store) Audit(ctx context.Context, alertID string) ([]triage.AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Audit", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT alert_id, transition, actor, at, detail FROM alert_audit WHERE alert_id = $1 ORDER BY id`,
		alertID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr(err)
	}
	defer rows.Close()

	var entries []triage.AuditEntry
	for rows.Next() {
		var e triage.AuditEntry
		var transition string
		if err := rows.Scan(&e.AlertID, &transition, &e.Actor, &e.At, &e.Detail); err != nil {
			return nil, storageErr(fmt.Errorf("scan audit: %w", err))
		}
		e.Transition = triage.Transition(transition)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(fmt.Errorf("iterate audit: %w", err))
	}
	return entries, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// storageErr wraps database failures as *StorageUnavailableError so callers
// can report the operation as failed without a durable audit entry.
func storageErr(err error) error {
	var sue *triage.StorageUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &triage.StorageUnavailableError{Err: err}
}

func insertAlert(ctx context.Context, tx pgx.Tx, al *triage.Alert) error {
	notesJSON, err := json.Marshal(al.Notes)
	if err != nil {
		return fmt.Errorf("insert alert: marshal notes: %w", err)
	}
	if al.Notes == nil {
		notesJSON = []byte("[]")
	}

	_, err = tx.Exec(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		al.ID, al.RoomID, al.ResidentRef, string(al.Severity), string(al.Kind), al.Explanation,
		al.OccurrenceCount, string(al.Status), al.CreatedAt, al.LastSeenAt,
		nullStr(al.AcknowledgedBy), nullTime(al.AcknowledgedAt),
		nullStr(al.ResolvedBy), nullTime(al.ResolvedAt),
		notesJSON, nullTime(al.LastEscalatedAt), al.EscalationCount,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func updateAlert(ctx context.Context, tx pgx.Tx, al *triage.Alert) error {
	notesJSON, err := json.Marshal(al.Notes)
	if err != nil {
		return fmt.Errorf("update alert: marshal notes: %w", err)
	}
	if al.Notes == nil {
		notesJSON = []byte("[]")
	}

	_, err = tx.Exec(ctx, `UPDATE alerts SET
		severity = $2, explanation = $3, occurrence_count = $4, status = $5,
		last_seen_at = $6, acknowledged_by = $7, acknowledged_at = $8,
		resolved_by = $9, resolved_at = $10, notes = $11,
		last_escalated_at = $12, escalation_count = $13
		WHERE id = $1`,
		al.ID, string(al.Severity), al.Explanation, al.OccurrenceCount, string(al.Status),
		al.LastSeenAt, nullStr(al.AcknowledgedBy), nullTime(al.AcknowledgedAt),
		nullStr(al.ResolvedBy), nullTime(al.ResolvedAt), notesJSON,
		nullTime(al.LastEscalatedAt), al.EscalationCount,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, e *triage.AuditEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO alert_audit (alert_id, transition, actor, at, detail) VALUES ($1,$2,$3,$4,$5)`,
		e.AlertID, string(e.Transition), e.Actor, e.At, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// scanAlert scans a single row. Returns (nil, nil) when no row is found.
func scanAlert(row pgx.Row) (*triage.Alert, error) {
	var (
		al              triage.Alert
		severity, kind  string
		status          string
		ackBy, resBy    *string
		ackAt, resAt    *time.Time
		lastEscalatedAt *time.Time
		notesJSON       []byte
	)

	err := row.Scan(
		&al.ID, &al.RoomID, &al.ResidentRef, &severity, &kind, &al.Explanation, &al.OccurrenceCount,
		&status, &al.CreatedAt, &al.LastSeenAt, &ackBy, &ackAt,
		&resBy, &resAt, &notesJSON, &lastEscalatedAt, &al.EscalationCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	al.Severity = triage.Severity(severity)
	al.Kind = event.Kind(kind)
	al.Status = triage.Status(status)
	if ackBy != nil {
		al.AcknowledgedBy = *ackBy
	}
	if ackAt != nil {
		al.AcknowledgedAt = *ackAt
	}
	if resBy != nil {
		al.ResolvedBy = *resBy
	}
	if resAt != nil {
		al.ResolvedAt = *resAt
	}
	if lastEscalatedAt != nil {
		al.LastEscalatedAt = *lastEscalatedAt
	}
	if err := json.Unmarshal(notesJSON, &al.Notes); err != nil {
		return nil, fmt.Errorf("scan alert: unmarshal notes: %w", err)
	}
	return &al, nil
}

func collectAlerts(rows pgx.Rows) ([]*triage.Alert, error) {
	var out []*triage.Alert
	for rows.Next() {
		al, err := scanAlert(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		out = append(out, al)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(fmt.Errorf("iterate alerts: %w", err))
	}
	return out, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
