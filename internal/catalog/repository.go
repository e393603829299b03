// internal/catalog/repository.go
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ispnexus/webhook-service/internal/storage"
)

// Repository is the catalog's data access contract. The caller provides a
// scoped context; implementations never hold transaction state between calls.
type Repository interface {
	Insert(ctx context.Context, et EventType) (EventType, error)
	GetByID(ctx context.Context, id uuid.UUID) (EventType, error)
	GetByName(ctx context.Context, name string) (EventType, error)
	List(ctx context.Context, req ListEventTypesRequest) ([]EventType, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type PostgresRepository struct {
	db *storage.DB
}

func NewRepository(db *storage.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const eventTypeColumns = `id, name, category, description, payload_schema, auth_required, default_max_attempts, active, created_at`

func scanEventType(row pgx.Row) (EventType, error) {
	var et EventType
	err := row.Scan(&et.ID, &et.Name, &et.Category, &et.Description, &et.PayloadSchema,
		&et.AuthRequired, &et.DefaultMaxAttempts, &et.Active, &et.CreatedAt)
	return et, err
}

func (r *PostgresRepository) Insert(ctx context.Context, et EventType) (EventType, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO event_types (name, category, description, payload_schema, auth_required, default_max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+eventTypeColumns,
		et.Name, et.Category, et.Description, et.PayloadSchema, et.AuthRequired, et.DefaultMaxAttempts)

	created, err := scanEventType(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return EventType{}, ErrDuplicate
		}
		return EventType{}, fmt.Errorf("failed to insert event type: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (EventType, error) {
	row := r.db.QueryRow(ctx, `SELECT `+eventTypeColumns+` FROM event_types WHERE id = $1`, id)
	et, err := scanEventType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EventType{}, ErrNotFound
		}
		return EventType{}, fmt.Errorf("failed to get event type: %w", err)
	}
	return et, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (EventType, error) {
	row := r.db.QueryRow(ctx, `SELECT `+eventTypeColumns+` FROM event_types WHERE name = $1`, name)
	et, err := scanEventType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EventType{}, ErrNotFound
		}
		return EventType{}, fmt.Errorf("failed to get event type by name: %w", err)
	}
	return et, nil
}

func (r *PostgresRepository) List(ctx context.Context, req ListEventTypesRequest) ([]EventType, error) {
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE ($1 = '' OR category = $1)
		  AND ($2 OR active)
		ORDER BY name
		LIMIT $3 OFFSET $4`,
		req.Category, req.IncludeInactive, limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list event types: %w", err)
	}
	defer rows.Close()

	var out []EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event type: %w", err)
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE event_types SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update event type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
