// internal/events/repository.go
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ispnexus/webhook-service/internal/storage"
)

type Repository interface {
	Insert(ctx context.Context, event Event) (Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (Event, error)
	List(ctx context.Context, req ListEventsRequest) ([]Event, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

type PostgresRepository struct {
	db *storage.DB
}

func NewRepository(db *storage.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const eventColumns = `id, event_type_id, event_type_name, payload, metadata,
	origin_user_id, origin_customer_id, origin_source_ip, occurred_at, processed`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	var userID, customerID, sourceIP *string
	err := row.Scan(&e.ID, &e.EventTypeID, &e.EventTypeName, &e.Payload, &e.Metadata,
		&userID, &customerID, &sourceIP, &e.OccurredAt, &e.Processed)
	if err != nil {
		return Event{}, err
	}
	if userID != nil {
		e.Origin.UserID = *userID
	}
	if customerID != nil {
		e.Origin.CustomerID = *customerID
	}
	if sourceIP != nil {
		e.Origin.SourceIP = *sourceIP
	}
	return e, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (r *PostgresRepository) Insert(ctx context.Context, event Event) (Event, error) {
	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_events (event_type_id, event_type_name, payload, metadata,
			origin_user_id, origin_customer_id, origin_source_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+eventColumns,
		event.EventTypeID, event.EventTypeName, event.Payload, metadata,
		nullable(event.Origin.UserID), nullable(event.Origin.CustomerID), nullable(event.Origin.SourceIP))

	created, err := scanEvent(row)
	if err != nil {
		return Event{}, fmt.Errorf("failed to insert event: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Event, error) {
	row := r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM webhook_events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

func (r *PostgresRepository) List(ctx context.Context, req ListEventsRequest) ([]Event, error) {
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM webhook_events
		WHERE ($1 = '' OR event_type_name = $1)
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3`,
		req.EventType, limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE webhook_events SET processed = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
