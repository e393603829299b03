// internal/delivery/repository.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ispnexus/webhook-service/internal/storage"
)

type Repository interface {
	Insert(ctx context.Context, d Delivery) (Delivery, error)
	GetByID(ctx context.Context, id uuid.UUID) (Delivery, error)
	List(ctx context.Context, req ListDeliveriesRequest) ([]Delivery, error)
	ClaimDue(ctx context.Context, batchSize int, lease time.Duration) ([]Delivery, error)
	ExtendClaim(ctx context.Context, id uuid.UUID, claimedUntil time.Time, lease time.Duration) (bool, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, statusCode int) error
	MarkFailedAttempt(ctx context.Context, id uuid.UUID, statusCode *int, errMsg string, nextRetryAt *time.Time) error
	MarkConfigFailure(ctx context.Context, id uuid.UUID, errMsg string) error
	Defer(ctx context.Context, id uuid.UUID, until time.Time) error
	ResetForRetry(ctx context.Context, id uuid.UUID) (Delivery, error)
	InsertAttempt(ctx context.Context, a Attempt) (Attempt, error)
	ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]Attempt, error)
	Stats(ctx context.Context, endpointID uuid.UUID) (EndpointStats, error)
	IncrementRateWindow(ctx context.Context, endpointID uuid.UUID, unit string, windowStart time.Time) (int, error)
}

type PostgresRepository struct {
	db *storage.DB
}

func NewRepository(db *storage.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const deliveryColumns = `id, event_id, endpoint_id, status, attempt_count, max_attempts,
	scheduled_at, next_retry_at, claimed_until, last_status_code, last_error, delivered_at,
	created_at, updated_at`

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.EventID, &d.EndpointID, &d.Status, &d.AttemptCount, &d.MaxAttempts,
		&d.ScheduledAt, &d.NextRetryAt, &d.ClaimedUntil, &d.LastStatusCode, &d.LastError,
		&d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *PostgresRepository) Insert(ctx context.Context, d Delivery) (Delivery, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (event_id, endpoint_id, status, max_attempts, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+deliveryColumns,
		d.EventID, d.EndpointID, StatusPending, d.MaxAttempts, d.ScheduledAt)

	created, err := scanDelivery(row)
	if err != nil {
		return Delivery{}, fmt.Errorf("failed to insert delivery: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Delivery, error) {
	row := r.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, ErrNotFound
		}
		return Delivery{}, fmt.Errorf("failed to get delivery: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) List(ctx context.Context, req ListDeliveriesRequest) ([]Delivery, error) {
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE ($1::uuid IS NULL OR endpoint_id = $1)
		  AND ($2::uuid IS NULL OR event_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		uuidOrNil(req.EndpointID), uuidOrNil(req.EventID), req.Status, limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func uuidOrNil(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// ClaimDue atomically leases a batch of due deliveries. FOR UPDATE SKIP
// LOCKED guarantees no two workers claim the same row; the lease makes a
// crashed worker's claim expire so the delivery is naturally picked up
// again.
func (r *PostgresRepository) ClaimDue(ctx context.Context, batchSize int, lease time.Duration) ([]Delivery, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	rows, err := r.db.Query(ctx, `
		WITH due AS (
			SELECT id FROM webhook_deliveries
			WHERE status IN ($1, $2)
			  AND COALESCE(next_retry_at, scheduled_at) <= now()
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY COALESCE(next_retry_at, scheduled_at)
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE webhook_deliveries d
		SET claimed_until = now() + $4, updated_at = now()
		FROM due
		WHERE d.id = due.id
		RETURNING `+prefixedDeliveryColumns("d"),
		StatusPending, StatusRetrying, batchSize, lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExtendClaim re-asserts the lease taken by ClaimDue right before an
// attempt starts. The update only matches while claimed_until still holds
// the value this worker claimed with, so a lease that expired and was
// re-claimed elsewhere returns false and the caller must skip the
// delivery. Batches whose earlier attempts run long would otherwise let a
// second worker run the same attempt concurrently.
func (r *PostgresRepository) ExtendClaim(ctx context.Context, id uuid.UUID, claimedUntil time.Time, lease time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE webhook_deliveries
		SET claimed_until = now() + $3, updated_at = now()
		WHERE id = $1 AND claimed_until = $2`,
		id, claimedUntil, lease)
	if err != nil {
		return false, fmt.Errorf("failed to extend delivery claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func prefixedDeliveryColumns(alias string) string {
	return alias + `.id, ` + alias + `.event_id, ` + alias + `.endpoint_id, ` + alias + `.status, ` +
		alias + `.attempt_count, ` + alias + `.max_attempts, ` + alias + `.scheduled_at, ` +
		alias + `.next_retry_at, ` + alias + `.claimed_until, ` + alias + `.last_status_code, ` +
		alias + `.last_error, ` + alias + `.delivered_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func (r *PostgresRepository) MarkDelivered(ctx context.Context, id uuid.UUID, statusCode int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, attempt_count = attempt_count + 1, delivered_at = now(),
			next_retry_at = NULL, claimed_until = NULL, last_status_code = $3,
			last_error = NULL, updated_at = now()
		WHERE id = $1`,
		id, StatusDelivered, statusCode)
	if err != nil {
		return fmt.Errorf("failed to mark delivery delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailedAttempt records a failed HTTP attempt. A nil nextRetryAt means
// the attempt budget is exhausted and the delivery is abandoned.
func (r *PostgresRepository) MarkFailedAttempt(ctx context.Context, id uuid.UUID, statusCode *int, errMsg string, nextRetryAt *time.Time) error {
	status := StatusRetrying
	if nextRetryAt == nil {
		status = StatusAbandoned
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, attempt_count = attempt_count + 1, next_retry_at = $3,
			claimed_until = NULL, last_status_code = $4, last_error = $5, updated_at = now()
		WHERE id = $1`,
		id, status, nextRetryAt, statusCode, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark delivery attempt failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkConfigFailure transitions to the terminal failed state without
// consuming an attempt. Used when the endpoint configuration makes an HTTP
// attempt impossible, e.g. no active signing secret.
func (r *PostgresRepository) MarkConfigFailure(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, next_retry_at = NULL, claimed_until = NULL,
			last_error = $3, updated_at = now()
		WHERE id = $1`,
		id, StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Defer reschedules a rate-limited delivery without consuming an attempt
// slot.
func (r *PostgresRepository) Defer(ctx context.Context, id uuid.UUID, until time.Time) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE webhook_deliveries
		SET next_retry_at = $2, claimed_until = NULL, updated_at = now()
		WHERE id = $1`,
		id, until); err != nil {
		return fmt.Errorf("failed to defer delivery: %w", err)
	}
	return nil
}

// ResetForRetry is the operator override: re-arms a non-delivered delivery
// for an immediate attempt, granting one extra attempt when the budget is
// already spent.
func (r *PostgresRepository) ResetForRetry(ctx context.Context, id uuid.UUID) (Delivery, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, next_retry_at = now(), claimed_until = NULL,
			max_attempts = GREATEST(max_attempts, attempt_count + 1), updated_at = now()
		WHERE id = $1 AND status != $3
		RETURNING `+deliveryColumns,
		id, StatusRetrying, StatusDelivered)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, ErrNotFound
		}
		return Delivery{}, fmt.Errorf("failed to reset delivery for retry: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) InsertAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_delivery_attempts (delivery_id, attempt_number, request_url,
			request_headers, request_body, response_status, response_headers, response_body,
			duration_ms, error_type, error_message, success, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		a.DeliveryID, a.AttemptNumber, a.RequestURL, a.RequestHeaders, a.RequestBody,
		a.ResponseStatus, a.ResponseHeaders, a.ResponseBody, a.DurationMs,
		a.ErrorType, a.ErrorMessage, a.Success, a.StartedAt, a.FinishedAt)

	if err := row.Scan(&a.ID); err != nil {
		return Attempt{}, fmt.Errorf("failed to insert delivery attempt: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]Attempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, delivery_id, attempt_number, request_url, request_headers, request_body,
			response_status, response_headers, response_body, duration_ms, error_type,
			error_message, success, started_at, finished_at
		FROM webhook_delivery_attempts
		WHERE delivery_id = $1
		ORDER BY attempt_number`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.AttemptNumber, &a.RequestURL,
			&a.RequestHeaders, &a.RequestBody, &a.ResponseStatus, &a.ResponseHeaders,
			&a.ResponseBody, &a.DurationMs, &a.ErrorType, &a.ErrorMessage, &a.Success,
			&a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Stats(ctx context.Context, endpointID uuid.UUID) (EndpointStats, error) {
	stats := EndpointStats{EndpointID: endpointID}

	rows, err := r.db.Query(ctx, `
		SELECT status, count(*) FROM webhook_deliveries
		WHERE endpoint_id = $1 GROUP BY status`, endpointID)
	if err != nil {
		return EndpointStats{}, fmt.Errorf("failed to load delivery stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return EndpointStats{}, fmt.Errorf("failed to scan delivery stats: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusRetrying:
			stats.Retrying = count
		case StatusDelivered:
			stats.Delivered = count
		case StatusFailed:
			stats.Failed = count
		case StatusAbandoned:
			stats.Abandoned = count
		}
	}
	if err := rows.Err(); err != nil {
		return EndpointStats{}, err
	}

	row := r.db.QueryRow(ctx, `
		SELECT successful_deliveries, failed_deliveries
		FROM webhook_endpoints WHERE id = $1`, endpointID)
	if err := row.Scan(&stats.SuccessfulDeliveries, &stats.FailedDeliveries); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EndpointStats{}, ErrNotFound
		}
		return EndpointStats{}, fmt.Errorf("failed to load endpoint counters: %w", err)
	}

	return stats, nil
}

// IncrementRateWindow atomically bumps the fixed-window counter shared by
// all workers and returns the new count for the window.
func (r *PostgresRepository) IncrementRateWindow(ctx context.Context, endpointID uuid.UUID, unit string, windowStart time.Time) (int, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_rate_limits (endpoint_id, window_unit, window_start, request_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (endpoint_id, window_unit, window_start)
		DO UPDATE SET request_count = webhook_rate_limits.request_count + 1
		RETURNING request_count`,
		endpointID, unit, windowStart)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment rate window: %w", err)
	}
	return count, nil
}
