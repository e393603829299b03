// internal/endpoints/repository.go
package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ispnexus/webhook-service/internal/filters"
	"github.com/ispnexus/webhook-service/internal/storage"
)

// Repository is the registry's data access contract.
type Repository interface {
	InsertEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error)
	ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error)
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	IncrementCounters(ctx context.Context, id uuid.UUID, success bool) error

	InsertSecret(ctx context.Context, secret Secret) (Secret, error)
	DeactivateSecrets(ctx context.Context, endpointID uuid.UUID) error
	ListSecrets(ctx context.Context, endpointID uuid.UUID) ([]Secret, error)

	InsertFilter(ctx context.Context, rule filters.Rule) (filters.Rule, error)
	DeleteFilter(ctx context.Context, endpointID, filterID uuid.UUID) error
	ListFilters(ctx context.Context, endpointID uuid.UUID) ([]filters.Rule, error)

	Subscribe(ctx context.Context, endpointID, eventTypeID uuid.UUID) error
	Unsubscribe(ctx context.Context, endpointID, eventTypeID uuid.UUID) error
	ListSubscriptions(ctx context.Context, endpointID uuid.UUID) ([]Subscription, error)
	ListSubscribers(ctx context.Context, eventTypeID uuid.UUID) ([]Endpoint, error)
}

type PostgresRepository struct {
	db *storage.DB
}

func NewRepository(db *storage.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const endpointColumns = `id, url, http_method, content_type, headers, signature_algorithm, signature_encoding,
	verify_tls, timeout_seconds, retry_strategy, max_attempts, retry_delay_seconds, status,
	rate_limit_per_minute, rate_limit_per_hour, filter_conjunction, description,
	successful_deliveries, failed_deliveries, created_at, updated_at`

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var ep Endpoint
	var headers []byte
	err := row.Scan(&ep.ID, &ep.URL, &ep.HTTPMethod, &ep.ContentType, &headers,
		&ep.SignatureAlgorithm, &ep.SignatureEncoding, &ep.VerifyTLS, &ep.TimeoutSeconds,
		&ep.RetryStrategy, &ep.MaxAttempts, &ep.RetryDelaySeconds, &ep.Status,
		&ep.RateLimitPerMinute, &ep.RateLimitPerHour, &ep.FilterConjunction, &ep.Description,
		&ep.SuccessfulDeliveries, &ep.FailedDeliveries, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return Endpoint{}, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &ep.Headers); err != nil {
			return Endpoint{}, fmt.Errorf("failed to decode endpoint headers: %w", err)
		}
	}
	return ep, nil
}

func encodeHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	return json.Marshal(headers)
}

func (r *PostgresRepository) InsertEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	headers, err := encodeHeaders(ep.Headers)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to encode headers: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_endpoints (url, http_method, content_type, headers, signature_algorithm,
			signature_encoding, verify_tls, timeout_seconds, retry_strategy, max_attempts,
			retry_delay_seconds, status, rate_limit_per_minute, rate_limit_per_hour,
			filter_conjunction, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+endpointColumns,
		ep.URL, ep.HTTPMethod, ep.ContentType, headers, ep.SignatureAlgorithm,
		ep.SignatureEncoding, ep.VerifyTLS, ep.TimeoutSeconds, ep.RetryStrategy, ep.MaxAttempts,
		ep.RetryDelaySeconds, ep.Status, ep.RateLimitPerMinute, ep.RateLimitPerHour,
		ep.FilterConjunction, ep.Description)

	created, err := scanEndpoint(row)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to insert endpoint: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	row := r.db.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Endpoint{}, ErrNotFound
		}
		return Endpoint{}, fmt.Errorf("failed to get endpoint: %w", err)
	}
	return ep, nil
}

func (r *PostgresRepository) ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+endpointColumns+` FROM webhook_endpoints
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	return collectEndpoints(rows)
}

func collectEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var out []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	headers, err := encodeHeaders(ep.Headers)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to encode headers: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE webhook_endpoints
		SET url = $2, http_method = $3, content_type = $4, headers = $5,
			timeout_seconds = $6, retry_strategy = $7, max_attempts = $8,
			retry_delay_seconds = $9, status = $10, rate_limit_per_minute = $11,
			rate_limit_per_hour = $12, filter_conjunction = $13, description = $14,
			updated_at = now()
		WHERE id = $1
		RETURNING `+endpointColumns,
		ep.ID, ep.URL, ep.HTTPMethod, ep.ContentType, headers,
		ep.TimeoutSeconds, ep.RetryStrategy, ep.MaxAttempts,
		ep.RetryDelaySeconds, ep.Status, ep.RateLimitPerMinute,
		ep.RateLimitPerHour, ep.FilterConjunction, ep.Description)

	updated, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Endpoint{}, ErrNotFound
		}
		return Endpoint{}, fmt.Errorf("failed to update endpoint: %w", err)
	}
	return updated, nil
}

func (r *PostgresRepository) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE webhook_endpoints SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set endpoint status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) IncrementCounters(ctx context.Context, id uuid.UUID, success bool) error {
	var query string
	if success {
		query = `UPDATE webhook_endpoints SET successful_deliveries = successful_deliveries + 1, updated_at = now() WHERE id = $1`
	} else {
		query = `UPDATE webhook_endpoints SET failed_deliveries = failed_deliveries + 1, updated_at = now() WHERE id = $1`
	}
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment endpoint counters: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertSecret(ctx context.Context, secret Secret) (Secret, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_secrets (endpoint_id, name, secret_value, algorithm, active, expires_at)
		VALUES ($1, $2, $3, $4, true, $5)
		RETURNING id, endpoint_id, name, secret_value, algorithm, active, expires_at, created_at`,
		secret.EndpointID, secret.Name, secret.SecretValue, secret.Algorithm, secret.ExpiresAt)

	var created Secret
	err := row.Scan(&created.ID, &created.EndpointID, &created.Name, &created.SecretValue,
		&created.Algorithm, &created.Active, &created.ExpiresAt, &created.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Secret{}, ErrNotFound
		}
		return Secret{}, fmt.Errorf("failed to insert secret: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) DeactivateSecrets(ctx context.Context, endpointID uuid.UUID) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE webhook_secrets SET active = false WHERE endpoint_id = $1`, endpointID); err != nil {
		return fmt.Errorf("failed to deactivate secrets: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSecrets(ctx context.Context, endpointID uuid.UUID) ([]Secret, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, endpoint_id, name, secret_value, algorithm, active, expires_at, created_at
		FROM webhook_secrets WHERE endpoint_id = $1 ORDER BY created_at DESC`, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	defer rows.Close()

	var out []Secret
	for rows.Next() {
		var s Secret
		if err := rows.Scan(&s.ID, &s.EndpointID, &s.Name, &s.SecretValue,
			&s.Algorithm, &s.Active, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) InsertFilter(ctx context.Context, rule filters.Rule) (filters.Rule, error) {
	valueList, err := json.Marshal(rule.Values)
	if err != nil {
		return filters.Rule{}, fmt.Errorf("failed to encode filter values: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_filters (endpoint_id, field_path, operator, value, value_list, include_on_match)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, endpoint_id, field_path, operator, value, value_list, include_on_match, active, created_at`,
		rule.EndpointID, rule.FieldPath, string(rule.Operator), rule.Value, valueList, rule.IncludeOnMatch)

	created, err := scanFilter(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return filters.Rule{}, ErrNotFound
		}
		return filters.Rule{}, fmt.Errorf("failed to insert filter: %w", err)
	}
	return created, nil
}

func scanFilter(row pgx.Row) (filters.Rule, error) {
	var rule filters.Rule
	var operator string
	var value *string
	var valueList []byte
	err := row.Scan(&rule.ID, &rule.EndpointID, &rule.FieldPath, &operator, &value,
		&valueList, &rule.IncludeOnMatch, &rule.Active, &rule.CreatedAt)
	if err != nil {
		return filters.Rule{}, err
	}
	rule.Operator = filters.Operator(operator)
	if value != nil {
		rule.Value = *value
	}
	if len(valueList) > 0 {
		if err := json.Unmarshal(valueList, &rule.Values); err != nil {
			return filters.Rule{}, fmt.Errorf("failed to decode filter values: %w", err)
		}
	}
	return rule, nil
}

func (r *PostgresRepository) DeleteFilter(ctx context.Context, endpointID, filterID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM webhook_filters WHERE id = $1 AND endpoint_id = $2`, filterID, endpointID)
	if err != nil {
		return fmt.Errorf("failed to delete filter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListFilters(ctx context.Context, endpointID uuid.UUID) ([]filters.Rule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, endpoint_id, field_path, operator, value, value_list, include_on_match, active, created_at
		FROM webhook_filters WHERE endpoint_id = $1 ORDER BY created_at`, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	defer rows.Close()

	var out []filters.Rule
	for rows.Next() {
		rule, err := scanFilter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Subscribe(ctx context.Context, endpointID, eventTypeID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO endpoint_subscriptions (endpoint_id, event_type_id)
		VALUES ($1, $2)
		ON CONFLICT (endpoint_id, event_type_id) DO NOTHING`,
		endpointID, eventTypeID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to subscribe endpoint: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Unsubscribe(ctx context.Context, endpointID, eventTypeID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM endpoint_subscriptions WHERE endpoint_id = $1 AND event_type_id = $2`,
		endpointID, eventTypeID)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListSubscriptions(ctx context.Context, endpointID uuid.UUID) ([]Subscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT endpoint_id, event_type_id, created_at
		FROM endpoint_subscriptions WHERE endpoint_id = $1 ORDER BY created_at`, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.EndpointID, &sub.EventTypeID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ListSubscribers returns the active endpoints subscribed to an event type.
// Inactive, disabled and failed endpoints are excluded at fan-out time.
func (r *PostgresRepository) ListSubscribers(ctx context.Context, eventTypeID uuid.UUID) ([]Endpoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+prefixedEndpointColumns("e")+`
		FROM webhook_endpoints e
		JOIN endpoint_subscriptions s ON s.endpoint_id = e.id
		WHERE s.event_type_id = $1 AND e.status = 'active'
		ORDER BY e.created_at`, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	return collectEndpoints(rows)
}

func prefixedEndpointColumns(alias string) string {
	return alias + `.id, ` + alias + `.url, ` + alias + `.http_method, ` + alias + `.content_type, ` +
		alias + `.headers, ` + alias + `.signature_algorithm, ` + alias + `.signature_encoding, ` +
		alias + `.verify_tls, ` + alias + `.timeout_seconds, ` + alias + `.retry_strategy, ` +
		alias + `.max_attempts, ` + alias + `.retry_delay_seconds, ` + alias + `.status, ` +
		alias + `.rate_limit_per_minute, ` + alias + `.rate_limit_per_hour, ` +
		alias + `.filter_conjunction, ` + alias + `.description, ` +
		alias + `.successful_deliveries, ` + alias + `.failed_deliveries, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
