package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
)

const eventColumns = `event_id, transaction_ref, order_ref, amount, state, status,
	payload, received_at, claimed_at, processed_at, retry_count, last_error`

// EventRepository persists the idempotency record for webhook notifications.
// The primary key on event_id is the correctness backstop for duplicate
// deliveries: concurrent inserts of the same logical event race on it and
// exactly one wins.
type EventRepository struct {
	q executor
}

func (r *EventRepository) InsertIfAbsent(ctx context.Context, event *payment.Event) (bool, *payment.Event, error) {
	query := `
		INSERT INTO payment_events (
			event_id, transaction_ref, order_ref, amount, state, status,
			payload, received_at, retry_count, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, '')
		ON CONFLICT (event_id) DO NOTHING
	`

	end := monitoring.TimeDBQuery("INSERT", "payment_events")
	defer end()

	result, err := r.q.ExecContext(ctx, query,
		event.ID, event.TransactionRef, event.OrderRef, event.Amount,
		event.State, string(event.Status), event.Payload, event.ReceivedAt,
	)
	if err != nil {
		return false, nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if rows == 1 {
		return true, nil, nil
	}

	existing, err := r.GetByID(ctx, event.ID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *EventRepository) ClaimForProcessing(ctx context.Context, eventID string, now time.Time, stallThreshold time.Duration) (bool, error) {
	query := `
		UPDATE payment_events
		SET status = 'processing', claimed_at = $2
		WHERE event_id = $1
		  AND (status IN ('received', 'failed')
		       OR (status = 'processing' AND claimed_at < $3))
	`

	end := monitoring.TimeDBQuery("UPDATE", "payment_events")
	defer end()

	result, err := r.q.ExecContext(ctx, query, eventID, now, now.Add(-stallThreshold))
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *EventRepository) MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error {
	end := monitoring.TimeDBQuery("UPDATE", "payment_events")
	defer end()

	_, err := r.q.ExecContext(ctx,
		`UPDATE payment_events SET status = 'processed', processed_at = $2 WHERE event_id = $1`,
		eventID, processedAt,
	)
	return err
}

func (r *EventRepository) MarkFailed(ctx context.Context, eventID string, lastError string) error {
	end := monitoring.TimeDBQuery("UPDATE", "payment_events")
	defer end()

	_, err := r.q.ExecContext(ctx,
		`UPDATE payment_events SET status = 'failed', retry_count = retry_count + 1, last_error = $2 WHERE event_id = $1`,
		eventID, lastError,
	)
	return err
}

func (r *EventRepository) GetByID(ctx context.Context, eventID string) (*payment.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM payment_events WHERE event_id = $1`

	end := monitoring.TimeDBQuery("SELECT", "payment_events")
	defer end()

	return scanEvent(r.q.QueryRowContext(ctx, query, eventID))
}

func (r *EventRepository) FindSuccessWithoutOrder(ctx context.Context, limit int) ([]*payment.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM payment_events e
		WHERE e.state = $1
		  AND NOT EXISTS (
			SELECT 1 FROM orders o
			WHERE o.transaction_ref = e.transaction_ref AND o.status = 'CONFIRMED'
		  )
		ORDER BY e.received_at
		LIMIT $2
	`

	end := monitoring.TimeDBQuery("SELECT", "payment_events")
	defer end()

	rows, err := r.q.QueryContext(ctx, query, payment.StateSuccess, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *EventRepository) ListDeadLetter(ctx context.Context, minRetries, limit int) ([]*payment.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM payment_events
		WHERE status = 'failed' AND retry_count >= $1
		ORDER BY received_at DESC
		LIMIT $2
	`

	end := monitoring.TimeDBQuery("SELECT", "payment_events")
	defer end()

	rows, err := r.q.QueryContext(ctx, query, minRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *EventRepository) Stats(ctx context.Context) (ports.EventStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'processed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'processing')
		FROM payment_events
	`

	end := monitoring.TimeDBQuery("SELECT", "payment_events")
	defer end()

	var stats ports.EventStats
	err := r.q.QueryRowContext(ctx, query).Scan(
		&stats.Total, &stats.Processed, &stats.Failed, &stats.Processing,
	)
	return stats, err
}

func (r *EventRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	end := monitoring.TimeDBQuery("DELETE", "payment_events")
	defer end()

	result, err := r.q.ExecContext(ctx,
		`DELETE FROM payment_events WHERE status IN ('processed', 'failed') AND received_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEvent(row rowScanner) (*payment.Event, error) {
	var (
		e           payment.Event
		status      string
		claimedAt   sql.NullTime
		processedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.TransactionRef, &e.OrderRef, &e.Amount, &e.State, &status,
		&e.Payload, &e.ReceivedAt, &claimedAt, &processedAt, &e.RetryCount, &e.LastError,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.ErrEventNotFound
		}
		return nil, err
	}

	e.Status = payment.EventStatus(status)
	if claimedAt.Valid {
		e.ClaimedAt = &claimedAt.Time
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*payment.Event, error) {
	var events []*payment.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
