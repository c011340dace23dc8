package ports

import (
	"context"
	"time"

	"github.com/lumenwear/storefront-service/internal/domain/payment"
)

type EventStats struct {
	Total      int64
	Processed  int64
	Failed     int64
	Processing int64
}

// HealthScore is processed/total; 1.0 when no events have been seen yet.
func (s EventStats) HealthScore() float64 {
	if s.Total == 0 {
		return 1.0
	}
	return float64(s.Processed) / float64(s.Total)
}

type EventRepository interface {
	// InsertIfAbsent races concurrent duplicate deliveries on the unique event
	// id. Exactly one caller gets created=true; losers receive the existing row.
	InsertIfAbsent(ctx context.Context, event *payment.Event) (created bool, existing *payment.Event, err error)
	// ClaimForProcessing conditionally moves the event to processing. The claim
	// succeeds for received/failed events and for processing claims older than
	// stallThreshold (abandoned by a crashed worker).
	ClaimForProcessing(ctx context.Context, eventID string, now time.Time, stallThreshold time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error
	MarkFailed(ctx context.Context, eventID string, lastError string) error
	GetByID(ctx context.Context, eventID string) (*payment.Event, error)
	// FindSuccessWithoutOrder returns successful payment events that have no
	// CONFIRMED order for their transaction ref.
	FindSuccessWithoutOrder(ctx context.Context, limit int) ([]*payment.Event, error)
	ListDeadLetter(ctx context.Context, minRetries, limit int) ([]*payment.Event, error)
	Stats(ctx context.Context) (EventStats, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PaymentSessionRepository interface {
	Create(ctx context.Context, session *payment.Session) error
	SetRedirectURL(ctx context.Context, transactionRef, redirectURL string) error
	GetByTransactionRef(ctx context.Context, transactionRef string) (*payment.Session, error)
}
