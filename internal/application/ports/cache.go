package ports

import (
	"context"
	"time"
)

// Cache is the redis-backed coordination surface: the distributed lock, the
// webhook retry queue, the dead-letter list and the processed-event bloom
// filter. None of it is load-bearing for correctness; the datastore's unique
// keys and conditional updates are the backstop when redis is unavailable.
type Cache interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	EnqueueRetry(ctx context.Context, eventID string, readyAt time.Time) error
	DequeueDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error)
	RetryQueueDepth(ctx context.Context) (int64, error)

	PushDeadLetter(ctx context.Context, eventID string) error
	DeadLetterCount(ctx context.Context) (int64, error)
	RemoveDeadLetter(ctx context.Context, eventID string) error

	AddProcessedEvent(ctx context.Context, eventID string) error
	ProcessedEventSeen(ctx context.Context, eventID string) (bool, error)

	SetAvailability(ctx context.Context, productID, size string, available int, ttl time.Duration) error
	GetAvailability(ctx context.Context, productID, size string) (int, bool, error)
	InvalidateAvailability(ctx context.Context, productID, size string) error
}
