package apptest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/ports"
)

// Cache is an in-memory stand-in for the redis coordination surface.
type Cache struct {
	mu sync.Mutex

	locks        map[string]bool
	retryQueue   map[string]time.Time
	deadLetter   []string
	processed    map[string]bool
	availability map[string]int

	// LockErr makes AcquireLock fail, simulating redis being down.
	// LockBusy makes AcquireLock report the lock as already held.
	LockErr  error
	LockBusy bool
}

func NewCache() *Cache {
	return &Cache{
		locks:        make(map[string]bool),
		retryQueue:   make(map[string]time.Time),
		processed:    make(map[string]bool),
		availability: make(map[string]int),
	}
}

func (c *Cache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LockErr != nil {
		return false, c.LockErr
	}
	if c.LockBusy || c.locks[key] {
		return false, nil
	}
	c.locks[key] = true
	return true, nil
}

func (c *Cache) ReleaseLock(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, key)
	return nil
}

func (c *Cache) EnqueueRetry(ctx context.Context, eventID string, readyAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryQueue[eventID] = readyAt
	return nil
}

func (c *Cache) DequeueDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due []string
	for id, readyAt := range c.retryQueue {
		if !readyAt.After(now) {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	if len(due) > limit {
		due = due[:limit]
	}
	for _, id := range due {
		delete(c.retryQueue, id)
	}
	return due, nil
}

func (c *Cache) RetryQueueDepth(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.retryQueue)), nil
}

// RetryReadyAt reports when an enqueued event becomes due.
func (c *Cache) RetryReadyAt(eventID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	readyAt, ok := c.retryQueue[eventID]
	return readyAt, ok
}

func (c *Cache) PushDeadLetter(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadLetter = append(c.deadLetter, eventID)
	return nil
}

func (c *Cache) DeadLetterCount(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.deadLetter)), nil
}

func (c *Cache) RemoveDeadLetter(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range c.deadLetter {
		if id == eventID {
			c.deadLetter = append(c.deadLetter[:i], c.deadLetter[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Cache) DeadLetters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.deadLetter))
	copy(out, c.deadLetter)
	return out
}

func (c *Cache) AddProcessedEvent(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed[eventID] = true
	return nil
}

func (c *Cache) ProcessedEventSeen(ctx context.Context, eventID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed[eventID], nil
}

func (c *Cache) SetAvailability(ctx context.Context, productID, size string, available int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.availability[productID+":"+size] = available
	return nil
}

func (c *Cache) GetAvailability(ctx context.Context, productID, size string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.availability[productID+":"+size]
	return v, ok, nil
}

func (c *Cache) InvalidateAvailability(ctx context.Context, productID, size string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.availability, productID+":"+size)
	return nil
}

// Gateway is a scripted payment-gateway double.
type Gateway struct {
	mu sync.Mutex

	CreateResp *ports.GatewaySessionResponse
	CreateErr  error
	StatusResp *ports.GatewayStatus
	StatusErr  error

	CreateCalls []ports.GatewaySessionRequest
	StatusCalls []string
}

func (g *Gateway) CreateSession(ctx context.Context, req ports.GatewaySessionRequest) (*ports.GatewaySessionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls = append(g.CreateCalls, req)
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	if g.CreateResp != nil {
		return g.CreateResp, nil
	}
	return &ports.GatewaySessionResponse{
		TransactionRef: req.TransactionRef,
		RedirectURL:    "https://pay.example.test/" + req.TransactionRef,
	}, nil
}

func (g *Gateway) GetStatus(ctx context.Context, transactionRef string) (*ports.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.StatusCalls = append(g.StatusCalls, transactionRef)
	if g.StatusErr != nil {
		return nil, g.StatusErr
	}
	if g.StatusResp != nil {
		return g.StatusResp, nil
	}
	return &ports.GatewayStatus{TransactionRef: transactionRef, State: "PAYMENT_PENDING"}, nil
}
