package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FundLocker serializes units of work per fund: holding opens/closes and
// NAV computation for one fund must run strictly ordered because each
// step reads the immediately preceding closed state. Units for different
// funds share nothing and may run concurrently.
type FundLocker interface {
	// Acquire blocks until the fund's lock is held or ctx is done.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, fundID uuid.UUID) (release func(), err error)

	// Close releases any backing resources.
	Close() error
}

// LocalLocker is the single-instance implementation: one semaphore per
// fund, created on first use.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

// NewLocalLocker creates a new LocalLocker instance.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[uuid.UUID]chan struct{})}
}

func (l *LocalLocker) slot(fundID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[fundID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[fundID] = slot
	}
	return slot
}

// Acquire blocks until the fund's semaphore is free or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, fundID uuid.UUID) (func(), error) {
	slot := l.slot(fundID)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquiring lock for fund %s: %w", fundID, ctx.Err())
	}
}

// Close implements FundLocker.
func (l *LocalLocker) Close() error { return nil }

// Config selects and parameterizes the locker implementation.
type Config struct {
	Type   string        `yaml:"type"` // "local" or "redis"
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig carries the redis connection settings for the distributed
// locker.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// New creates a FundLocker from configuration. An empty type means the
// single-instance local locker.
func New(cfg Config) (FundLocker, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalLocker(), nil
	case "redis":
		return NewRedisLocker(cfg)
	default:
		return nil, fmt.Errorf("unsupported lock type %q", cfg.Type)
	}
}
