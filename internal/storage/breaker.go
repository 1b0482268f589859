package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/internal/metrics"
	"github.com/aldoetobex/bufete-backend/pkg/apperr"
)

// Breaker stops calling a remote backend after consecutive failures and
// answers apperr.ErrUnavailable until the reset timeout has passed.
type Breaker struct {
	name string
	next FileStorage
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(name string, next FileStorage, maxFailures uint32, reset time.Duration, log *zap.Logger) *Breaker {
	if maxFailures == 0 {
		maxFailures = 5
	}
	if reset <= 0 {
		reset = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storage-" + name,
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Caller cancellations say nothing about the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("storage circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Breaker{name: name, next: next, cb: cb}
}

func (b *Breaker) run(op string, fn func() (string, error)) (string, error) {
	start := time.Now()
	out, err := b.cb.Execute(func() (any, error) { return fn() })
	metrics.StorageOps.WithLabelValues(b.name, op, metrics.Outcome(err)).Inc()
	metrics.StorageLatency.WithLabelValues(b.name, op).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s storage: %v", apperr.ErrUnavailable, b.name, err)
	}
	if err != nil {
		return "", err
	}
	s, _ := out.(string)
	return s, nil
}

func (b *Breaker) Store(ctx context.Context, key string, r io.Reader, contentType string, size int64) (string, error) {
	return b.run("store", func() (string, error) { return b.next.Store(ctx, key, r, contentType, size) })
}

func (b *Breaker) SignedURL(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	return b.run("sign", func() (string, error) { return b.next.SignedURL(ctx, storagePath, ttl) })
}

func (b *Breaker) Delete(ctx context.Context, storagePath string) error {
	_, err := b.run("delete", func() (string, error) { return "", b.next.Delete(ctx, storagePath) })
	return err
}

// State reports the breaker state, for health output.
func (b *Breaker) State() string { return b.cb.State().String() }
