package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerStore guards another store with a circuit breaker. Once the
// backend fails maxFailures times in a row, calls fail fast with
// gobreaker.ErrOpenState until cooldown has passed.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerStore(inner Store, name string, maxFailures uint32, cooldown time.Duration) *BreakerStore {
	if maxFailures == 0 {
		maxFailures = 3
	}
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = cooldown
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= maxFailures
	}
	// an empty backend is a healthy backend
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNotFound)
	}
	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the breaker state ("closed", "half-open" or "open").
func (b *BreakerStore) State() string { return b.cb.State().String() }

func (b *BreakerStore) Load(ctx context.Context) (map[Key]float64, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[Key]float64), nil
}

func (b *BreakerStore) Save(ctx context.Context, values map[Key]float64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Save(ctx, values)
	})
	return err
}

func (b *BreakerStore) Close() error { return Close(b.inner) }
