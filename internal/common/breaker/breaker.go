// Package breaker wraps sony/gobreaker so a dead shared store fails fast instead of eating every
// stage deadline.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"notification-engine/internal/common/config"
	"notification-engine/internal/common/logger"
)

// ErrOpen is returned, wrapped, while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

func New(name string, cfg config.BreakerConfig, log logger.Logger) *Breaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openFor := cfg.OpenTimeout
	if openFor <= 0 {
		openFor = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller abandoning the request says nothing about the store.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warn("Circuit breaker state changed", map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			}
		},
	})

	return &Breaker{name: name, cb: cb}
}

func (b *Breaker) Name() string { return b.name }

// State is "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

// Do runs fn through the breaker.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	v, _ := res.(T)
	return v, err
}
