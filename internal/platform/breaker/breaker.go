// Package breaker decorates a call with a gobreaker circuit and an optional
// fallback producer.
//
// The circuit opens after FailureThreshold consecutive failures, rejects
// calls for Cooldown, then admits a single trial call (half-open).
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned (or passed to the fallback) when the circuit rejects a call.
var ErrOpen = errors.New("circuit breaker open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type Config struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration
	// OnStateChange is called on every circuit transition.
	OnStateChange func(name string, from, to State)
}

// Fallback receives the failure (or ErrOpen) and may return a substitute.
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

type Breaker[T any] struct {
	cb       *gobreaker.CircuitBreaker[T]
	fallback Fallback[T]
}

type Option[T any] func(*Breaker[T])

func WithFallback[T any](fb Fallback[T]) Option[T] {
	return func(b *Breaker[T]) { b.fallback = fb }
}

func New[T any](cfg Config, opts ...Option[T]) *Breaker[T] {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= threshold },
	}
	if cfg.OnStateChange != nil {
		notify := cfg.OnStateChange
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			notify(name, fromGobreaker(from), fromGobreaker(to))
		}
	}
	b := &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](st)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker[T]) State() State { return fromGobreaker(b.cb.State()) }

// Do runs fn under the breaker.
func (b *Breaker[T]) Do(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (T, error) { return fn(ctx) })
	if err == nil {
		return out, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrOpen
	}
	if b.fallback != nil {
		return b.fallback(ctx, err)
	}
	var zero T
	return zero, err
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
