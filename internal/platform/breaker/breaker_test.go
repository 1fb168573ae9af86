package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThresholdAndRecovers(t *testing.T) {
	b := New[int](Config{FailureThreshold: 2, Cooldown: 50 * time.Millisecond})
	boom := errors.New("boom")
	calls := 0
	failing := func(context.Context) (int, error) { calls++; return 0, boom }

	for i := 0; i < 2; i++ {
		if _, err := b.Do(context.Background(), failing); !errors.Is(err, boom) {
			t.Fatalf("call %d: want boom got=%v", i, err)
		}
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state: want=%s got=%s", StateOpen, got)
	}
	if _, err := b.Do(context.Background(), failing); !errors.Is(err, ErrOpen) {
		t.Fatalf("open call: want ErrOpen got=%v", err)
	}
	if calls != 2 {
		t.Fatalf("calls while open: want=2 got=%d", calls)
	}

	time.Sleep(80 * time.Millisecond)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after cooldown: want=%s got=%s", StateHalfOpen, got)
	}
	v, err := b.Do(context.Background(), func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("trial call: want=7,nil got=%d,%v", v, err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after trial: want=%s got=%s", StateClosed, got)
	}
}

func TestBreakerFallback(t *testing.T) {
	b := New[bool](Config{FailureThreshold: 1, Cooldown: time.Hour},
		WithFallback[bool](func(_ context.Context, cause error) (bool, error) { return true, nil }))

	v, err := b.Do(context.Background(), func(context.Context) (bool, error) { return false, errors.New("down") })
	if err != nil || !v {
		t.Fatalf("fallback on failure: want=true,nil got=%v,%v", v, err)
	}
	v, err = b.Do(context.Background(), func(context.Context) (bool, error) {
		t.Fatalf("wrapped call must not run while open")
		return false, nil
	})
	if err != nil || !v {
		t.Fatalf("fallback while open: want=true,nil got=%v,%v", v, err)
	}
}

func TestBreakerFallbackSeesErrOpen(t *testing.T) {
	var causes []error
	b := New[int](Config{FailureThreshold: 1, Cooldown: time.Hour},
		WithFallback[int](func(_ context.Context, cause error) (int, error) {
			causes = append(causes, cause)
			return -1, nil
		}))
	down := errors.New("down")
	_, _ = b.Do(context.Background(), func(context.Context) (int, error) { return 0, down })
	_, _ = b.Do(context.Background(), func(context.Context) (int, error) { return 0, nil })
	if len(causes) != 2 || !errors.Is(causes[0], down) || !errors.Is(causes[1], ErrOpen) {
		t.Fatalf("causes: want=[down ErrOpen] got=%v", causes)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	var transitions []State
	b := New[int](Config{
		FailureThreshold: 1,
		Cooldown:         30 * time.Millisecond,
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})
	_, _ = b.Do(context.Background(), func(context.Context) (int, error) { return 0, errors.New("x") })
	time.Sleep(50 * time.Millisecond)
	_, _ = b.Do(context.Background(), func(context.Context) (int, error) { return 0, errors.New("y") })
	if got := b.State(); got != StateOpen {
		t.Fatalf("state: want=%s got=%s", StateOpen, got)
	}
	want := []State{StateOpen, StateHalfOpen, StateOpen}
	if len(transitions) != len(want) {
		t.Fatalf("transitions: want=%v got=%v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions: want=%v got=%v", want, transitions)
		}
	}
}
