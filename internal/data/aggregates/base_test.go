package aggregates

import (
	"context"
	"testing"
	"time"

	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

func TestExecuteWriteObservesStatus(t *testing.T) {
	cases := []struct {
		name       string
		body       error
		wantStatus string
		conflicts  int
		retries    int
	}{
		{name: "success", wantStatus: "success"},
		{name: "invariant", body: InvariantError("active is terminal"), wantStatus: string(domainagg.CodeInvariantViolation)},
		{name: "conflict", body: ConflictError("state changed"), wantStatus: string(domainagg.CodeConflict), conflicts: 1},
		{name: "retryable", body: RetryableError("lock timeout"), wantStatus: string(domainagg.CodeRetryable), retries: 1},
		{name: "exhausted", body: domainagg.NewError(domainagg.CodeResourceExhausted, "pin", "none left", nil), wantStatus: string(domainagg.CodeResourceExhausted)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &recordingHooks{}
			runner := directRunner{}
			op := "Enrollment.Test." + tc.name

			err := executeWrite(context.Background(), BaseDeps{Runner: runner, Hooks: hooks}, op, func(_ dbctx.Context) error {
				return tc.body
			})
			if (err == nil) != (tc.body == nil) {
				t.Fatalf("err: want=%v got=%v", tc.body, err)
			}
			if got := hooks.StatusOf(op); got != tc.wantStatus {
				t.Fatalf("status: want=%s got=%s", tc.wantStatus, got)
			}
			if len(hooks.Conflicts) != tc.conflicts || len(hooks.Retries) != tc.retries {
				t.Fatalf("counters: want conflicts=%d retries=%d got conflicts=%d retries=%d",
					tc.conflicts, tc.retries, len(hooks.Conflicts), len(hooks.Retries))
			}
		})
	}
}

func TestExecuteWriteMapsBeginFailure(t *testing.T) {
	hooks := &recordingHooks{}
	runner := directRunner{beginErr: context.DeadlineExceeded}
	called := false
	err := executeWrite(context.Background(), BaseDeps{Runner: runner, Hooks: hooks}, "Enrollment.Test.Begin", func(_ dbctx.Context) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("body must not run when begin fails")
	}
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("code: want=retryable got=%v", err)
	}
}

func TestAggregateErrorStatus(t *testing.T) {
	if got := aggregateErrorStatus(nil); got != "success" {
		t.Fatalf("nil status: want=success got=%s", got)
	}
	if got := aggregateErrorStatus(context.DeadlineExceeded); got != string(domainagg.CodeRetryable) {
		t.Fatalf("deadline status: got=%s", got)
	}
}

// directRunner runs the body without a database; beginErr simulates a failed BEGIN.
type directRunner struct {
	beginErr error
}

func (r directRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if r.beginErr != nil {
		return r.beginErr
	}
	if fn == nil {
		return nil
	}
	return fn(dbctx.Context{Ctx: ctx})
}

type recordingHooks struct {
	statuses  map[string]string
	Conflicts []string
	Retries   []string
}

func (h *recordingHooks) StatusOf(name string) string { return h.statuses[name] }

func (h *recordingHooks) ObserveOperation(name, status string, _ time.Duration) {
	if h.statuses == nil {
		h.statuses = map[string]string{}
	}
	h.statuses[name] = status
}

func (h *recordingHooks) IncConflict(name string) { h.Conflicts = append(h.Conflicts, name) }
func (h *recordingHooks) IncRetry(name string)    { h.Retries = append(h.Retries, name) }
