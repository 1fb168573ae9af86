package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
)

// Lifecycle is the slice of the webhook queue a running job reports to.
type Lifecycle interface {
	Heartbeat(ctx context.Context, jobID uuid.UUID) error
	Complete(ctx context.Context, job *types.WebhookJob, result any) error
	Fail(ctx context.Context, job *types.WebhookJob, cause error) (bool, error)
}

// Outcome is how a job run ended, as seen by the worker.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeRetrying   Outcome = "retrying"
	OutcomeDeadLetter Outcome = "dead_lettered"
)

type Context struct {
	Ctx   context.Context
	Job   *types.WebhookJob
	Queue Lifecycle

	mu      sync.Mutex
	payload map[string]any
	outcome Outcome
	err     error
}

func NewContext(ctx context.Context, job *types.WebhookJob, queue Lifecycle) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	jc := &Context{Ctx: ctx, Job: job, Queue: queue}
	jc.payload = jc.decodePayload()
	jc.applyTraceData()
	return jc
}

func (c *Context) decodePayload() map[string]any {
	if c == nil || c.Job == nil || len(c.Job.Payload) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// applyTraceData carries the enqueuing request's ids into the job context so
// handler logs correlate with the delivery that produced them.
func (c *Context) applyTraceData() {
	if c == nil || c.payload == nil {
		return
	}
	td := &ctxutil.TraceData{}
	if existing := ctxutil.GetTraceData(c.Ctx); existing != nil {
		*td = *existing
	}
	if v, ok := c.payload["trace_id"].(string); ok && strings.TrimSpace(v) != "" && td.TraceID == "" {
		td.TraceID = strings.TrimSpace(v)
	}
	if v, ok := c.payload["request_id"].(string); ok && strings.TrimSpace(v) != "" && td.RequestID == "" {
		td.RequestID = strings.TrimSpace(v)
	}
	if td.TraceID != "" || td.RequestID != "" {
		c.Ctx = ctxutil.WithTraceData(c.Ctx, td)
	}
}

// DecodePayload unmarshals the raw job payload into dst.
func (c *Context) DecodePayload(dst any) error {
	if c == nil || c.Job == nil {
		return json.Unmarshal([]byte("null"), dst)
	}
	return json.Unmarshal(c.Job.Payload, dst)
}

// PayloadUUID reads a string field of the payload as a UUID.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.payload[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	s, ok := v.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Heartbeat extends the job lease.
func (c *Context) Heartbeat() error {
	if c == nil || c.Job == nil || c.Queue == nil {
		return nil
	}
	return c.Queue.Heartbeat(c.Ctx, c.Job.ID)
}

// Fail hands the error to the queue, which retries with backoff or
// dead-letters. Only the first terminal call on a context takes effect.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Job == nil || c.Queue == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome != OutcomeNone {
		return
	}
	if stage != "" && err != nil {
		err = &stageError{Stage: stage, Err: err}
	}
	dead, qerr := c.Queue.Fail(c.Ctx, c.Job, err)
	c.err = err
	if qerr != nil {
		c.err = qerr
	}
	if dead {
		c.outcome = OutcomeDeadLetter
	} else {
		c.outcome = OutcomeRetrying
	}
}

func (c *Context) Succeed(stage string, result any) {
	if c == nil || c.Job == nil || c.Queue == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome != OutcomeNone {
		return
	}
	if m, ok := result.(map[string]any); ok && stage != "" {
		if _, exists := m["stage"]; !exists {
			m["stage"] = stage
		}
	}
	if err := c.Queue.Complete(c.Ctx, c.Job, result); err != nil {
		c.err = err
		c.outcome = OutcomeRetrying
		return
	}
	c.outcome = OutcomeSucceeded
}

// Outcome reports how the run ended and the error it was failed with, if any.
func (c *Context) Outcome() (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome, c.err
}

type stageError struct {
	Stage string
	Err   error
}

func (e *stageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *stageError) Unwrap() error { return e.Err }
