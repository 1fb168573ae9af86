package jobs

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/enrollment-backend/internal/data/repos/testutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

func newJob(key string, runAt time.Time) *types.WebhookJob {
	return &types.WebhookJob{
		JobType:     "payment_webhook",
		DedupKey:    key,
		Status:      jobs.StatusWaiting,
		MaxAttempts: 3,
		RunAt:       runAt,
		Payload:     datatypes.JSON(`{"data":{"id":"` + key + `"}}`),
	}
}

func TestWebhookJobRepo_InsertDedupsOpenJobs(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWebhookJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	past := time.Now().UTC().Add(-time.Minute)

	ok, err := repo.Insert(dbc, newJob("pay-1", past))
	if err != nil || !ok {
		t.Fatalf("Insert first: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Insert(dbc, newJob("pay-1", past))
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}
	if ok {
		t.Fatalf("Insert duplicate: want=false got=true")
	}
	if n := testutil.Count(t, db, &types.WebhookJob{}); n != 1 {
		t.Fatalf("rows: want=1 got=%d", n)
	}

	open, err := repo.GetOpenByDedupKey(dbc, "pay-1")
	if err != nil || open == nil {
		t.Fatalf("GetOpenByDedupKey: job=%v err=%v", open, err)
	}

	// Once the job finishes the key is free again.
	claimed, err := repo.ClaimNext(dbc, time.Now(), time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", claimed, err)
	}
	if ok, err := repo.MarkCompleted(dbc, claimed.ID, nil, time.Now()); err != nil || !ok {
		t.Fatalf("MarkCompleted: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Insert(dbc, newJob("pay-1", past))
	if err != nil || !ok {
		t.Fatalf("Insert after completion: ok=%v err=%v", ok, err)
	}
}

func TestWebhookJobRepo_ClaimOrderAndLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWebhookJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC()

	future := newJob("future", now.Add(time.Hour))
	low := newJob("low", now.Add(-2*time.Minute))
	high := newJob("high", now.Add(-time.Minute))
	high.Priority = 5
	for _, j := range []*types.WebhookJob{future, low, high} {
		if _, err := repo.Insert(dbc, j); err != nil {
			t.Fatalf("Insert %s: %v", j.DedupKey, err)
		}
	}

	first, err := repo.ClaimNext(dbc, now, time.Minute)
	if err != nil || first == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", first, err)
	}
	if first.DedupKey != "high" || first.Status != jobs.StatusActive || first.Attempts != 1 {
		t.Fatalf("first claim: want=high/active/1 got=%s/%s/%d", first.DedupKey, first.Status, first.Attempts)
	}

	second, err := repo.ClaimNext(dbc, now, time.Minute)
	if err != nil || second == nil || second.DedupKey != "low" {
		t.Fatalf("second claim: job=%v err=%v", second, err)
	}

	none, err := repo.ClaimNext(dbc, now, time.Minute)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if none != nil {
		t.Fatalf("third claim: want=nil got=%s", none.DedupKey)
	}

	if ok, err := repo.MarkDelayed(dbc, second.ID, "boom", now.Add(-time.Second), now); err != nil || !ok {
		t.Fatalf("MarkDelayed: ok=%v err=%v", ok, err)
	}
	again, err := repo.ClaimNext(dbc, now, time.Minute)
	if err != nil || again == nil || again.ID != second.ID || again.Attempts != 2 {
		t.Fatalf("reclaim delayed: job=%+v err=%v", again, err)
	}

	if ok, err := repo.MarkFailed(dbc, again.ID, "boom", now); err != nil || !ok {
		t.Fatalf("MarkFailed: ok=%v err=%v", ok, err)
	}
	// Terminal transitions only apply to active jobs.
	if ok, _ := repo.MarkCompleted(dbc, again.ID, nil, now); ok {
		t.Fatalf("MarkCompleted on failed job: want=false got=true")
	}

	counts, err := repo.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[jobs.StatusFailed] != 1 || counts[jobs.StatusActive] != 1 || counts[jobs.StatusWaiting] != 1 {
		t.Fatalf("CountByStatus: got=%v", counts)
	}

	if ok, err := repo.Requeue(dbc, again.ID, now); err != nil || !ok {
		t.Fatalf("Requeue: ok=%v err=%v", ok, err)
	}
	requeued, err := repo.GetByID(dbc, again.ID)
	if err != nil || requeued == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if requeued.Status != jobs.StatusWaiting || requeued.Attempts != 0 || requeued.OpenDedupKey == nil || *requeued.OpenDedupKey != "low" {
		t.Fatalf("requeued job: got=%+v", requeued)
	}
}

func TestWebhookJobRepo_ReclaimsStaleActive(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWebhookJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC()

	if _, err := repo.Insert(dbc, newJob("stale", now.Add(-time.Minute))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	claimed, err := repo.ClaimNext(dbc, now, time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", claimed, err)
	}

	fresh, err := repo.ClaimNext(dbc, now, time.Minute)
	if err != nil || fresh != nil {
		t.Fatalf("claim with live heartbeat: want=nil got=%v err=%v", fresh, err)
	}
	reclaimed, err := repo.ClaimNext(dbc, now.Add(2*time.Minute), time.Minute)
	if err != nil || reclaimed == nil || reclaimed.ID != claimed.ID {
		t.Fatalf("reclaim stale: job=%v err=%v", reclaimed, err)
	}
	if reclaimed.Attempts != 2 {
		t.Fatalf("attempts: want=2 got=%d", reclaimed.Attempts)
	}
}

func TestWebhookJobRepo_DeleteFinishedBeyond(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWebhookJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	base := time.Now().UTC().Add(-time.Hour)

	var ids []string
	for i := 0; i < 5; i++ {
		finished := base.Add(time.Duration(i) * time.Minute)
		j := newJob("done-"+string(rune('a'+i)), base)
		j.Status = jobs.StatusCompleted
		j.FinishedAt = &finished
		if err := db.Create(j).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids = append(ids, j.ID.String())
	}

	n, err := repo.DeleteFinishedBeyond(dbc, jobs.StatusCompleted, 2)
	if err != nil {
		t.Fatalf("DeleteFinishedBeyond: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted: want=3 got=%d", n)
	}
	left, err := repo.ListByStatus(dbc, jobs.StatusCompleted, 0, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("remaining: want=2 got=%d", len(left))
	}
	for _, j := range left {
		if j.ID.String() != ids[3] && j.ID.String() != ids[4] {
			t.Fatalf("kept an old job: %s", j.ID)
		}
	}

	if n, err := repo.DeleteFinishedBeyond(dbc, jobs.StatusWaiting, 0); err != nil || n != 0 {
		t.Fatalf("open status must be untouched: n=%d err=%v", n, err)
	}
}

func TestWebhookJobRepo_PayloadCollapse(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWebhookJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC()

	j := newJob("pay-9", now.Add(-time.Second))
	if _, err := repo.Insert(dbc, j); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ok, err := repo.RefreshPayload(dbc, j.ID, datatypes.JSON(`{"v":2}`)); err != nil || !ok {
		t.Fatalf("RefreshPayload waiting: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.SetPendingPayload(dbc, j.ID, datatypes.JSON(`{"v":3}`)); ok {
		t.Fatalf("SetPendingPayload on waiting job: want=false got=true")
	}

	if _, err := repo.ClaimNext(dbc, now, time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if ok, _ := repo.RefreshPayload(dbc, j.ID, datatypes.JSON(`{"v":4}`)); ok {
		t.Fatalf("RefreshPayload on active job: want=false got=true")
	}
	if ok, err := repo.SetPendingPayload(dbc, j.ID, datatypes.JSON(`{"v":5}`)); err != nil || !ok {
		t.Fatalf("SetPendingPayload active: ok=%v err=%v", ok, err)
	}
	got, _ := repo.GetByID(dbc, j.ID)
	if string(got.Payload) != `{"v":2}` || string(got.PendingPayload) != `{"v":5}` {
		t.Fatalf("payloads: got=%s pending=%s", got.Payload, got.PendingPayload)
	}
}
