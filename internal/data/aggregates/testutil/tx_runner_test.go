package testutil

import (
	"context"
	"errors"
	"testing"

	repotest "github.com/yungbote/enrollment-backend/internal/data/repos/testutil"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

func TestInjectedTxRunner_Counters(t *testing.T) {
	bodyErr := errors.New("boom")
	commitErr := errors.New("commit failed")
	cases := []struct {
		name     string
		runner   *InjectedTxRunner
		body     error
		wantErr  error
		commits  int
		rollback int
	}{
		{name: "commit", runner: &InjectedTxRunner{}, commits: 1},
		{name: "body_error", runner: &InjectedTxRunner{}, body: bodyErr, wantErr: bodyErr, rollback: 1},
		{name: "commit_error", runner: &InjectedTxRunner{FailCommit: commitErr}, wantErr: commitErr, rollback: 1},
		{name: "before_body", runner: &InjectedTxRunner{FailBeforeBody: bodyErr}, wantErr: bodyErr, rollback: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.runner.InTx(context.Background(), func(_ dbctx.Context) error { return tc.body })
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: want=%v got=%v", tc.wantErr, err)
			}
			if tc.runner.BeginCalls != 1 || tc.runner.CommitCalls != tc.commits || tc.runner.RollbackCalls != tc.rollback {
				t.Fatalf("counters begin=%d commit=%d rollback=%d", tc.runner.BeginCalls, tc.runner.CommitCalls, tc.runner.RollbackCalls)
			}
		})
	}
}

func TestInjectedTxRunner_FailCommitRollsBackRealTx(t *testing.T) {
	db := repotest.DB(t)
	commitErr := errors.New("commit failed")
	r := &InjectedTxRunner{DB: db, FailCommit: commitErr}

	err := r.InTx(context.Background(), func(dbc dbctx.Context) error {
		return dbc.Tx.Create(&types.Guardian{Email: "x@example.com", PasswordHash: "h", FirstName: "X", LastName: "Y"}).Error
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("err: want=%v got=%v", commitErr, err)
	}
	if n := repotest.Count(t, db, &types.Guardian{}); n != 0 {
		t.Fatalf("guardian rows after rollback: want=0 got=%d", n)
	}
}
