package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong value type")
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	_, _, err := WithTx(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error when no connection")
	}
	if err.Error() != "no database connection in context" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTxManager_NoPool(t *testing.T) {
	m := NewTxManager(nil)
	called := false
	err := m.InTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error without a pool")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

type recordingTx struct {
	pgx.Tx
	commits     int
	rollbacks   int
	rollbackErr error
}

func (r *recordingTx) Commit(context.Context) error {
	r.commits++
	return nil
}

func (r *recordingTx) Rollback(context.Context) error {
	r.rollbacks++
	return r.rollbackErr
}

type recordingBeginner struct {
	tx     *recordingTx
	begins int
}

func (b *recordingBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.begins++
	return b.tx, nil
}

func newRecordingManager() (*TxManager, *recordingBeginner) {
	b := &recordingBeginner{tx: &recordingTx{}}
	return &TxManager{begin: b}, b
}

func TestTxManager_CommitsOnSuccess(t *testing.T) {
	m, b := newRecordingManager()
	var seen pgx.Tx
	err := m.InTx(context.Background(), func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != b.tx {
		t.Error("fn should see the transaction in its context")
	}
	if b.tx.commits != 1 || b.tx.rollbacks != 0 {
		t.Errorf("commits=%d rollbacks=%d, want 1 and 0", b.tx.commits, b.tx.rollbacks)
	}
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	m, b := newRecordingManager()
	boom := errors.New("boom")
	err := m.InTx(context.Background(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if b.tx.commits != 0 || b.tx.rollbacks != 1 {
		t.Errorf("commits=%d rollbacks=%d, want 0 and 1", b.tx.commits, b.tx.rollbacks)
	}
}

func TestTxManager_RollbackErrorJoined(t *testing.T) {
	m, b := newRecordingManager()
	b.tx.rollbackErr = errors.New("connection reset")
	boom := errors.New("boom")
	err := m.InTx(context.Background(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) || !errors.Is(err, b.tx.rollbackErr) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
}

func TestTxManager_ClosedTxRollbackIgnored(t *testing.T) {
	m, b := newRecordingManager()
	b.tx.rollbackErr = pgx.ErrTxClosed
	boom := errors.New("boom")
	err := m.InTx(context.Background(), func(context.Context) error { return boom })
	if errors.Is(err, pgx.ErrTxClosed) {
		t.Errorf("closed tx should not be reported, got %v", err)
	}
}

func TestTxManager_RollsBackAndRepanics(t *testing.T) {
	m, b := newRecordingManager()
	defer func() {
		if p := recover(); p != "kaboom" {
			t.Errorf("expected panic to propagate, got %v", p)
		}
		if b.tx.commits != 0 || b.tx.rollbacks != 1 {
			t.Errorf("commits=%d rollbacks=%d, want 0 and 1", b.tx.commits, b.tx.rollbacks)
		}
	}()
	_ = m.InTx(context.Background(), func(context.Context) error { panic("kaboom") })
	t.Error("InTx should not return after a panic")
}

func TestTxManager_NestedCallJoinsOuter(t *testing.T) {
	m, b := newRecordingManager()
	innerRan := false
	err := m.InTx(context.Background(), func(ctx context.Context) error {
		outer := TxFromContext(ctx)
		return m.InTx(ctx, func(ctx context.Context) error {
			innerRan = true
			if TxFromContext(ctx) != outer {
				t.Error("inner call should reuse the outer transaction")
			}
			if b.tx.commits != 0 {
				t.Error("inner call must not commit")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if !innerRan {
		t.Fatal("inner fn did not run")
	}
	if b.begins != 1 || b.tx.commits != 1 {
		t.Errorf("begins=%d commits=%d, want 1 and 1", b.begins, b.tx.commits)
	}
}

func TestTxManager_NestedErrorRollsBackOuter(t *testing.T) {
	m, b := newRecordingManager()
	boom := errors.New("boom")
	err := m.InTx(context.Background(), func(ctx context.Context) error {
		return m.InTx(ctx, func(context.Context) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected inner error, got %v", err)
	}
	if b.tx.commits != 0 || b.tx.rollbacks != 1 {
		t.Errorf("commits=%d rollbacks=%d, want 0 and 1", b.tx.commits, b.tx.rollbacks)
	}
}

func TestSlowQueryTracer(t *testing.T) {
	var buf bytes.Buffer
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	tr := &slowQueryTracer{
		threshold: 100 * time.Millisecond,
		logger:    zerolog.New(&buf),
		now:       func() time.Time { return now },
	}

	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	now = base.Add(10 * time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	if buf.Len() != 0 {
		t.Fatalf("fast query should not be logged, got %s", buf.String())
	}

	ctx = tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT pg_sleep(1)"})
	now = now.Add(time.Second)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	if !strings.Contains(buf.String(), "pg_sleep") {
		t.Errorf("expected slow query logged, got %s", buf.String())
	}
}
