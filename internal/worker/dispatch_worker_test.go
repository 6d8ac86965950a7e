package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradepost/internal/repos"
	"tradepost/internal/testutil"
)

type fakeRedeliverer struct {
	fail     bool
	payloads []string
}

func (f *fakeRedeliverer) Redeliver(_ context.Context, payload string) error {
	f.payloads = append(f.payloads, payload)
	if f.fail {
		return errors.New("still down")
	}
	return nil
}

func TestRunOnceMarksDeliveredEntriesSent(t *testing.T) {
	db := testutil.NewDB(t)
	outbox := repos.NewOutboxRepo(db)
	ctx := context.Background()
	require.NoError(t, outbox.Enqueue(ctx, "order:1/PAID", `{"orderId":1}`, "boom", time.Now()))
	require.NoError(t, outbox.Enqueue(ctx, "order:2/SHIPPED", `{"orderId":2}`, "boom", time.Now()))

	fake := &fakeRedeliverer{}
	w := NewDispatchWorker(outbox, fake, nil, time.Second, 3)

	sent, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.Equal(t, []string{`{"orderId":1}`, `{"orderId":2}`}, fake.payloads)

	e, err := outbox.ByKey(ctx, "order:1/PAID")
	require.NoError(t, err)
	require.Equal(t, repos.OutboxSent, e.Status)
	require.Empty(t, e.LastError)

	pending, err := outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	// a sent entry is not reopened by a late enqueue
	require.NoError(t, outbox.Enqueue(ctx, "order:1/PAID", `{"orderId":1}`, "late", time.Now()))
	e, err = outbox.ByKey(ctx, "order:1/PAID")
	require.NoError(t, err)
	require.Equal(t, repos.OutboxSent, e.Status)
}

func TestRunOnceGivesUpAfterMaxAttempts(t *testing.T) {
	db := testutil.NewDB(t)
	outbox := repos.NewOutboxRepo(db)
	ctx := context.Background()
	require.NoError(t, outbox.Enqueue(ctx, "order:9/CANCELLED", `{"orderId":9}`, "boom", time.Now()))

	w := NewDispatchWorker(outbox, &fakeRedeliverer{fail: true}, nil, time.Second, 3)
	for i := 0; i < 5; i++ {
		sent, err := w.RunOnce(ctx)
		require.NoError(t, err)
		require.Zero(t, sent)
	}

	e, err := outbox.ByKey(ctx, "order:9/CANCELLED")
	require.NoError(t, err)
	require.Equal(t, repos.OutboxFailed, e.Status)
	require.Equal(t, 3, e.Attempts)
	require.Equal(t, "still down", e.LastError)
}

func TestStartStopsWithContext(t *testing.T) {
	db := testutil.NewDB(t)
	w := NewDispatchWorker(repos.NewOutboxRepo(db), &fakeRedeliverer{}, nil, 10*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
