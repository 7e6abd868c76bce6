package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gofkdump/internal/logger"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker message")
		return nil
	}
}

func TestWorker_Handshake(t *testing.T) {
	inbox := make(chan Message, 4)
	outbox := make(chan Message, 8)
	rec := newRecorder()
	w := NewWorker(7, inbox, outbox, newMemStore(), factoryFor(rec, nil), 0, logger.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	assert.Equal(t, Syn{WorkerID: 7}, receive(t, outbox))
	inbox <- Ack{}
	assert.Equal(t, SynAck{WorkerID: 7}, receive(t, outbox))

	inbox <- JobMessage{Job: Job{Table: "users"}}
	assert.Equal(t, Completion{WorkerID: 7, Table: "users"}, receive(t, outbox))

	inbox <- Disconnect{}
	assert.Equal(t, Exited{WorkerID: 7}, receive(t, outbox))
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, rec.closed)
}

func TestWorker_FailureKeepsServing(t *testing.T) {
	inbox := make(chan Message, 4)
	outbox := make(chan Message, 8)
	store := newMemStore()
	process := func(ctx context.Context, job Job) error {
		if job.Table == "bad" {
			return errors.New("syntax error")
		}
		return nil
	}
	w := NewWorker(1, inbox, outbox, store, factoryFor(newRecorder(), process), 0, logger.NewNop())

	go func() { _ = w.Run(context.Background()) }()
	receive(t, outbox) // SYN
	inbox <- Ack{}
	receive(t, outbox) // SYN_ACK

	inbox <- JobMessage{Job: Job{Table: "bad"}}
	msg := receive(t, outbox)
	failure, ok := msg.(Failure)
	require.True(t, ok, "expected Failure, got %T", msg)
	assert.Equal(t, "bad", failure.Table)
	assert.False(t, store.isDone("bad"), "failed tables stay unprocessed")

	inbox <- JobMessage{Job: Job{Table: "good"}}
	assert.Equal(t, Completion{WorkerID: 1, Table: "good"}, receive(t, outbox))
	assert.True(t, store.isDone("good"))

	inbox <- Disconnect{}
	receive(t, outbox) // Exited
}

func TestWorker_PanicExits(t *testing.T) {
	inbox := make(chan Message, 4)
	outbox := make(chan Message, 8)
	process := func(ctx context.Context, job Job) error {
		panic("kaboom")
	}
	w := NewWorker(2, inbox, outbox, newMemStore(), factoryFor(newRecorder(), process), 0, logger.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()
	receive(t, outbox)
	inbox <- Ack{}
	receive(t, outbox)

	inbox <- JobMessage{Job: Job{Table: "users"}}
	msg := receive(t, outbox)
	exited, ok := msg.(Exited)
	require.True(t, ok, "expected Exited, got %T", msg)
	assert.Equal(t, 2, exited.WorkerID)
	assert.True(t, errors.Is(exited.Err, ErrWorkerPanicked))
	assert.True(t, errors.Is(<-errCh, ErrWorkerPanicked))
}

func TestWorker_FactoryError(t *testing.T) {
	outbox := make(chan Message, 2)
	factory := func(ctx context.Context, workerID int) (Executor, error) {
		return nil, errors.New("refused")
	}
	w := NewWorker(3, make(chan Message), outbox, newMemStore(), factory, 0, logger.NewNop())

	err := w.Run(context.Background())
	assert.Error(t, err)

	msg := receive(t, outbox)
	exited, ok := msg.(Exited)
	require.True(t, ok)
	assert.Contains(t, exited.Err.Error(), "refused")
}

func TestWorker_StoreFailureReported(t *testing.T) {
	inbox := make(chan Message, 4)
	outbox := make(chan Message, 8)
	w := NewWorker(1, inbox, outbox, failingMarker{}, factoryFor(newRecorder(), nil), 0, logger.NewNop())

	go func() { _ = w.Run(context.Background()) }()
	receive(t, outbox)
	inbox <- Ack{}
	receive(t, outbox)

	inbox <- JobMessage{Job: Job{Table: "users"}}
	failure, ok := receive(t, outbox).(Failure)
	require.True(t, ok)
	assert.True(t, errors.Is(failure.Cause, ErrStore))

	inbox <- Disconnect{}
	receive(t, outbox)
}

func TestWorker_CancelledContext(t *testing.T) {
	inbox := make(chan Message, 4)
	outbox := make(chan Message, 8)
	w := NewWorker(1, inbox, outbox, newMemStore(), factoryFor(newRecorder(), nil), 0, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	receive(t, outbox) // SYN

	cancel()
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type failingMarker struct{}

func (failingMarker) MarkDone(ctx context.Context, table string) error {
	return errors.New("readonly database")
}

func TestPool_FIFOAndDefunct(t *testing.T) {
	p := NewPool()
	h1 := &WorkerHandle{ID: 1}
	h2 := &WorkerHandle{ID: 2}
	h3 := &WorkerHandle{ID: 3, Availability: Defunct}

	p.Release(h1)
	p.Release(h2)
	p.Release(h3)
	assert.Equal(t, 2, p.Len(), "defunct handles are never queued")

	h1.Availability = Defunct // died while queued

	got, ok := p.Acquire()
	require.True(t, ok)
	assert.Equal(t, 2, got.ID, "defunct head is skipped")
	assert.Equal(t, Busy, got.Availability)

	_, ok = p.Acquire()
	assert.False(t, ok)
	assert.Equal(t, 0, p.Len(), "skipped handle is discarded")
}

func TestAvailabilityAndPhaseStrings(t *testing.T) {
	assert.Equal(t, "available", Available.String())
	assert.Equal(t, "busy", Busy.String())
	assert.Equal(t, "defunct", Defunct.String())
	assert.Equal(t, "dispatching", PhaseDispatching.String())
	assert.Equal(t, "shutdown", PhaseShutdown.String())
}

func TestRunResult(t *testing.T) {
	r := &RunResult{StartedAt: time.Now()}
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())

	r.succeed("users")
	r.fail("orders", errors.New("duplicate key"))
	r.fail("items", ErrDependencyTimeout)
	r.finish()

	assert.False(t, r.OK())
	assert.Equal(t, 3, r.Total())
	assert.Equal(t, []string{"orders", "items"}, r.FailedTables())
	assert.Equal(t, "Backed up 1 tables and failed for 2 table(s)", r.Summary("Backed up"))

	err := r.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table orders: duplicate key")
	assert.True(t, errors.Is(err, ErrDependencyTimeout))
	assert.GreaterOrEqual(t, r.Duration, time.Duration(0))
}
