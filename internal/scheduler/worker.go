package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/gofkdump/internal/logger"
)

// Executor processes one table per call. Each worker owns one executor and
// therefore one set of connections.
type Executor interface {
	Process(ctx context.Context, job Job) error
	Close() error
}

// ExecutorFactory opens the executor of a worker.
type ExecutorFactory func(ctx context.Context, workerID int) (Executor, error)

// CompletionMarker records a finished table in the processed-state store.
type CompletionMarker interface {
	MarkDone(ctx context.Context, table string) error
}

// ErrWorkerPanicked is the exit cause of a worker whose executor panicked.
var ErrWorkerPanicked = errors.New("worker panicked")

// Worker runs jobs one at a time for the master. It only talks to the
// master through its inbox and the shared outbox.
type Worker struct {
	id         int
	inbox      <-chan Message
	outbox     chan<- Message
	store      CompletionMarker
	factory    ExecutorFactory
	jobTimeout time.Duration
	logger     *logger.Logger
}

// NewWorker creates a worker. It does nothing until Run is called.
func NewWorker(id int, inbox <-chan Message, outbox chan<- Message, store CompletionMarker,
	factory ExecutorFactory, jobTimeout time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Worker{
		id:         id,
		inbox:      inbox,
		outbox:     outbox,
		store:      store,
		factory:    factory,
		jobTimeout: jobTimeout,
		logger:     log.WithWorker(id),
	}
}

// Run opens the executor, performs the handshake and serves jobs until the
// master sends Disconnect or ctx is cancelled. Exited is always the last
// message sent.
func (w *Worker) Run(ctx context.Context) (err error) {
	executor, err := w.factory(ctx, w.id)
	if err != nil {
		err = fmt.Errorf("failed to open executor: %w", err)
		w.logger.Errorw("Worker could not start", "error", err)
		w.send(ctx, Exited{WorkerID: w.id, Err: err})
		return err
	}

	defer func() {
		if cerr := executor.Close(); cerr != nil {
			w.logger.Warnw("Failed to close executor", "error", cerr)
		}
		w.send(ctx, Exited{WorkerID: w.id, Err: err})
	}()

	if !w.send(ctx, Syn{WorkerID: w.id}) {
		return ctx.Err()
	}
	w.logger.Debug("SYN sent")

	registered := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-w.inbox:
			switch m := msg.(type) {
			case Ack:
				if registered {
					continue
				}
				registered = true
				w.logger.Debug("ACK received, entering service")
				if !w.send(ctx, SynAck{WorkerID: w.id}) {
					return ctx.Err()
				}
			case JobMessage:
				if !registered {
					w.logger.Warnw("Job received before registration", "table", m.Job.Table)
				}
				if err := w.handle(ctx, executor, m.Job); err != nil {
					return err
				}
			case Disconnect:
				w.logger.Debug("Disconnect received")
				return nil
			default:
				w.logger.Warnw("Unexpected message", "type", fmt.Sprintf("%T", msg))
			}
		}
	}
}

// handle runs one job and reports the outcome. A non-nil return ends the
// worker: the executor panicked or ctx was cancelled.
func (w *Worker) handle(ctx context.Context, executor Executor, job Job) error {
	log := w.logger.WithTable(job.Table)
	log.Debugw("Processing table", "target", job.Target, "wave", job.Wave)
	started := time.Now()

	procErr, panicErr := w.process(ctx, executor, job)
	if panicErr != nil {
		log.Errorw("Executor panicked", "error", panicErr)
		return panicErr
	}

	if procErr == nil {
		if err := w.store.MarkDone(ctx, job.Table); err != nil {
			procErr = fmt.Errorf("%w: %v", ErrStore, err)
		}
	}

	if procErr != nil {
		log.Warnw("Table failed", "error", procErr, "elapsed", time.Since(started))
		if !w.send(ctx, Failure{WorkerID: w.id, Table: job.Table, Cause: procErr}) {
			return ctx.Err()
		}
		return nil
	}

	log.Debugw("Table done", "elapsed", time.Since(started))
	if !w.send(ctx, Completion{WorkerID: w.id, Table: job.Table}) {
		return ctx.Err()
	}
	return nil
}

func (w *Worker) process(ctx context.Context, executor Executor, job Job) (procErr, panicErr error) {
	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr = fmt.Errorf("%w while processing %s: %v", ErrWorkerPanicked, job.Table, r)
		}
	}()

	return executor.Process(jobCtx, job), nil
}

// send delivers msg to the master unless ctx is cancelled first.
func (w *Worker) send(ctx context.Context, msg Message) bool {
	select {
	case w.outbox <- msg:
		return true
	case <-ctx.Done():
		// Best effort once cancelled: the master may still be listening
		select {
		case w.outbox <- msg:
			return true
		default:
			return false
		}
	}
}
