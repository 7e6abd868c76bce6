// Package scheduler runs an execution plan on a pool of workers. The master
// walks the plan, gates every table on its dependencies through the
// processed-state store and hands tables to free workers; workers report back
// by message.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/gofkdump/internal/artifact"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/logger"
)

// Phase is a state of the master.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAwaitWorkers
	PhaseDispatching
	PhaseDraining
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseAwaitWorkers:
		return "await-workers"
	case PhaseDispatching:
		return "dispatching"
	case PhaseDraining:
		return "draining"
	case PhaseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// StateStore is the processed-state store as the master and workers use it.
type StateStore interface {
	CompletionMarker
	Reset(ctx context.Context) error
	MarkSeen(ctx context.Context, table string) (bool, error)
	CountSatisfied(ctx context.Context, names []string) (int, error)
	Destroy() error
}

// Config controls a run.
type Config struct {
	// Workers is the pool size; 0 means the number of CPUs.
	Workers          int
	PollMinInterval  time.Duration
	PollMaxInterval  time.Duration
	HandshakeTimeout time.Duration
	// DependencyTimeout bounds the wait for a table's dependencies; 0 waits forever.
	DependencyTimeout time.Duration
	// JobTimeout bounds a single Process call; 0 means no bound.
	JobTimeout time.Duration
	// PlanPath, when set, is where the plan is persisted at Init and reloaded
	// from when dispatching starts.
	PlanPath string
}

// Scheduler is the master of one run.
type Scheduler struct {
	cfg     Config
	store   StateStore
	factory ExecutorFactory
	base    *logger.Logger
	logger  *logger.Logger

	phase       Phase
	deps        *graph.Graph
	handles     []*WorkerHandle
	byID        map[int]*WorkerHandle
	pool        *Pool
	inbox       chan Message
	outstanding map[int]Job
	result      *RunResult
	fatal       error
	dispatched  []string
}

// New creates a scheduler.
func New(cfg Config, store StateStore, factory ExecutorFactory, log *logger.Logger) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("executor factory is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.PollMinInterval <= 0 {
		cfg.PollMinInterval = 5 * time.Millisecond
	}
	if cfg.PollMaxInterval < cfg.PollMinInterval {
		cfg.PollMaxInterval = 10 * cfg.PollMinInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}

	return &Scheduler{
		cfg:     cfg,
		store:   store,
		factory: factory,
		base:    log,
		logger:  log.WithRole(logger.RoleMaster),
	}, nil
}

// Dispatched returns the tables sent to workers, in dispatch order.
func (s *Scheduler) Dispatched() []string {
	return s.dispatched
}

// Run executes plan. deps gives every table's dependency set for gating; nil
// disables gating, which is only correct when plan order already satisfies
// every dependency.
//
// Table failures do not make Run fail: they are in the result. Run returns an
// error for planning, store and worker-pool failures, and when ctx ends.
func (s *Scheduler) Run(ctx context.Context, plan *graph.ExecutionPlan, deps *graph.Graph) (*RunResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("execution plan is nil")
	}
	if deps == nil {
		deps = graph.NewGraph()
	}

	s.deps = deps
	s.result = &RunResult{StartedAt: time.Now()}
	s.outstanding = make(map[int]Job)
	s.byID = make(map[int]*WorkerHandle)
	s.handles = nil
	s.pool = NewPool()
	s.fatal = nil
	s.dispatched = nil
	// Every worker sends at most Syn, SynAck and Exited besides one report
	// per job, and the master drains the channel at every wait.
	s.inbox = make(chan Message, 4*s.cfg.Workers)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	group := &errgroup.Group{}

	err := s.execute(ctx, workerCtx, group, plan)

	s.shutdown(ctx, cancelWorkers, group)
	s.result.finish()

	if err != nil {
		s.logger.Errorw("Run aborted", "phase", s.phase.String(), "error", err)
		return s.result, err
	}
	return s.result, nil
}

func (s *Scheduler) execute(ctx, workerCtx context.Context, group *errgroup.Group, plan *graph.ExecutionPlan) error {
	s.transition(PhaseInit)
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if s.cfg.PlanPath != "" {
		if err := artifact.SavePlan(s.cfg.PlanPath, plan); err != nil {
			return fmt.Errorf("failed to persist execution plan: %w", err)
		}
		s.logger.Debugw("Execution plan persisted", "path", s.cfg.PlanPath)
	}

	s.transition(PhaseAwaitWorkers)
	if err := s.awaitWorkers(ctx, workerCtx, group); err != nil {
		return err
	}

	s.transition(PhaseDispatching)
	if s.cfg.PlanPath != "" {
		loaded, err := artifact.LoadPlan(s.cfg.PlanPath)
		if err != nil {
			return fmt.Errorf("failed to reload execution plan: %w", err)
		}
		plan = loaded
	}
	if err := s.dispatchPlan(ctx, plan); err != nil {
		return err
	}

	s.transition(PhaseDraining)
	return s.waitUntil(ctx, 0, func() (bool, error) {
		return len(s.outstanding) == 0, nil
	})
}

func (s *Scheduler) transition(p Phase) {
	s.logger.Debugw("Phase change", "from", s.phase.String(), "to", p.String())
	s.phase = p
}

// awaitWorkers starts the pool and waits until every worker either finished
// the handshake or exited. Workers still handshaking at the timeout are
// written off.
func (s *Scheduler) awaitWorkers(ctx, workerCtx context.Context, group *errgroup.Group) error {
	for id := 1; id <= s.cfg.Workers; id++ {
		h := &WorkerHandle{ID: id, Availability: Defunct, inbox: make(chan Message, 4)}
		s.handles = append(s.handles, h)
		s.byID[id] = h

		w := NewWorker(id, h.inbox, s.inbox, s.store, s.factory, s.cfg.JobTimeout, s.base)
		group.Go(func() error {
			return w.Run(workerCtx)
		})
	}

	err := s.waitUntil(ctx, s.cfg.HandshakeTimeout, func() (bool, error) {
		for _, h := range s.handles {
			if !h.registered && !h.exited {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil && !errors.Is(err, errWaitTimeout) {
		return err
	}

	ready := 0
	for _, h := range s.handles {
		if h.registered && !h.exited {
			ready++
		} else if !h.registered && !h.exited {
			s.logger.Warnw("Worker missed the handshake deadline", "worker", h.ID)
		}
	}
	if ready == 0 {
		return ErrNoWorkers
	}
	s.logger.Infow("Workers ready", "ready", ready, "requested", s.cfg.Workers)
	return nil
}

// dispatchPlan walks the plan: for every target, each wave of its chains in
// order, then the target itself.
func (s *Scheduler) dispatchPlan(ctx context.Context, plan *graph.ExecutionPlan) error {
	for _, target := range plan.Targets() {
		depth := plan.MaxDepth(target)
		for i := 0; i < depth; i++ {
			for _, table := range plan.Wave(target, i) {
				if err := s.dispatch(ctx, Job{Table: table, Target: target, Wave: i}); err != nil {
					return err
				}
			}
		}
		if err := s.dispatch(ctx, Job{Table: target, Target: target, Wave: depth}); err != nil {
			return err
		}
	}
	return nil
}

// dispatch sends a table to a worker the first time it is seen. Dependencies
// not seen yet are dispatched first, depth first. The table then waits until
// its dependencies are done and a worker is free.
func (s *Scheduler) dispatch(ctx context.Context, job Job) error {
	s.pump()
	if s.fatal != nil {
		return s.fatal
	}

	seen, err := s.store.MarkSeen(ctx, job.Table)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if seen {
		return nil
	}

	log := s.logger.WithTable(job.Table)
	deps := s.deps.Dependencies(job.Table)
	job.Dependencies = len(deps)

	for _, dep := range deps {
		if err := s.dispatch(ctx, Job{Table: dep, Target: job.Target, Wave: job.Wave}); err != nil {
			return err
		}
	}

	if len(deps) > 0 {
		log.Debugw("Waiting for dependencies", "dependencies", deps)
		err := s.waitUntil(ctx, s.cfg.DependencyTimeout, func() (bool, error) {
			n, err := s.store.CountSatisfied(ctx, deps)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrStore, err)
			}
			return n == len(deps), nil
		})
		if errors.Is(err, errWaitTimeout) {
			log.Warnw("Dependencies not satisfied in time", "timeout", s.cfg.DependencyTimeout)
			s.result.fail(job.Table, fmt.Errorf("%w after %s", ErrDependencyTimeout, s.cfg.DependencyTimeout))
			return nil
		}
		if err != nil {
			return err
		}
	}

	var handle *WorkerHandle
	err = s.waitUntil(ctx, 0, func() (bool, error) {
		if h, ok := s.pool.Acquire(); ok {
			handle = h
			return true, nil
		}
		if s.liveWorkers() == 0 {
			return false, ErrNoWorkers
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	s.outstanding[handle.ID] = job
	s.dispatched = append(s.dispatched, job.Table)
	log.Infow("Dispatching table", "worker", handle.ID, "target", job.Target, "wave", job.Wave)
	s.sendTo(handle, JobMessage{Job: job})
	return nil
}

func (s *Scheduler) liveWorkers() int {
	n := 0
	for _, h := range s.handles {
		if h.registered && h.Availability != Defunct {
			n++
		}
	}
	return n
}

// handle applies one worker message to the master's state.
func (s *Scheduler) handle(msg Message) {
	switch m := msg.(type) {
	case Syn:
		h := s.byID[m.WorkerID]
		if h == nil || h.exited {
			return
		}
		if s.phase != PhaseAwaitWorkers {
			s.logger.Warnw("Late SYN ignored", "worker", m.WorkerID)
			return
		}
		s.logger.Debugw("SYN received", "worker", m.WorkerID)
		s.sendTo(h, Ack{})

	case SynAck:
		h := s.byID[m.WorkerID]
		if h == nil || h.exited || h.registered {
			return
		}
		if s.phase != PhaseAwaitWorkers {
			s.logger.Warnw("Late SYN_ACK ignored", "worker", m.WorkerID)
			return
		}
		h.registered = true
		h.Availability = Available
		s.pool.Release(h)
		s.logger.Debugw("Worker registered", "worker", m.WorkerID)

	case Completion:
		s.settle(m.WorkerID, m.Table)
		s.result.succeed(m.Table)
		s.logger.Infow("Table completed", "worker", m.WorkerID, "table", m.Table)

	case Failure:
		s.settle(m.WorkerID, m.Table)
		s.result.fail(m.Table, m.Cause)
		s.logger.Warnw("Table failed", "worker", m.WorkerID, "table", m.Table, "error", m.Cause)
		if errors.Is(m.Cause, ErrStore) && s.fatal == nil {
			s.fatal = m.Cause
		}

	case Exited:
		h := s.byID[m.WorkerID]
		if h == nil || h.exited {
			return
		}
		h.exited = true
		h.Availability = Defunct
		if job, ok := s.outstanding[m.WorkerID]; ok {
			delete(s.outstanding, m.WorkerID)
			cause := ErrWorkerExited
			if m.Err != nil {
				cause = fmt.Errorf("%w: %v", ErrWorkerExited, m.Err)
			}
			s.result.fail(job.Table, cause)
			s.logger.Errorw("Worker died with a job in flight", "worker", m.WorkerID, "table", job.Table, "error", m.Err)
		} else if m.Err != nil && s.phase != PhaseShutdown {
			s.logger.Warnw("Worker exited", "worker", m.WorkerID, "error", m.Err)
		} else {
			s.logger.Debugw("Worker exited", "worker", m.WorkerID)
		}

	default:
		s.logger.Warnw("Unexpected message", "type", fmt.Sprintf("%T", msg))
	}
}

// settle clears the outstanding job of a worker and puts it back in the pool.
func (s *Scheduler) settle(workerID int, table string) {
	if job, ok := s.outstanding[workerID]; ok && job.Table != table {
		s.logger.Warnw("Report does not match outstanding job", "worker", workerID, "table", table, "outstanding", job.Table)
	}
	delete(s.outstanding, workerID)
	if h := s.byID[workerID]; h != nil && !h.exited {
		s.pool.Release(h)
	}
}

func (s *Scheduler) sendTo(h *WorkerHandle, msg Message) {
	select {
	case h.inbox <- msg:
	default:
		s.logger.Warnw("Worker inbox full, message dropped", "worker", h.ID, "type", fmt.Sprintf("%T", msg))
	}
}

// shutdown disconnects every live worker, waits for them to exit and removes
// the state store. When ctx is already done workers are cancelled instead.
func (s *Scheduler) shutdown(ctx context.Context, cancelWorkers context.CancelFunc, group *errgroup.Group) {
	s.transition(PhaseShutdown)

	for _, h := range s.handles {
		if !h.exited {
			s.sendTo(h, Disconnect{})
		}
	}

	if ctx.Err() == nil {
		_ = s.waitUntil(ctx, 0, func() (bool, error) {
			for _, h := range s.handles {
				if !h.exited {
					return false, nil
				}
			}
			return true, nil
		})
	}
	cancelWorkers()

	if err := group.Wait(); err != nil {
		s.logger.Debugw("Worker group finished with error", "error", err)
	}
	s.pump()

	// Jobs still outstanding here belong to workers that were cancelled.
	for id, job := range s.outstanding {
		s.result.fail(job.Table, fmt.Errorf("%w: run cancelled", ErrWorkerExited))
		delete(s.outstanding, id)
	}

	if err := s.store.Destroy(); err != nil {
		s.logger.Warnw("Failed to remove state store", "error", err)
	}

	s.logger.Infow("Run finished",
		"succeeded", len(s.result.Succeeded),
		"failed", len(s.result.Failed),
		"elapsed", time.Since(s.result.StartedAt))
}
