package scheduler

import (
	"container/list"
)

// Availability is the dispatch state of a worker.
type Availability int

const (
	Available Availability = iota
	Busy
	Defunct
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Busy:
		return "busy"
	case Defunct:
		return "defunct"
	default:
		return "unknown"
	}
}

// WorkerHandle is the master's view of one worker.
type WorkerHandle struct {
	ID           int
	Availability Availability

	registered bool // finished the handshake
	exited     bool // sent Exited, or never came up
	inbox      chan Message
}

// Alive reports whether the worker goroutine can still receive messages.
func (h *WorkerHandle) Alive() bool {
	return !h.exited
}

// Pool is the FIFO queue of workers waiting for a job.
type Pool struct {
	queue *list.List
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{queue: list.New()}
}

// Release puts a worker at the back of the queue and marks it Available.
// Defunct workers are never queued.
func (p *Pool) Release(h *WorkerHandle) {
	if h.Availability == Defunct {
		return
	}
	h.Availability = Available
	p.queue.PushBack(h)
}

// Acquire pops the first Available worker and marks it Busy. Defunct
// handles found on the way are discarded.
func (p *Pool) Acquire() (*WorkerHandle, bool) {
	for p.queue.Len() > 0 {
		elem := p.queue.Front()
		p.queue.Remove(elem)
		h := elem.Value.(*WorkerHandle)
		if h.Availability != Available {
			continue
		}
		h.Availability = Busy
		return h, true
	}
	return nil, false
}

// Len returns the number of queued handles, Defunct ones included.
func (p *Pool) Len() int {
	return p.queue.Len()
}
