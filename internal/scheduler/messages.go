package scheduler

// Message is one asynchronous message exchanged between the master and a
// worker. The set of variants is closed.
type Message interface {
	isMessage()
}

// Job is one table handed to a worker.
type Job struct {
	Table  string
	Target string // plan target whose chains produced this job
	Wave   int    // chain index that produced the job; MaxDepth of Target for the target itself
	// Dependencies is the size of the table's dependency set the master gated on.
	Dependencies int
}

// Syn is sent by a worker once its executor is ready.
type Syn struct {
	WorkerID int
}

// Ack is the master accepting a worker's registration.
type Ack struct{}

// SynAck is sent by a worker as it enters service.
type SynAck struct {
	WorkerID int
}

// JobMessage carries a job from the master to a worker.
type JobMessage struct {
	Job Job
}

// Completion reports a successfully processed table.
type Completion struct {
	WorkerID int
	Table    string
}

// Failure reports a table whose processing returned an error.
type Failure struct {
	WorkerID int
	Table    string
	Cause    error
}

// Disconnect asks a worker to release its resources and exit.
type Disconnect struct{}

// Exited is the last message a worker sends. Err is nil for an orderly exit.
type Exited struct {
	WorkerID int
	Err      error
}

func (Syn) isMessage()        {}
func (Ack) isMessage()        {}
func (SynAck) isMessage()     {}
func (JobMessage) isMessage() {}
func (Completion) isMessage() {}
func (Failure) isMessage()    {}
func (Disconnect) isMessage() {}
func (Exited) isMessage()     {}
