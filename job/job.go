package job

import "time"

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be claimed by a worker.
	StatePending State = "pending"
	// StateProcessing means exactly one worker is executing the job.
	StateProcessing State = "processing"
	// StateCompleted means the command returned zero. Terminal.
	StateCompleted State = "completed"
	// StateDead means the job exhausted its retries. Terminal.
	StateDead State = "dead"
)

// States lists every state in lifecycle order.
var States = []State{StatePending, StateProcessing, StateCompleted, StateDead}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateDead:
		return true
	}
	return false
}

// IsTerminal reports whether no automated transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateDead
}

// ParseState converts a string to a State.
func ParseState(s string) (State, bool) {
	st := State(s)
	return st, st.Valid()
}

// Job is a unit of work: an opaque command plus retry metadata.
type Job struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// NextRunAt is the earliest unix time (seconds) at which a pending job
	// may be claimed. Zero means immediately.
	NextRunAt int64 `json:"next_run_at"`
}

// Ready reports whether the job can be claimed at now.
func (j *Job) Ready(now time.Time) bool {
	return j.State == StatePending && (j.NextRunAt == 0 || j.NextRunAt <= now.Unix())
}

// Before reports whether j precedes o in FIFO order: earliest CreatedAt
// first, ties broken by ID.
func (j *Job) Before(o *Job) bool {
	if !j.CreatedAt.Equal(o.CreatedAt) {
		return j.CreatedAt.Before(o.CreatedAt)
	}
	return j.ID < o.ID
}
