package worker

import (
	"fmt"
	"time"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// State is a job's position in the delivery state machine:
//
//	Pending -> InFlight -> Delivered
//	                    -> Retrying -> InFlight ...
//	                    -> Dropped
type State int

const (
	StatePending State = iota
	StateInFlight
	StateRetrying
	StateDelivered
	StateDropped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateRetrying:
		return "retrying"
	case StateDelivered:
		return "delivered"
	case StateDropped:
		return "dropped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DropReason explains why a job left the worker without being delivered.
type DropReason string

const (
	// DropQueueFull: the overflow policy evicted the job.
	DropQueueFull DropReason = "queue_full"

	// DropFatal: the backend rejected the job with a non-retryable status.
	DropFatal DropReason = "fatal"

	// DropMaxAttempts: the attempt budget was exhausted.
	DropMaxAttempts DropReason = "max_attempts"

	// DropMaxElapsed: the next retry would land outside the retry window.
	DropMaxElapsed DropReason = "max_elapsed"

	// DropPanic: processing the job panicked.
	DropPanic DropReason = "panic"

	// DropShutdown: the worker stopped before the job could be delivered.
	DropShutdown DropReason = "shutdown"

	// DropStopped: the job was pushed after Stop.
	DropStopped DropReason = "stopped"
)

// Job is one event moving through the worker.
type Job struct {
	// Event is the prepared payload.
	Event aisen.ErrorEvent

	// CreatedAt anchors the retry window.
	CreatedAt time.Time

	// Attempts counts delivery attempts made so far.
	Attempts int

	// LastErr is the most recent delivery failure.
	LastErr error

	// LastStatus is the most recent transport status, 0 if none.
	LastStatus int

	// State is the job's current state.
	State State

	nextAttempt time.Time
	index       int // position in the retry heap
}

// NewJob wraps a prepared event in a pending job.
func NewJob(event aisen.ErrorEvent, now time.Time) Job {
	return Job{Event: event, CreatedAt: now, State: StatePending, index: -1}
}

// retryHeap orders retrying jobs by their next attempt time.
type retryHeap []*Job

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool { return h[i].nextAttempt.Before(h[j].nextAttempt) }

func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}
