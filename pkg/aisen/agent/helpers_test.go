package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/worker"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// captureLogger records every log call.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

// has reports whether a message at level contains substr.
func (l *captureLogger) has(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

func (l *captureLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for _, e := range l.entries {
		fmt.Fprintf(&b, "%s: %s %v\n", e.level, e.msg, e.args)
	}
	return b.String()
}

// fakeQueue records lifecycle calls and pushed jobs without delivering.
type fakeQueue struct {
	name    string
	journal *journal

	mu     sync.Mutex
	jobs   []worker.Job
	reject bool
}

func (q *fakeQueue) Push(job worker.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

func (q *fakeQueue) Start()                          { q.journal.add(q.name + ".start") }
func (q *fakeQueue) Stop(time.Duration)              { q.journal.add(q.name + ".stop") }
func (q *fakeQueue) Flush(ctx context.Context) error { return nil }

func (q *fakeQueue) pushed() []worker.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]worker.Job(nil), q.jobs...)
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// queueFactory hands out named fake queues: q1, q2, ...
func queueFactory(j *journal, queues *[]*fakeQueue) WorkerFactory {
	return func(cfg Config, backend aisen.Backend, logger aisen.Logger) worker.Queue {
		q := &fakeQueue{name: fmt.Sprintf("q%d", len(*queues)+1), journal: j}
		*queues = append(*queues, q)
		return q
	}
}

// panicBackend panics on every call.
type panicBackend struct{}

func (panicBackend) Ping(ctx context.Context) error { panic("ping exploded") }

func (panicBackend) Deliver(ctx context.Context, event aisen.ErrorEvent) aisen.Response {
	panic("deliver exploded")
}
