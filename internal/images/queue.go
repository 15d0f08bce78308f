// Package images maintains the rolling buffer of captured images awaiting
// relay to the dashboard, and the JPEG compression applied before sending.
package images

import (
	"sync"
	"time"
)

// Trigger types for captured images.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Task is one captured image pending delivery.
type Task struct {
	Path      string
	Trigger   string
	Timestamp time.Time
}

// Age reports how long the task has been pending.
func (t Task) Age(now time.Time) time.Duration { return now.Sub(t.Timestamp) }

// Queue is a bounded FIFO of image tasks. Staleness shedding at send time
// is the primary backpressure; the length cap additionally bounds memory
// during sustained network loss. Overflow evicts the oldest entry, since a
// newer capture is always worth more than an older one.
type Queue struct {
	mu    sync.Mutex
	tasks []Task
	cap   int
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{cap: capacity}
}

// Push appends a task, evicting the oldest when full.
func (q *Queue) Push(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) >= q.cap {
		q.tasks = q.tasks[1:]
	}
	q.tasks = append(q.tasks, t)
}

// Pop removes and returns the oldest task.
func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

// Requeue puts a task back at the front after a failed send so order is
// preserved for the next cycle.
func (q *Queue) Requeue(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) >= q.cap {
		return // newer captures already filled the buffer; let it go
	}
	q.tasks = append([]Task{t}, q.tasks...)
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
