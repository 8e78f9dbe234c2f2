package ingestion

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

type Task struct {
	ID          string     `json:"task_id"`
	SessionID   int64      `json:"session_id"`
	Status      TaskStatus `json:"status"`
	ChunksStored int       `json:"chunks_stored"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Tracker is an in-memory registry of ingestion tasks. Tasks are goroutines
// local to this process, so their handles live here rather than in SQLite;
// the coarse per-source statuses on the session row are the durable record.
type Tracker struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	bySession   map[int64]string
	subscribers map[string][]chan Task
}

func NewTracker() *Tracker {
	return &Tracker{
		tasks:       make(map[string]*Task),
		bySession:   make(map[int64]string),
		subscribers: make(map[string][]chan Task),
	}
}

func (t *Tracker) Create(sessionID int64) *Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	task := &Task{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Status:    TaskPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	t.tasks[task.ID] = task
	t.bySession[sessionID] = task.ID
	return task
}

func (t *Tracker) Get(taskID string) (Task, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

func (t *Tracker) GetBySession(sessionID int64) (Task, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	taskID, ok := t.bySession[sessionID]
	if !ok {
		return Task{}, false
	}
	return *t.tasks[taskID], true
}

func (t *Tracker) SetRunning(taskID string) {
	t.update(taskID, func(task *Task) {
		task.Status = TaskRunning
	})
}

func (t *Tracker) SetSucceeded(taskID string, chunksStored int) {
	t.update(taskID, func(task *Task) {
		task.Status = TaskSucceeded
		task.ChunksStored = chunksStored
	})
}

func (t *Tracker) SetFailed(taskID string, errMsg string) {
	t.update(taskID, func(task *Task) {
		task.Status = TaskFailed
		task.Error = errMsg
	})
}

// Subscribe returns a channel receiving every status change for the task.
// The channel is closed when the task reaches a terminal state.
func (t *Tracker) Subscribe(taskID string) (<-chan Task, func()) {
	ch := make(chan Task, 8)

	t.mu.Lock()
	defer t.mu.Unlock()

	if task, ok := t.tasks[taskID]; ok {
		ch <- *task
		if task.Status == TaskSucceeded || task.Status == TaskFailed {
			close(ch)
			return ch, func() {}
		}
	}

	t.subscribers[taskID] = append(t.subscribers[taskID], ch)

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		subs := t.subscribers[taskID]
		for i, sub := range subs {
			if sub == ch {
				t.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (t *Tracker) update(taskID string, fn func(*Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return
	}
	fn(task)
	task.UpdatedAt = time.Now()

	terminal := task.Status == TaskSucceeded || task.Status == TaskFailed
	for _, ch := range t.subscribers[taskID] {
		select {
		case ch <- *task:
		default:
		}
		if terminal {
			close(ch)
		}
	}
	if terminal {
		delete(t.subscribers, taskID)
	}
}
