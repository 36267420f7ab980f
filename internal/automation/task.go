package automation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskNotRunning = errors.New("task is not running")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      int       `json:"step"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Task is a snapshot of one automation run. Values returned by the Store are
// copies and safe to keep.
type Task struct {
	ID          string     `json:"taskId"`
	ProfileID   string     `json:"profileId"`
	Status      Status     `json:"status"`
	CurrentStep int        `json:"currentStep"`
	TotalSteps  int        `json:"totalSteps"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	Logs        []LogEntry `json:"logs"`
}

func (t *Task) clone() Task {
	out := *t
	out.Logs = slices.Clone(t.Logs)
	if t.FinishedAt != nil {
		at := *t.FinishedAt
		out.FinishedAt = &at
	}
	return out
}

type taskEntry struct {
	task Task
	done chan struct{}
}

// Store owns every task record and the cancellation set.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*taskEntry
	cancelled map[string]struct{}
	onLog     func(taskID string, entry LogEntry)
	now       func() time.Time
}

// NewStore returns an empty store. onLog, when set, sees every appended entry.
func NewStore(onLog func(taskID string, entry LogEntry)) *Store {
	return &Store{
		tasks:     make(map[string]*taskEntry),
		cancelled: make(map[string]struct{}),
		onLog:     onLog,
		now:       time.Now,
	}
}

func (s *Store) create(id, profileID string, total int, firstLog string) {
	now := s.now()
	entry := &taskEntry{
		task: Task{
			ID:         id,
			ProfileID:  profileID,
			Status:     StatusRunning,
			TotalSteps: total,
			StartedAt:  now,
			Logs:       []LogEntry{{Timestamp: now, Step: 0, Level: LevelInfo, Message: firstLog}},
		},
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.tasks[id] = entry
	s.mu.Unlock()
	s.emit(id, entry.task.Logs[0])
}

func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return entry.task.clone(), nil
}

// List returns tasks ordered by start time. An empty status matches all.
func (s *Store) List(status Status) []Task {
	s.mu.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, entry := range s.tasks {
		if status != "" && entry.task.Status != status {
			continue
		}
		out = append(out, entry.task.clone())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Task) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Cancel marks a running task; the runner notices before its next step.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if entry.task.Status != StatusRunning {
		return ErrTaskNotRunning
	}
	s.cancelled[id] = struct{}{}
	return nil
}

func (s *Store) cancelRequested(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cancelled[id]
	return ok
}

// Wait blocks until the task reaches a terminal status.
func (s *Store) Wait(ctx context.Context, id string) (Task, error) {
	s.mu.RLock()
	entry, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	select {
	case <-entry.done:
		return s.Get(id)
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

func (s *Store) advance(id string, step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tasks[id]; ok && entry.task.Status == StatusRunning && step > entry.task.CurrentStep {
		entry.task.CurrentStep = step
	}
}

func (s *Store) log(id string, step int, level LogLevel, msg string) {
	e := LogEntry{Timestamp: s.now(), Step: step, Level: level, Message: msg}
	s.mu.Lock()
	entry, ok := s.tasks[id]
	if ok {
		entry.task.Logs = append(entry.task.Logs, e)
	}
	s.mu.Unlock()
	if ok {
		s.emit(id, e)
	}
}

// finish moves a running task to a terminal status exactly once. A negative
// step leaves CurrentStep as it is.
func (s *Store) finish(id string, status Status, step int, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tasks[id]
	if !ok || entry.task.Status != StatusRunning || !status.Terminal() {
		return false
	}
	now := s.now()
	entry.task.Status = status
	entry.task.FinishedAt = &now
	entry.task.Error = errMsg
	if step > entry.task.CurrentStep {
		entry.task.CurrentStep = step
	}
	delete(s.cancelled, id)
	close(entry.done)
	return true
}

func (s *Store) emit(id string, e LogEntry) {
	if s.onLog != nil {
		s.onLog(id, e)
	}
}
