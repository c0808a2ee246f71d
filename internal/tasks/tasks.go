// ABOUTME: Task registry for long-running, cancellable, progress-reporting tool invocations
// ABOUTME: Explicit injected store with a mutex-guarded map; cancellation is cooperative

package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Record tracks one long-running tool invocation.
// The Cancelled flag is advisory: the running handler must observe it
// between steps; nothing forcibly preempts in-flight work.
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	State       State     `json:"state"`
	CurrentStep int       `json:"currentStep"`
	TotalSteps  int       `json:"totalSteps"`
	StartTime   time.Time `json:"startTime"`
	Cancelled   bool      `json:"cancelled"`
}

// Progress is one progress event emitted by a running handler.
type Progress struct {
	TaskID  string `json:"taskId"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// progressBuffer bounds the progress channel. Events past the bound are
// dropped rather than blocking the running handler.
const progressBuffer = 64

// Store owns the task records for one dispatcher instance.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*Record
	progress chan Progress
	onCount  func(int)
}

// NewStore creates an empty task store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]*Record),
		progress: make(chan Progress, progressBuffer),
	}
}

// SetCountObserver registers a callback invoked with the live task count
// after every create and remove. Used to keep a metrics gauge current.
// Call before the store sees traffic.
func (s *Store) SetCountObserver(fn func(int)) {
	s.onCount = fn
}

// Create registers a new pending task and returns its record.
func (s *Store) Create(name string, totalSteps int) Record {
	rec := &Record{
		ID:         uuid.New().String(),
		Name:       name,
		State:      StatePending,
		TotalSteps: totalSteps,
		StartTime:  time.Now(),
	}
	s.mu.Lock()
	s.records[rec.ID] = rec
	n := len(s.records)
	s.mu.Unlock()
	if s.onCount != nil {
		s.onCount(n)
	}
	return *rec
}

// Get returns a copy of the task record, and whether it exists.
// Handlers re-read their own record before each step to observe the
// cancelled flag.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns copies of all live task records.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// SetState transitions the task to the given state.
func (s *Store) SetState(id string, state State) {
	s.mu.Lock()
	if rec, ok := s.records[id]; ok {
		rec.State = state
	}
	s.mu.Unlock()
}

// Cancel sets the cancelled flag on the matching record if present and
// returns whether a task was found. It does not stop execution itself;
// the running step loop observes the flag cooperatively.
func (s *Store) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	rec.Cancelled = true
	return true
}

// Advance records step completion and emits a progress event.
// Progress updates are strictly increasing in CurrentStep within one task.
func (s *Store) Advance(id string, step int, message string) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if ok && step > rec.CurrentStep {
		rec.CurrentStep = step
	}
	var event *Progress
	if ok {
		event = &Progress{TaskID: id, Current: rec.CurrentStep, Total: rec.TotalSteps, Message: message}
	}
	s.mu.Unlock()

	if event != nil {
		select {
		case s.progress <- *event:
		default:
			// Drop rather than block the running handler
		}
	}
}

// Remove deletes the record. Called in a deferred cleanup when the tool's
// execution frame exits, regardless of outcome.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.records, id)
	n := len(s.records)
	s.mu.Unlock()
	if s.onCount != nil {
		s.onCount(n)
	}
}

// Progress exposes the stream of progress events for forwarding as
// protocol notifications.
func (s *Store) Progress() <-chan Progress {
	return s.progress
}

// Count returns the number of live tasks (for monitoring).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
