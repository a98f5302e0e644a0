package task

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gallofeliz/hen-backup/internal/logfields"
	"github.com/gallofeliz/hen-backup/internal/metrics"
)

// Manager is a priority queue plus single serial worker, generalized from
// the teacher's channel-based internal/build/queue.BuildQueue worker pool
// onto original_source/tasks.py's TaskManager semantics.
//
// Submission policy by priority (spec §4.6):
//   - normal: appended to the tail of the pending list.
//   - next: inserted after the last non-normal entry, so pending next
//     tasks stay FIFO among themselves while preceding any normal task.
//   - immediate: appended (becomes the next pop) if the pending list is
//     empty; otherwise spawned as a parallel runner immediately, so it
//     never waits behind a busy queue.
type Manager struct {
	mu      sync.Mutex
	pending []*Task
	running map[*Task]context.CancelFunc
	waiter  chan struct{}

	logger  *slog.Logger
	stopped bool
	stopCh  chan struct{}

	recorder metrics.Recorder

	wg sync.WaitGroup
}

// NewManager builds an idle task manager. Call Run to start the worker.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger,
		stopCh:   make(chan struct{}),
		running:  make(map[*Task]context.CancelFunc),
		recorder: metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder for queue depth and task
// duration observations (optional; defaults to a no-op).
func (m *Manager) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	m.mu.Lock()
	m.recorder = r
	m.mu.Unlock()
}

// taskKind extracts the leading identifier word of a task ID (e.g.
// "backup" from "backup_photos") for use as a metrics label. An empty ID
// (unkeyed tasks) reports as "unknown"; an ID without "_" reports whole.
func taskKind(id string) string {
	if id == "" {
		return "unknown"
	}
	parts := strings.SplitN(id, "_", 2)
	return parts[0]
}

// Submit enqueues t at the given priority. When dedupe is true and t.ID is
// non-empty, a submission whose identity equals any *pending* task's
// identity is silently dropped (the running task is not considered, so
// identical work may be resubmitted once the previous run starts). When
// waitResult is true, Submit blocks until t ends and returns its result,
// or its error.
func (m *Manager) Submit(t *Task, priority Priority, dedupe bool, waitResult bool) (any, error) {
	if m.enqueue(t, priority, dedupe) && waitResult {
		return t.Result()
	}
	return nil, nil
}

// enqueue returns true if t was actually scheduled to run (queued or
// dispatched immediately); false if dropped as a duplicate.
func (m *Manager) enqueue(t *Task, priority Priority, dedupe bool) bool {
	m.mu.Lock()

	if dedupe && t.ID != "" {
		for _, existing := range m.pending {
			if existing.ID == t.ID {
				m.mu.Unlock()
				return false
			}
		}
	}

	if priority == PriorityImmediate && len(m.pending) == 0 {
		priority = PriorityNormal // falls through to the "becomes next pop" path below
	}

	switch priority {
	case PriorityImmediate:
		m.mu.Unlock()
		m.logger.Info("running immediate task in parallel", logfields.TaskKind(t.ID), logfields.Priority(string(priority)))
		m.runParallel(t)
		return true
	case PriorityNext:
		insertAt := 0
		for insertAt < len(m.pending) && m.pending[insertAt].priority != PriorityNormal {
			insertAt++
		}
		m.pending = append(m.pending, nil)
		copy(m.pending[insertAt+1:], m.pending[insertAt:])
		t.priority = PriorityNext
		m.pending[insertAt] = t
	default:
		t.priority = PriorityNormal
		m.pending = append(m.pending, t)
	}

	if m.waiter != nil {
		close(m.waiter)
		m.waiter = nil
	}
	m.recorder.SetTaskQueueDepth(len(m.pending))
	m.mu.Unlock()
	return true
}

func (m *Manager) runParallel(t *Task) {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.running[t] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, t)
			m.mu.Unlock()
			cancel()
		}()
		start := time.Now()
		t.Run(ctx)
		m.recorder.ObserveTaskDuration(taskKind(t.ID), time.Since(start))
	}()
}

// Run starts the serial worker loop in a new goroutine.
func (m *Manager) Run() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.routine()
	}()
}

func (m *Manager) routine() {
	for {
		t := m.next()
		if t == nil {
			return // stopped
		}

		ctx, cancel := context.WithCancel(context.Background())
		m.mu.Lock()
		m.running[t] = cancel
		m.mu.Unlock()

		func() {
			start := time.Now()
			defer func() {
				m.mu.Lock()
				delete(m.running, t)
				m.mu.Unlock()
				cancel()
				m.recorder.ObserveTaskDuration(taskKind(t.ID), time.Since(start))
				if r := recover(); r != nil {
					m.logger.Error("unexpected panic on task run", slog.Any("panic", r), logfields.TaskKind(t.ID))
				}
			}()
			t.Run(ctx)
		}()
	}
}

// next pops the head of the queue, blocking until an item is available or
// the manager is stopped (in which case it returns nil).
func (m *Manager) next() *Task {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			t := m.pending[0]
			m.pending = m.pending[1:]
			m.recorder.SetTaskQueueDepth(len(m.pending))
			m.mu.Unlock()
			return t
		}
		if m.stopped {
			m.mu.Unlock()
			return nil
		}
		waiter := make(chan struct{})
		m.waiter = waiter
		m.mu.Unlock()

		select {
		case <-waiter:
		case <-m.stopCh:
			return nil
		}
	}
}

// Stop halts the worker loop: no new tasks are popped, and every
// currently-running task's context is canceled in parallel so an
// abort-aware Fn (e.g. one wrapping an engine invocation) can unwind.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancels := make([]context.CancelFunc, 0, len(m.running))
	for _, cancel := range m.running {
		cancels = append(cancels, cancel)
	}
	m.mu.Unlock()

	close(m.stopCh)

	var abortWG sync.WaitGroup
	for _, cancel := range cancels {
		abortWG.Add(1)
		go func(c context.CancelFunc) {
			defer abortWG.Done()
			c()
		}(cancel)
	}
	abortWG.Wait()

	m.wg.Wait()
}

// Len reports the number of tasks currently waiting (not counting any
// in-flight task or immediate-priority tasks).
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
