// Package metrics defines the Recorder interface used to observe the
// daemon's task manager, engine invoker and control API, with a
// Prometheus-backed implementation and a no-op default.
//
// Grounded on the teacher's internal/metrics Recorder/NoopRecorder split:
// the interface is injected wherever a component wants to emit metrics,
// and NoopRecorder lets every component work uninstrumented.
package metrics

import "time"

// Recorder defines the observability hooks wired into the Task Manager,
// Daemon and Control API (spec §4.10). All methods must be safe to call
// on a nil-backed NoopRecorder so metrics are never mandatory plumbing.
type Recorder interface {
	// SetTaskQueueDepth reports the Task Manager's current pending-list
	// length.
	SetTaskQueueDepth(n int)
	// ObserveTaskDuration records how long a task of the given kind (the
	// leading word of its ID: init, check, backup, prune, restore; "unknown"
	// for tasks without an ID, such as a snapshot listing) took to run.
	ObserveTaskDuration(kind string, d time.Duration)
	// IncEngineInvocation counts one snapshot-engine subprocess call,
	// labeled by its exit status ("success" or "failure").
	IncEngineInvocation(status string)
	// IncAPIRequest counts one Control API request, labeled by its
	// JSON-RPC method name and resulting HTTP status code.
	IncAPIRequest(method string, statusCode int)
}

// NoopRecorder is a Recorder that does nothing; the default when no
// metrics sink is configured.
type NoopRecorder struct{}

func (NoopRecorder) SetTaskQueueDepth(int)              {}
func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncEngineInvocation(string)          {}
func (NoopRecorder) IncAPIRequest(string, int)           {}
