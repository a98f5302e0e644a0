// Package logfields provides canonical log field names and slog.Attr
// helpers so structured fields stay consistent across packages.
package logfields

import "log/slog"

const (
	KeyComponent  = "component"
	KeyAction     = "action"
	KeySubaction  = "subaction"
	KeyStatus     = "status"
	KeyNode       = "node"
	KeyRepository = "repository"
	KeyBackup     = "backup"
	KeyHost       = "host"
	KeyTaskKind   = "task_kind"
	KeyPriority   = "priority"
	KeyDurationMS = "duration_ms"
	KeyExitCode   = "exit_code"
	KeyPath       = "path"
	KeyHook       = "hook"
	KeyAttempt    = "attempt"
	KeyMethod     = "method"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyHTTPStatus = "http_status"
	KeyError      = "error"
	KeyName       = "name"
	KeyScheduleID = "schedule_id"
)

func Component(c string) slog.Attr    { return slog.String(KeyComponent, c) }
func Action(a string) slog.Attr       { return slog.String(KeyAction, a) }
func Subaction(s string) slog.Attr    { return slog.String(KeySubaction, s) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Node(n string) slog.Attr         { return slog.String(KeyNode, n) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepository, r) }
func Backup(b string) slog.Attr       { return slog.String(KeyBackup, b) }
func Host(h string) slog.Attr         { return slog.String(KeyHost, h) }
func TaskKind(k string) slog.Attr     { return slog.String(KeyTaskKind, k) }
func Priority(p string) slog.Attr     { return slog.String(KeyPriority, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Hook(h string) slog.Attr         { return slog.String(KeyHook, h) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func HTTPStatus(code int) slog.Attr   { return slog.Int(KeyHTTPStatus, code) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func ScheduleID(id string) slog.Attr  { return slog.String(KeyScheduleID, id) }

// Error returns a slog.Attr for an error, or an empty string if nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
