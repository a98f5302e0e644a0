// Package engine wraps invocations of the external snapshot-taking CLI
// (e.g. restic) as subprocesses, capturing stdout/stderr, optionally
// decoding JSON stdout, and registering the live process so shutdown can
// broadcast an interrupt signal.
//
// Grounded on original_source/restic.py's call_restic.
package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	hberrors "github.com/gallofeliz/hen-backup/internal/errors"
	"github.com/gallofeliz/hen-backup/internal/logfields"
	"github.com/gallofeliz/hen-backup/internal/metrics"
	"github.com/gallofeliz/hen-backup/internal/tracenode"
)

// Result is the outcome of an Invoke call.
type Result struct {
	Code   int
	Stdout string
	JSON   any // non-nil when Invoke was called with JSON=true and decoding succeeded
	Stderr string
}

// Invoker runs the snapshot engine binary as a subprocess.
type Invoker struct {
	binary   string
	registry *ProcessRegistry
	logger   *slog.Logger
	maxLines int
	recorder metrics.Recorder
}

// NewInvoker constructs an Invoker for the given binary name (e.g.
// "restic"), tracking spawned processes in registry.
func NewInvoker(binary string, registry *ProcessRegistry, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{binary: binary, registry: registry, logger: logger, maxLines: 2000, recorder: metrics.NoopRecorder{}}
}

// SetRecorder injects a metrics recorder for engine invocation counts
// (optional; defaults to a no-op).
func (inv *Invoker) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	inv.recorder = r
}

// Invoke runs `<binary> <cmd> <args...>` with an environment made of env
// plus RESTIC_CACHE_DIR=/tmp; the daemon's own environment is not
// inherited. When asJSON is true, `--json` is appended and stdout is
// decoded. Canceling ctx sends interruptSignal to the subprocess.
func (inv *Invoker) Invoke(ctx context.Context, cmd string, args []string, env []string, asJSON bool, node *tracenode.Node) (*Result, error) {
	child := node
	if child == nil {
		child = tracenode.Root(fmt.Sprintf("engine-%s", cmd))
	} else {
		child = child.Extend(fmt.Sprintf("engine-%s", cmd))
	}

	fullArgs := append([]string{cmd}, args...)
	if asJSON {
		fullArgs = append(fullArgs, "--json")
	}

	fullEnv := append(append([]string{}, env...), "RESTIC_CACHE_DIR=/tmp")

	execCmd := exec.CommandContext(ctx, inv.binary, fullArgs...)
	execCmd.Env = fullEnv
	execCmd.Cancel = func() error { return execCmd.Process.Signal(interruptSignal) }

	stdout, err := execCmd.StdoutPipe()
	if err != nil {
		return nil, hberrors.Wrap(err, hberrors.CategoryInternal, "failed to open engine stdout pipe").Build()
	}
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return nil, hberrors.Wrap(err, hberrors.CategoryInternal, "failed to open engine stderr pipe").Build()
	}

	inv.logger.Info("engine call starting",
		logfields.Component("engine"), logfields.Action("invoke"), logfields.Status("starting"),
		logfields.Node(node.String()), slog.String("binary", inv.binary), slog.String("cmd", cmd))

	if err := execCmd.Start(); err != nil {
		return nil, hberrors.Wrap(err, hberrors.CategoryEngine, "failed to start engine process").Build()
	}

	inv.registry.add(execCmd)
	defer inv.registry.remove(execCmd)

	outBuf := newLineBuffer(inv.maxLines)
	errBuf := newLineBuffer(inv.maxLines)

	var wg sync.WaitGroup
	wg.Add(2)
	go inv.drain(stdout, "STDOUT", outBuf, child, &wg)
	go inv.drain(stderr, "STDERR", errBuf, child, &wg)
	wg.Wait()

	inv.logTruncation("STDOUT", outBuf, child)
	inv.logTruncation("STDERR", errBuf, child)

	waitErr := execCmd.Wait()

	code := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	inv.logger.Info("engine call exited",
		logfields.Component("engine"), logfields.Action("invoke"),
		logfields.Status(statusFor(code)), logfields.Node(child.String()), logfields.ExitCode(code))
	inv.recorder.IncEngineInvocation(statusFor(code))

	result := &Result{Code: code, Stdout: outBuf.String(), Stderr: errBuf.String()}

	if asJSON && code == 0 {
		result.JSON = decodeEngineJSON(result.Stdout)
	}

	if code != 0 {
		return result, hberrors.New(hberrors.CategoryEngine, fmt.Sprintf("%s %s exited with code %d", inv.binary, cmd, code)).
			WithContext("code", code).
			WithContext("stderr", result.Stderr).
			Build()
	}

	return result, nil
}

// decodeEngineJSON decodes stdout as a single JSON document (e.g.
// `snapshots --json`'s array) or, failing that, as newline-delimited JSON
// (e.g. `ls --long --json`'s one-object-per-line stream), returning a
// []any of the decoded records. Returns nil if neither form parses.
func decodeEngineJSON(stdout string) any {
	var decoded any
	if err := json.Unmarshal([]byte(stdout), &decoded); err == nil {
		return decoded
	}

	decoder := json.NewDecoder(strings.NewReader(stdout))
	var records []any
	for {
		var record any
		if err := decoder.Decode(&record); err != nil {
			break
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil
	}
	return records
}

// logTruncation emits a single warning record when buf dropped lines to
// stay within its cap, per the bounded-output design note in spec §9.
func (inv *Invoker) logTruncation(channel string, buf *lineBuffer, node *tracenode.Node) {
	dropped, truncated := buf.truncated()
	if !truncated {
		return
	}
	inv.logger.Warn(channel+" output truncated",
		logfields.Component("engine"), logfields.Action("invoke"), logfields.Subaction("receive_output"),
		logfields.Status("truncated"), logfields.Node(node.String()), slog.Int("dropped_lines", dropped))
}

func (inv *Invoker) drain(r interface{ Read([]byte) (int, error) }, channel string, buf *lineBuffer, node *tracenode.Node, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		buf.append(line)
		inv.logger.Info(channel+" "+line,
			logfields.Component("engine"), logfields.Action("invoke"), logfields.Subaction("receive_output"),
			logfields.Status("running"), logfields.Node(node.String()))
	}
	inv.logger.Info(channel+" CLOSED",
		logfields.Component("engine"), logfields.Action("invoke"), logfields.Subaction("receive_output"),
		logfields.Status("success"), logfields.Node(node.String()))
}

func statusFor(code int) string {
	if code != 0 {
		return "failure"
	}
	return "success"
}
