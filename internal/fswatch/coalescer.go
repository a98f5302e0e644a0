// Package fswatch coalesces bursts of filesystem events into a single
// debounced callback, filtering ignored paths with a git-wildmatch
// pathmatch.Matcher.
//
// Grounded on original_source/fswatcher.py's WatchdogFnHandler pending/
// debounce state machine, re-expressed with fsnotify.Watcher (teacher:
// internal/daemon/config_watcher.go's watchLoop/reloadLoop pattern) plus
// manual recursive directory registration, since fsnotify does not watch
// subdirectories the way watchdog's recursive=True does.
package fswatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gallofeliz/hen-backup/internal/logfields"
	"github.com/gallofeliz/hen-backup/internal/pathmatch"
)

// Callback is invoked once a burst of events has settled.
type Callback func()

// OnError is invoked when Callback panics with an error value; when it is
// nil, or the panic value is not an error, the panic is only logged.
type OnError func(error)

// Coalescer watches a set of root paths recursively and fires Callback no
// sooner than WaitMin after the first unfiltered event, and no later than
// WaitMax after that first event, extending the wait on every subsequent
// event (matching original_source's start_time/wait_max/wait_min loop).
type Coalescer struct {
	paths   []string
	ignore  *pathmatch.Matcher
	fn      Callback
	onError OnError
	waitMin time.Duration
	waitMax time.Duration
	logger  *slog.Logger

	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending *pendingState
}

type pendingState struct {
	startTime time.Time
	events    chan struct{}
}

// Option configures a Coalescer.
type Option func(*Coalescer)

func WithIgnore(m *pathmatch.Matcher) Option   { return func(c *Coalescer) { c.ignore = m } }
func WithWaitMin(d time.Duration) Option       { return func(c *Coalescer) { c.waitMin = d } }
func WithWaitMax(d time.Duration) Option       { return func(c *Coalescer) { c.waitMax = d } }
func WithOnError(fn OnError) Option            { return func(c *Coalescer) { c.onError = fn } }
func WithLogger(l *slog.Logger) Option         { return func(c *Coalescer) { c.logger = l } }

// New builds a Coalescer over paths, firing fn once events settle.
func New(paths []string, fn Callback, opts ...Option) (*Coalescer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &Coalescer{
		paths:   paths,
		fn:      fn,
		waitMin: time.Second,
		waitMax: 60 * time.Second,
		logger:  slog.Default(),
		watcher: watcher,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start begins watching. It recursively walks each configured path,
// registering a watch on every directory found.
func (c *Coalescer) Start(ctx context.Context) error {
	for _, root := range c.paths {
		if err := c.addRecursive(root); err != nil {
			return err
		}
	}

	c.wg.Add(1)
	go c.loop(ctx)

	return nil
}

// Stop halts watching and releases the underlying fsnotify watcher.
func (c *Coalescer) Stop() {
	close(c.stop)
	c.wg.Wait()
	_ = c.watcher.Close()
}

func (c *Coalescer) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort, matches watchdog's tolerant schedule(recursive=True)
		}
		if d.IsDir() {
			return c.watcher.Add(path)
		}
		return nil
	})
}

func (c *Coalescer) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("fswatch error", logfields.Component("fswatch"), logfields.Error(err))
		}
	}
}

func (c *Coalescer) handleEvent(event fsnotify.Event) {
	if c.ignore != nil {
		isDir := event.Op&fsnotify.Create == fsnotify.Create && isDirectory(event.Name)
		if c.ignore.Excluded(event.Name, isDir) {
			return
		}
	}

	if event.Op&fsnotify.Create == fsnotify.Create && isDirectory(event.Name) {
		_ = c.addRecursive(event.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		c.pending = &pendingState{startTime: time.Now(), events: make(chan struct{}, 1)}
		c.wg.Add(1)
		go c.pendingWait(c.pending)
		return
	}

	select {
	case c.pending.events <- struct{}{}:
	default:
	}
}

func (c *Coalescer) pendingWait(p *pendingState) {
	defer c.wg.Done()
	for {
		now := time.Now()
		maxTime := p.startTime.Add(c.waitMax)
		if !now.Before(maxTime) {
			break
		}
		wait := c.waitMin
		if remaining := maxTime.Sub(now); remaining < wait {
			wait = remaining
		}
		select {
		case <-p.events:
			continue
		case <-time.After(wait):
			goto settled
		case <-c.stop:
			return
		}
	}
settled:

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	c.callCallback()
}

func (c *Coalescer) callCallback() {
	defer func() {
		if r := recover(); r != nil {
			if c.onError != nil {
				if err, ok := r.(error); ok {
					c.onError(err)
					return
				}
			}
			c.logger.Error("fswatch callback panicked", logfields.Component("fswatch"))
		}
	}()
	c.fn()
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
