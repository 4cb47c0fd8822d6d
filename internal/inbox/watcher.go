package inbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config holds configuration for the watcher.
type Config struct {
	// DebounceInterval is how long the inbox must be quiet before it is
	// drained. This batches rapid writes together.
	DebounceInterval time.Duration

	// RetryInterval is how long to wait before draining again after the
	// target refused a mutation (for example while it is unseeded).
	RetryInterval time.Duration

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		RetryInterval:    2 * time.Second,
		Logger:           log.New(os.Stderr, "[inbox] ", log.LstdFlags),
	}
}

// Watcher drains an inbox directory into a target whenever files arrive.
type Watcher struct {
	dir    string
	target Applier
	config *Config

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	changedAt time.Time // zero when nothing is queued
	retryAt   time.Time // zero unless a drain was refused

	applied atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for dir.
func New(dir string, target Applier) (*Watcher, error) {
	return NewWithConfig(dir, target, DefaultConfig())
}

// NewWithConfig creates a watcher with custom configuration.
func NewWithConfig(dir string, target Applier, config *Config) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if target == nil {
		return nil, fmt.Errorf("target cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultConfig().RetryInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		dir:     dir,
		target:  target,
		config:  config,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start drains what is already in the inbox, then watches it. It blocks
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.config.Logger.Printf("Watching: %s", w.dir)

	w.drain()

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processChangeQueue()

	select {
	case <-ctx.Done():
		return w.Stop()
	case <-w.ctx.Done():
		return nil
	}
}

// Stop shuts the watcher down and waits for an in-flight drain.
func (w *Watcher) Stop() error {
	w.cancel()
	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
	return nil
}

// Applied returns how many mutations the watcher has applied.
func (w *Watcher) Applied() int64 {
	return w.applied.Load()
}

// Poke queues a drain as if a file had arrived.
func (w *Watcher) Poke() {
	w.queueChange()
}

func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Write publishes via rename, so Create covers new mutations.
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" || filepath.Base(event.Name)[0] == '.' {
				continue
			}
			w.queueChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) queueChange() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changedAt = time.Now()
}

func (w *Watcher) processChangeQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			if w.due(time.Now()) {
				w.drain()
			}
		}
	}
}

// due reports whether the queue has been quiet long enough, or a refused
// drain is ready to retry. It clears the queued change.
func (w *Watcher) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.changedAt.IsZero() && now.Sub(w.changedAt) >= w.config.DebounceInterval {
		w.changedAt = time.Time{}
		return true
	}
	if !w.retryAt.IsZero() && !now.Before(w.retryAt) {
		return true
	}
	return false
}

func (w *Watcher) drain() {
	n, err := Drain(w.dir, w.target, w.config.Logger)
	w.applied.Add(int64(n))
	if n > 0 {
		w.config.Logger.Printf("Applied %d mutation(s)", n)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if w.retryAt.IsZero() {
			w.config.Logger.Printf("Inbox blocked, will retry: %v", err)
		}
		w.retryAt = time.Now().Add(w.config.RetryInterval)
		return
	}
	w.retryAt = time.Time{}
}
