package projectloader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"scanbridge/internal/logging"
)

// ResultFunc receives each re-aggregation. Exactly one of res and err is set.
type ResultFunc func(res *Result, err error)

// Watcher re-aggregates a dump directory whenever the build step changes it.
// Bursts of events are collapsed: aggregation runs once the directory has
// been quiet for the debounce period.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	loader      *Loader
	dumpDir     string
	onResult    ResultFunc
	debounceDur time.Duration
	pending     bool
	lastEvent   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	log         *zap.Logger

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events        int
	Runs          int
	Errors        int
	LastEventPath string
	LastRun       time.Time
}

// NewWatcher creates a watcher for dumpDir. debounce <= 0 uses 500ms.
func NewWatcher(loader *Loader, dumpDir string, debounce time.Duration, onResult ResultFunc, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		watcher:     fw,
		loader:      loader,
		dumpDir:     dumpDir,
		onResult:    onResult,
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		log:         logging.For(log, logging.CategoryWatch),
	}, nil
}

// Start watches the dump directory and its current project folders.
// It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dumpDir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	entries, err := os.ReadDir(w.dumpDir)
	if err != nil {
		w.log.Warn("failed to list dump directory", zap.Error(err))
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addDir(filepath.Join(w.dumpDir, e.Name()))
		}
	}
	w.log.Info("watching dump directory", zap.String("dir", w.dumpDir))

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the underlying watcher. It is safe
// to call on a watcher that was never started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Error("error closing watcher", zap.Error(err))
	}
	w.log.Info("watcher stopped")
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) addDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.log.Debug("cannot watch project folder", zap.String("dir", dir), zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	// New project folders appear as creates directly under the dump dir.
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(w.dumpDir) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			w.addDir(event.Name)
		}
	}

	w.log.Debug("dump directory changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	res, err := w.loader.Load(ctx, w.dumpDir)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = time.Now()
	if err != nil {
		w.stats.Errors++
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Error("re-aggregation failed", zap.Error(err))
	}
	if w.onResult != nil {
		w.onResult(res, err)
	}
}
