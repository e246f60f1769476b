package skills

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const watcherDebounce = 200 * time.Millisecond

// Watcher watches a Manager's discovery paths (.forge/skills/, plus any
// additional configured directories) and rescans on disk changes, so a
// skill added, edited, or removed on disk is picked up without a process
// restart. Events are debounced per path so an editor's
// write-rename-chmod burst triggers one rescan, not three.
type Watcher struct {
	fsw     *fsnotify.Watcher
	manager *Manager
	stopCh  chan struct{}
	timer   *time.Timer
	mu      sync.Mutex
}

// NewWatcher creates a Watcher over manager's current discovery paths.
// Paths that don't exist yet (not yet created) are skipped; call
// SetDiscoveryPaths/ScanAllPaths on the manager first.
func NewWatcher(manager *Manager) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	manager.mu.RLock()
	paths := make([]string, len(manager.discoveryPaths))
	copy(paths, manager.discoveryPaths)
	manager.mu.RUnlock()

	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("skills watcher: failed to watch path")
		}
	}

	return &Watcher{
		fsw:     fsw,
		manager: manager,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching in the background. Stop must be called to release
// the underlying fsnotify handle.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.scheduleRescan()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("skills watcher: fsnotify error")
		}
	}
}

// scheduleRescan debounces bursts of events (an editor save often produces
// several in quick succession) into a single ScanAllPaths call.
func (w *Watcher) scheduleRescan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watcherDebounce, func() {
		if err := w.manager.ScanAllPaths(); err != nil {
			log.Warn().Err(err).Msg("skills watcher: rescan failed")
		}
	})
}

// Stop stops the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.fsw.Close()
}
