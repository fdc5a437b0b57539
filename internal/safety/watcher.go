package safety

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Rules holds the active rule set and reloads it when the file changes.
type Rules struct {
	mu       sync.RWMutex
	path     string
	current  RuleSet
	loadErr  error
	logger   *zap.Logger
	debounce time.Duration
	onReload func(RuleSet, error)
}

func NewRules(path string, logger *zap.Logger) (*Rules, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Rules{path: path, logger: logger, debounce: 250 * time.Millisecond}
	if err := r.Reload(); err != nil {
		return r, err
	}
	return r, nil
}

func (r *Rules) Path() string { return r.path }

func (r *Rules) Current() RuleSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload re-reads the file. On a parse error the previous rules stay active.
func (r *Rules) Reload() error {
	rules, err := LoadRules(r.path)
	r.mu.Lock()
	r.loadErr = err
	if err == nil {
		r.current = rules
	}
	cb := r.onReload
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("rules reload failed", zap.String("path", r.path), zap.Error(err))
	} else {
		r.logger.Debug("rules loaded", zap.String("path", r.path),
			zap.Int("blocked", len(rules.Blocked)),
			zap.Int("confirm", len(rules.Confirm)),
			zap.Int("allowed", len(rules.Allowed)))
	}
	if cb != nil {
		cb(rules, err)
	}
	return err
}

// OnReload registers a callback run after every reload attempt.
func (r *Rules) OnReload(fn func(RuleSet, error)) {
	r.mu.Lock()
	r.onReload = fn
	r.mu.Unlock()
}

func (r *Rules) Check(command string, blockHighRisk bool) Decision {
	return r.Current().Check(command, blockHighRisk)
}

// Watch reloads the rules whenever the file is written, created, renamed or
// removed. The parent directory is watched since editors replace files
// instead of writing in place. It blocks until ctx is done.
func (r *Rules) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create rules watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create rules dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}
	target := filepath.Clean(r.path)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			timerC = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("rules watcher error", zap.Error(err))
		case <-timerC:
			timerC = nil
			_ = r.Reload()
		}
	}
}
