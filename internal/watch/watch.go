// Package watch re-runs a callback when ticket JSON files land in a directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 500 * time.Millisecond

type Watcher struct {
	Dir      string
	Debounce time.Duration
	Logger   *zap.Logger

	fw *fsnotify.Watcher
}

// New starts watching dir. Close or Run must be called to release it.
func New(dir string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{Dir: dir, Debounce: DefaultDebounce, Logger: logger, fw: fw}, nil
}

func (w *Watcher) Close() error { return w.fw.Close() }

// Run calls onChange after each burst of ticket file creates or writes
// settles. Callbacks never overlap. It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	defer func() { _ = w.fw.Close() }()

	delay := w.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	timer := time.NewTimer(delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.Logger.Debug("ticket file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(delay)
		case <-timer.C:
			if err := onChange(ctx); err != nil {
				w.Logger.Error("watch run failed", zap.Error(err))
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".json")
}
