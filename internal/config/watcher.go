// internal/config/watcher.go
package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fluxpay/gatekeeper/internal/ratelimit"
)

// Watcher hot-reloads tenant policies when the config file changes, so tier
// upgrades and endpoint overrides take effect without a restart. A reload
// that fails to parse or names an unknown tier is logged and skipped; the
// limiter keeps its previous policies.
type Watcher struct {
	path    string
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher watches path and applies reloaded policies to the limiter.
func NewWatcher(path string, l *ratelimit.Limiter, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the directory: editors and config tooling typically replace the
	// file, which would drop a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    path,
		limiter: l,
		logger:  logger,
		fsw:     fsw,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := cfg.Apply(w.limiter); err != nil {
		w.logger.Error("config apply failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("tenant policies reloaded",
		zap.String("path", w.path),
		zap.Int("tenants", len(cfg.Tenants)))
}

// Close stops watching. Pending reloads finish first.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
