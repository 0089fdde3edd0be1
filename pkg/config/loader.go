package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Loader handles loading and watching the configuration file
type Loader struct {
	path     string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	current  *Config
	mu       sync.RWMutex
	onChange func(*Config)
	onError  func(error)
	close    chan struct{}
	once     sync.Once
}

// NewLoader creates a new Loader for path.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		path:   absPath,
		logger: logger,
		close:  make(chan struct{}),
	}, nil
}

// Path returns the absolute path of the watched file.
func (l *Loader) Path() string {
	return l.path
}

// Load reads and validates the configuration file. The current configuration
// is only replaced when the new one is valid.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()

	return cfg, nil
}

// OnError registers a callback for reloads that fail validation. Call it
// before Watch.
func (l *Loader) OnError(fn func(error)) {
	l.onError = fn
}

// Watch starts monitoring the config file for changes.
// It calls onChange when a valid change is detected.
func (l *Loader) Watch(onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher
	l.onChange = onChange

	// Editors often save atomically by rename, so the directory is watched.
	if err := l.watcher.Add(filepath.Dir(l.path)); err != nil {
		_ = l.watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	for {
		select {
		case <-l.close:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, err := os.Stat(l.path); err != nil {
				continue
			}

			cfg, err := l.Load()
			if err != nil {
				l.logger.Error("Config reload failed, keeping previous configuration", "path", l.path, "error", err)
				if l.onError != nil {
					l.onError(err)
				}
				continue
			}
			l.logger.Info("Config reloaded", "path", l.path)
			if l.onChange != nil {
				l.onChange(cfg)
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// Current returns the current configuration
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Close stops the watcher
func (l *Loader) Close() error {
	var err error
	l.once.Do(func() {
		close(l.close)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}
