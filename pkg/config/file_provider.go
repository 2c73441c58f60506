package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileProvider serves the current configuration from a local file and
// reloads it when the file changes, so policy edits take effect without
// restarting the dev server.
type FileProvider struct {
	path        string
	logger      *slog.Logger
	override    func(*Config)
	mu          sync.RWMutex
	current     *Config
	subscribers []chan *Config
	watcher     *fsnotify.Watcher
	cancel      context.CancelFunc
}

// ProviderOption customizes a FileProvider.
type ProviderOption func(*FileProvider)

// WithOverride registers a function applied to every loaded
// configuration before it is published, the initial load included.
// Published configs are read concurrently by request handlers, so
// overrides must happen here rather than after the fact.
func WithOverride(fn func(*Config)) ProviderOption {
	return func(p *FileProvider) {
		p.override = fn
	}
}

// NewFileProvider creates a provider watching the specified file. The
// initial load must succeed; later reload failures keep the previous
// configuration and are logged.
func NewFileProvider(path string, logger *slog.Logger, opts ...ProviderOption) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory rather than the file; editors replace files
	// on save and the watch would be lost with the old inode.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &FileProvider{
		path:    absPath,
		logger:  logger,
		watcher: watcher,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg, err := p.load()
	if err != nil {
		_ = watcher.Close()
		cancel()
		return nil, err
	}
	p.current = cfg

	go p.watchLoop(ctx)

	return p, nil
}

// load reads the config file and applies the override before anything
// else can see the result.
func (p *FileProvider) load() (*Config, error) {
	cfg, err := Load(p.path)
	if err != nil {
		return nil, err
	}
	if p.override != nil {
		p.override(cfg)
	}
	return cfg, nil
}

// Current returns the most recently loaded configuration.
func (p *FileProvider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe returns a channel that receives configuration updates. The
// current configuration is delivered immediately.
func (p *FileProvider) Subscribe() <-chan *Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *Config, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.current
	return ch
}

// Close stops the watcher and cleans up resources.
func (p *FileProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != p.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := p.reload(); err != nil {
						p.logger.Error("Config reload failed, keeping previous configuration", "path", p.path, "error", err)
					} else {
						p.logger.Info("Configuration reloaded", "path", p.path)
					}
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (p *FileProvider) reload() error {
	cfg, err := p.load()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = cfg
	subscribers := make([]chan *Config, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cfg:
		default:
			// Skip if channel is full (slow consumer)
		}
	}

	return nil
}
