package config

import (
	"context"
	"path/filepath"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/credentials"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes and republishes the
// credential configuration through the registry. It is the file-driven twin
// of the configure_auth tool: both end in Registry.SetActive with a freshly
// built manager.
type Watcher struct {
	configPath string
	registry   *credentials.Registry
	watcher    *fsnotify.Watcher
}

// NewWatcher creates a watcher for config.yaml in the given directory.
func NewWatcher(configPath string, registry *credentials.Registry) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save,
	// which would silently drop a file-level watch.
	if err := fsWatcher.Add(configPath); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		configPath: configPath,
		registry:   registry,
		watcher:    fsWatcher,
	}, nil
}

// Start processes filesystem events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Config", err, "Configuration watcher error")
		}
	}
}

// reload re-reads the file and swaps the active credential manager. A broken
// file keeps the previous configuration active.
func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		logging.Error("Config", err, "Ignoring configuration change: reload failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.Error("Config", err, "Ignoring configuration change: validation failed")
		return
	}

	w.registry.SetActive(credentials.NewManager(cfg.CredentialConfig()))
	logging.Info("Config", "Configuration change applied: auth mode %s", cfg.CredentialConfig().Mode)
}
