package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const configFileName = "config.json"

// Manager owns the JSON config file, which doubles as the preferred store
// for API keys. Environment variables only fill the gaps (see Overlay). The
// file is kept at mode 0600.
type Manager struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	stored   Config
	written  []byte
	onChange func(Change)
	watching bool
}

// Change is passed to Watch callbacks.
type Change struct {
	Previous Config
	Current  Config
}

// CredentialsChanged reports whether any API key or token differs.
func (c Change) CredentialsChanged() bool {
	for _, field := range credentialFields {
		if *field(&c.Previous) != *field(&c.Current) {
			return true
		}
	}
	return false
}

type Source string

const (
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceMissing Source = "missing"
)

// Credential describes one secret a configured provider needs.
type Credential struct {
	Name   string
	Source Source
	Masked string
}

var credentialFields = map[string]func(*Config) *string{
	"OPENAI_API_KEY":        func(c *Config) *string { return &c.OpenAIAPIKey },
	"DEEPSEEK_API_KEY":      func(c *Config) *string { return &c.DeepSeekAPIKey },
	"FINNHUB_API_KEY":       func(c *Config) *string { return &c.FinnhubAPIKey },
	"LONGPORT_APP_KEY":      func(c *Config) *string { return &c.LongportAppKey },
	"LONGPORT_APP_SECRET":   func(c *Config) *string { return &c.LongportAppSecret },
	"LONGPORT_ACCESS_TOKEN": func(c *Config) *string { return &c.LongportAccessToken },
}

type managerOptions struct {
	configPath    string
	initialConfig *Config
	debounce      time.Duration
	logger        *slog.Logger
}

type ManagerOption func(*managerOptions)

func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{
		debounce: 300 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	path := options.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	m := &Manager{
		path:     path,
		debounce: options.debounce,
		logger:   options.logger,
	}
	if err := m.open(options.initialConfig); err != nil {
		return nil, err
	}
	return m, nil
}

// open loads the file, or seeds it when absent. A file other users can read
// is narrowed to 0600 before any key is read from it.
func (m *Manager) open(initial *Config) error {
	info, err := os.Stat(m.path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := *Defaults()
		if initial != nil {
			cfg = *initial
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if err := m.saveLocked(cfg); err != nil {
			return fmt.Errorf("write initial config: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		m.logger.Warn("config file is readable by other users, restricting", "path", m.path, "mode", perm.String())
		if err := os.Chmod(m.path, 0o600); err != nil {
			return fmt.Errorf("restrict config permissions: %w", err)
		}
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeConfig(data)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.path, err)
	}

	m.mu.Lock()
	m.stored = cfg
	m.written = data
	m.mu.Unlock()
	return nil
}

// Get returns the config exactly as stored in the file.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stored
}

// Effective returns the stored config with environment overrides applied.
func (m *Manager) Effective() Config {
	cfg := m.Get()
	cfg.Overlay()
	return cfg
}

func (m *Manager) Path() string {
	return m.path
}

// Credentials lists the secrets the selected providers need, each with the
// store it was found in.
func (m *Manager) Credentials() []Credential {
	stored := m.Get()
	effective := m.Effective()

	names := []string{effective.APIKeyName()}
	switch effective.MarketDataProvider {
	case MarketFinnhub:
		names = append(names, "FINNHUB_API_KEY")
	case MarketLongport:
		names = append(names, "LONGPORT_APP_KEY", "LONGPORT_APP_SECRET", "LONGPORT_ACCESS_TOKEN")
	}

	creds := make([]Credential, 0, len(names))
	for _, name := range names {
		field := credentialFields[name]
		cred := Credential{Name: name, Source: SourceMissing}
		switch {
		case *field(&stored) != "":
			cred.Source = SourceFile
		case *field(&effective) != "":
			cred.Source = SourceEnv
		}
		cred.Masked = mask(*field(&effective))
		creds = append(creds, cred)
	}
	return creds
}

// Update validates cfg, writes it and notifies the Watch callback.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if reflect.DeepEqual(m.stored, cfg) {
		m.mu.Unlock()
		return nil
	}
	prev := m.stored
	if err := m.saveLocked(cfg); err != nil {
		m.mu.Unlock()
		return err
	}
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(Change{Previous: prev, Current: cfg})
	}
	return nil
}

// Import merges a JSON document into the stored config. Fields absent from
// the document keep their current values.
func (m *Manager) Import(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg := m.Get()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(cfg)
}

// Watch reloads the file when another process edits it and calls onChange.
// It returns immediately; the watcher stops with ctx. Writes made through
// this Manager are not reported twice.
func (m *Manager) Watch(ctx context.Context, onChange func(Change)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = onChange
	if m.watching {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	m.watching = true

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	defer func() {
		m.mu.Lock()
		m.watching = false
		m.mu.Unlock()
	}()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				timer.Reset(m.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", "error", err)
		}
	}
}

// reload keeps the current settings when the file is gone or invalid.
func (m *Manager) reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.logger.Warn("config reload skipped", "path", m.path, "error", err)
		return
	}

	m.mu.Lock()
	if bytes.Equal(data, m.written) {
		m.mu.Unlock()
		return
	}
	cfg, err := decodeConfig(data)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("config reload rejected", "path", m.path, "error", err)
		return
	}
	m.written = data
	if reflect.DeepEqual(m.stored, cfg) {
		m.mu.Unlock()
		return
	}
	change := Change{Previous: m.stored, Current: cfg}
	m.stored = cfg
	cb := m.onChange
	m.mu.Unlock()

	m.logger.Info("config reloaded", "path", m.path, "credentials_changed", change.CredentialsChanged())
	if cb != nil {
		cb(change)
	}
}

// saveLocked writes cfg atomically at mode 0600. m.mu must be held.
func (m *Manager) saveLocked(cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	cleanup := func(err error) error {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		return cleanup(fmt.Errorf("restrict temp config: %w", err))
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("write config: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("flush config: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace config: %w", err)
	}

	m.stored = cfg
	m.written = data
	return nil
}

// decodeConfig starts from Defaults so fields missing in older files keep
// sane values.
func decodeConfig(data []byte) (Config, error) {
	cfg := *Defaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "StockChat", configFileName), nil
}

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, configFileName)
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithInitialConfig seeds a config file that does not exist yet.
func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) {
		o.initialConfig = cfg
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
