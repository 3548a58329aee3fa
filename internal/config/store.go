package config

import (
	"fmt"
	"sync/atomic"
)

// Store owns the active configuration for the process lifetime. The config
// value itself is immutable once published: reconfiguration swaps the whole
// pointer, so a reader that grabbed the old value keeps a consistent view
// until it asks again. Backend clients are reconstructed from the new value,
// never mutated in place.
type Store struct {
	path string
	cur  atomic.Pointer[Config]
}

// NewStore loads the config at path into a new Store.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.cur.Store(cfg)
	return s, nil
}

// NewStoreWith wraps an already-loaded config, for tests and for first-run
// setup where the file does not exist yet.
func NewStoreWith(path string, cfg *Config) *Store {
	s := &Store{path: path}
	if cfg != nil {
		s.cur.Store(cfg)
	}
	return s
}

// Current returns the active config, or nil when the panel is unconfigured.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Configured reports whether a valid config has been loaded.
func (s *Store) Configured() bool {
	return s.cur.Load() != nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Replace validates cfg, persists it, and atomically publishes it as the
// active config. On persist failure the previous config stays active.
func (s *Store) Replace(cfg *Config) error {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.Save(s.path); err != nil {
		return err
	}
	s.cur.Store(cfg)
	return nil
}
