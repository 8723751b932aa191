package config

import "sync"

// Holder provides thread-safe access to a mutable *Config and an immutable
// config file path. The server and the config watcher share one Holder,
// so a reload updates config in exactly one place.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot. Callers must not modify it.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config and returns the previous one.
func (h *Holder) Update(cfg *Config) *Config {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.cfg
	h.cfg = cfg

	return old
}
