package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/kiro-gateway/proxy/internal/history"
	"github.com/kiro-gateway/proxy/internal/ratelimit"
)

// DefaultPath is the config document's default location, spec §4.N.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".kiro-proxy", "config.json")
}

// Store loads/saves the Document atomically and optionally watches it for out-of-band
// changes. Readers get a deep-copied snapshot; mutation goes through Save.
type Store struct {
	mu       sync.RWMutex
	path     string
	doc      Document
	watcher  *fsnotify.Watcher
	onReload func(Document)
}

// NewStore constructs a Store without loading; call Load to populate it.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Load reads the document from disk, tolerating a missing file as empty defaults (spec §4.N).
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.doc = Document{}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("config: read %s: %w", s.path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the in-memory document.
func (s *Store) Get() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.doc)
}

func deepCopy(d Document) Document {
	b, err := json.Marshal(d)
	if err != nil {
		return d
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return d
	}
	return out
}

// Save writes doc atomically (temp file + rename) and updates the in-memory copy.
func (s *Store) Save(doc Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename: %w", err)
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// WatchReload starts an fsnotify watch on the document's directory; on a write event it
// reloads the document and, if onReload is non-nil, invokes it with the fresh copy. Reload
// failures are logged and leave the previous in-memory document untouched (spec §4.N).
func (s *Store) WatchReload(onReload func(Document)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("config: watch dir: %w", err)
	}

	s.watcher = w
	s.onReload = onReload

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.Load(); err != nil {
					log.WithError(err).Warn("config: reload failed, keeping previous document")
					continue
				}
				if s.onReload != nil {
					s.onReload(s.Get())
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config: watcher error")
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if one was started.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// HistoryConfig overlays the document's history settings onto history.DefaultConfig.
func (s *Store) HistoryConfig() history.Config {
	s.mu.RLock()
	hs := s.doc.History
	s.mu.RUnlock()

	cfg := history.DefaultConfig()
	if len(hs.Strategies) > 0 {
		strategies := make([]history.Strategy, 0, len(hs.Strategies))
		for _, s := range hs.Strategies {
			strategies = append(strategies, history.Strategy(s))
		}
		cfg.Strategies = strategies
	}
	cfg.MaxMessages = intOr(hs.MaxMessages, cfg.MaxMessages)
	cfg.MaxChars = intOr(hs.MaxChars, cfg.MaxChars)
	cfg.SummaryKeepRecent = intOr(hs.SummaryKeepRecent, cfg.SummaryKeepRecent)
	cfg.SummaryThreshold = intOr(hs.SummaryThreshold, cfg.SummaryThreshold)
	cfg.SummaryMaxLength = intOr(hs.SummaryMaxLength, cfg.SummaryMaxLength)
	cfg.RetryMaxMessages = intOr(hs.RetryMaxMessages, cfg.RetryMaxMessages)
	cfg.MaxRetries = intOr(hs.MaxRetries, cfg.MaxRetries)
	cfg.EstimateThreshold = intOr(hs.EstimateThreshold, cfg.EstimateThreshold)
	cfg.CharsPerToken = floatOr(hs.CharsPerToken, cfg.CharsPerToken)
	return cfg
}

// RateLimitConfig overlays the document's rate-limit settings onto ratelimit.DefaultConfig.
func (s *Store) RateLimitConfig() ratelimit.Config {
	s.mu.RLock()
	rs := s.doc.RateLimit
	s.mu.RUnlock()

	cfg := ratelimit.DefaultConfig()
	cfg.Enabled = boolOr(rs.Enabled, cfg.Enabled)
	cfg.MinRequestInterval = durationSecondsOr(rs.MinRequestIntervalSeconds, cfg.MinRequestInterval)
	cfg.MaxRequestsPerMinutePerCred = intOr(rs.MaxRequestsPerMinutePerCred, cfg.MaxRequestsPerMinutePerCred)
	cfg.GlobalMaxRequestsPerMinute = intOr(rs.GlobalMaxRequestsPerMinute, cfg.GlobalMaxRequestsPerMinute)
	cfg.QuotaCooldown = durationSecondsOr(rs.QuotaCooldownSeconds, cfg.QuotaCooldown)
	return cfg
}
