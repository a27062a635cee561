// Package ratelimit implements the sliding-window admission control described in spec §4.K,
// independent of the quota/cooldown ledger in internal/quota.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls the limiter. Disabled by default: when disabled, can_request always
// allows, and a rate-limited response still places the credential into cooldown using the
// quota ledger's own default duration rather than QuotaCooldown (the dispatcher checks
// Config.Enabled to choose which duration to pass to the ledger's Mark call).
type Config struct {
	Enabled                     bool
	MinRequestInterval          time.Duration
	MaxRequestsPerMinutePerCred int
	GlobalMaxRequestsPerMinute  int
	QuotaCooldown               time.Duration
}

// DefaultConfig matches the original implementation's defaults exactly.
func DefaultConfig() Config {
	return Config{
		Enabled:                     false,
		MinRequestInterval:          500 * time.Millisecond,
		MaxRequestsPerMinutePerCred: 60,
		GlobalMaxRequestsPerMinute:  120,
		QuotaCooldown:               30 * time.Second,
	}
}

type window struct {
	hits []time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-60 * time.Second)
	i := 0
	for i < len(w.hits) && w.hits[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = w.hits[i:]
	}
}

// Limiter enforces a per-credential sliding 60s window plus a minimum inter-request gap,
// and one global 60s window across all credentials.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	perCred  map[string]*window
	lastSeen map[string]time.Time
	burst    map[string]*rate.Limiter
	global   window
}

func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:      cfg,
		perCred:  make(map[string]*window),
		lastSeen: make(map[string]time.Time),
		burst:    make(map[string]*rate.Limiter),
	}
}

// burstLimiter lazily builds a token-bucket limiter for credID that allows exactly one
// request per MinRequestInterval, used as a cheap pre-check before falling back to the
// timestamp log for the exact wait duration a denial must report.
func (l *Limiter) burstLimiter(credID string) *rate.Limiter {
	rl, ok := l.burst[credID]
	if !ok {
		interval := l.cfg.MinRequestInterval
		if interval <= 0 {
			interval = time.Nanosecond
		}
		rl = rate.NewLimiter(rate.Every(interval), 1)
		l.burst[credID] = rl
	}
	return rl
}

func (l *Limiter) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *Limiter) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

// CanRequest reports whether credID may issue a request now. When denied, wait is how long
// the caller should sleep before the gate would open (not a guarantee after sleeping, since
// other requests may race in).
func (l *Limiter) CanRequest(credID string, now time.Time) (allowed bool, wait time.Duration, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.Enabled {
		return true, 0, ""
	}

	if !l.burstLimiter(credID).AllowN(now, 1) {
		gap := time.Duration(0)
		if last, ok := l.lastSeen[credID]; ok {
			gap = now.Sub(last)
		}
		return false, l.cfg.MinRequestInterval - gap, "min_interval"
	}

	l.global.prune(now)
	if l.cfg.GlobalMaxRequestsPerMinute > 0 && len(l.global.hits) >= l.cfg.GlobalMaxRequestsPerMinute {
		return false, 60*time.Second - now.Sub(l.global.hits[0]), "global_window"
	}

	w, ok := l.perCred[credID]
	if !ok {
		w = &window{}
		l.perCred[credID] = w
	}
	w.prune(now)
	if l.cfg.MaxRequestsPerMinutePerCred > 0 && len(w.hits) >= l.cfg.MaxRequestsPerMinutePerCred {
		return false, 60*time.Second - now.Sub(w.hits[0]), "credential_window"
	}

	return true, 0, ""
}

// Record marks that credID issued a request at now. Call only after CanRequest allowed it.
func (l *Limiter) Record(credID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeen[credID] = now
	l.global.hits = append(l.global.hits, now)
	w, ok := l.perCred[credID]
	if !ok {
		w = &window{}
		l.perCred[credID] = w
	}
	w.hits = append(w.hits, now)
}
