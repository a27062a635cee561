package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisabledAlwaysAllows(t *testing.T) {
	l := New(DefaultConfig())
	allowed, _, _ := l.CanRequest("c1", time.Now())
	assert.True(t, allowed)
}

func TestMinIntervalDeniesImmediateRepeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	l := New(cfg)
	now := time.Now()

	allowed, _, _ := l.CanRequest("c1", now)
	assert.True(t, allowed)
	l.Record("c1", now)

	allowed, wait, reason := l.CanRequest("c1", now.Add(10*time.Millisecond))
	assert.False(t, allowed)
	assert.Equal(t, "min_interval", reason)
	assert.Greater(t, wait, time.Duration(0))
}

func TestPerCredentialWindowDeniesAfterLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MinRequestInterval = 0
	cfg.MaxRequestsPerMinutePerCred = 2
	cfg.GlobalMaxRequestsPerMinute = 1000
	l := New(cfg)
	now := time.Now()

	for i := 0; i < 2; i++ {
		allowed, _, _ := l.CanRequest("c1", now)
		assert.True(t, allowed)
		l.Record("c1", now)
		now = now.Add(time.Millisecond)
	}

	allowed, _, reason := l.CanRequest("c1", now)
	assert.False(t, allowed)
	assert.Equal(t, "credential_window", reason)
}

func TestGlobalWindowDeniesAcrossCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MinRequestInterval = 0
	cfg.MaxRequestsPerMinutePerCred = 1000
	cfg.GlobalMaxRequestsPerMinute = 1
	l := New(cfg)
	now := time.Now()

	allowed, _, _ := l.CanRequest("c1", now)
	assert.True(t, allowed)
	l.Record("c1", now)

	allowed, _, reason := l.CanRequest("c2", now.Add(time.Millisecond))
	assert.False(t, allowed)
	assert.Equal(t, "global_window", reason)
}

func TestWindowPrunesExpiredHits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MinRequestInterval = 0
	cfg.MaxRequestsPerMinutePerCred = 1
	cfg.GlobalMaxRequestsPerMinute = 1000
	l := New(cfg)
	now := time.Now()

	l.Record("c1", now)
	allowed, _, _ := l.CanRequest("c1", now.Add(61*time.Second))
	assert.True(t, allowed, "hits older than the 60s window must be pruned")
}
