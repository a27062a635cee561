// Package config loads and saves the single JSON configuration document described in spec
// §3/§6: accounts, custom models, and the history-compactor / rate-limiter settings.
package config

import (
	"time"
)

// Account references one credential's on-disk token document.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TokenPath string `json:"token_path"`
	Enabled   bool   `json:"enabled"`
}

// CustomModel is an admin-added model-registry entry (spec §3's "Model entry").
type CustomModel struct {
	DisplayName     string `json:"display_name"`
	UpstreamModelID string `json:"upstream_model_id"`
	ContextWindow   int    `json:"context_window,omitempty"`
	ThinkingSupport string `json:"thinking_support,omitempty"`
}

// HistorySettings mirrors internal/history.Config's wire shape, with nullable-pointer fields
// so that omitted keys fall back to internal/history.DefaultConfig's values rather than to
// Go's zero values (which would mean "0 messages kept").
type HistorySettings struct {
	Strategies []string `json:"strategies,omitempty"`

	MaxMessages *int `json:"max_messages,omitempty"`
	MaxChars    *int `json:"max_chars,omitempty"`

	SummaryKeepRecent *int `json:"summary_keep_recent,omitempty"`
	SummaryThreshold  *int `json:"summary_threshold,omitempty"`
	SummaryMaxLength  *int `json:"summary_max_length,omitempty"`

	RetryMaxMessages *int `json:"retry_max_messages,omitempty"`
	MaxRetries       *int `json:"max_retries,omitempty"`

	EstimateThreshold *int     `json:"estimate_threshold,omitempty"`
	CharsPerToken     *float64 `json:"chars_per_token,omitempty"`
}

// RateLimitSettings mirrors internal/ratelimit.Config's wire shape.
type RateLimitSettings struct {
	Enabled                     *bool    `json:"enabled,omitempty"`
	MinRequestIntervalSeconds   *float64 `json:"min_request_interval_seconds,omitempty"`
	MaxRequestsPerMinutePerCred *int     `json:"max_requests_per_minute_per_credential,omitempty"`
	GlobalMaxRequestsPerMinute  *int     `json:"global_max_requests_per_minute,omitempty"`
	QuotaCooldownSeconds        *float64 `json:"quota_cooldown_seconds,omitempty"`
}

// Document is the persisted config document, spec §3/§6.
type Document struct {
	Accounts     []Account              `json:"accounts,omitempty"`
	CustomModels map[string]CustomModel `json:"custom_models,omitempty"`
	History      HistorySettings        `json:"history,omitempty"`
	RateLimit    RateLimitSettings      `json:"rate_limit,omitempty"`
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func durationSecondsOr(p *float64, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return time.Duration(*p * float64(time.Second))
}
