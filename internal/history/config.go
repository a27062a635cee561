// Package history implements the multi-strategy history compaction described in spec §4.H:
// auto-truncate, smart-summary, pre-estimate, and error-retry, backed by a small LRU summary
// cache so repeated retries for the same session don't re-summarize from scratch.
package history

import "time"

// Strategy names one of the compaction strategies that may be enabled independently.
type Strategy string

const (
	StrategyAutoTruncate Strategy = "auto_truncate"
	StrategySmartSummary Strategy = "smart_summary"
	StrategyErrorRetry   Strategy = "error_retry"
	StrategyPreEstimate  Strategy = "pre_estimate"
)

// Config mirrors the original implementation's HistoryConfig field-for-field, including its
// defaults.
type Config struct {
	Strategies []Strategy

	MaxMessages int
	MaxChars    int

	SummaryKeepRecent  int
	SummaryThreshold   int
	SummaryMaxLength   int

	RetryMaxMessages int
	MaxRetries       int

	EstimateThreshold int
	CharsPerToken     float64

	SummaryCacheEnabled          bool
	SummaryCacheMinDeltaMessages int
	SummaryCacheMinDeltaChars    int
	SummaryCacheMaxAge           time.Duration

	AddWarningHeader bool
}

// DefaultConfig matches the original implementation's dataclass defaults exactly.
func DefaultConfig() Config {
	return Config{
		Strategies: []Strategy{StrategyErrorRetry},

		MaxMessages: 50,
		MaxChars:    600000,

		SummaryKeepRecent: 10,
		SummaryThreshold:  400000,
		SummaryMaxLength:  2000,

		RetryMaxMessages: 30,
		MaxRetries:       2,

		EstimateThreshold: 650000,
		CharsPerToken:     3.0,

		SummaryCacheEnabled:          true,
		SummaryCacheMinDeltaMessages: 3,
		SummaryCacheMinDeltaChars:    4000,
		SummaryCacheMaxAge:           180 * time.Second,

		AddWarningHeader: true,
	}
}

func (c Config) has(s Strategy) bool {
	for _, v := range c.Strategies {
		if v == s {
			return true
		}
	}
	return false
}

// IsContentLengthError reports whether an upstream error body names the content-too-long
// condition, per spec §7's CONTENT_TOO_LONG classification.
func IsContentLengthError(body string) bool {
	return isContentLengthError(body)
}
