package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiro-gateway/proxy/internal/kiromodel"
)

// Summarizer produces a short prose summary for a prompt built from the dropped prefix. It
// is expected to call upstream via the "short" HTTP client using claude-haiku-4.5 and MUST
// NOT itself invoke compaction (spec §4.H).
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Compactor applies the enabled strategies from Config to a translated history, per spec
// §4.H. Each call resets the "was truncated" bookkeeping for that one pass.
type Compactor struct {
	Config     Config
	Cache      *SummaryCache
	Summarizer Summarizer

	truncated    bool
	truncateInfo string
}

func NewCompactor(cfg Config, summarizer Summarizer) *Compactor {
	return &Compactor{Config: cfg, Cache: NewSummaryCache(128), Summarizer: summarizer}
}

func (c *Compactor) reset() {
	c.truncated = false
	c.truncateInfo = ""
}

// WasTruncated and TruncateInfo report the outcome of the most recent compaction pass.
func (c *Compactor) WasTruncated() bool     { return c.truncated }
func (c *Compactor) TruncateInfo() string   { return c.truncateInfo }

func historyChars(history []kiromodel.Entry) int {
	b, err := json.Marshal(history)
	if err != nil {
		return 0
	}
	return len(b)
}

// TruncateByCount keeps only the last maxCount entries.
func TruncateByCount(history []kiromodel.Entry, maxCount int) []kiromodel.Entry {
	if maxCount <= 0 || len(history) <= maxCount {
		return history
	}
	return append([]kiromodel.Entry(nil), history[len(history)-maxCount:]...)
}

// TruncateByChars keeps a trailing run of entries whose combined JSON size fits maxChars,
// growing the kept window from the tail backward one entry at a time.
func TruncateByChars(history []kiromodel.Entry, maxChars int) []kiromodel.Entry {
	if maxChars <= 0 {
		return history
	}
	if historyChars(history) <= maxChars {
		return history
	}

	var kept []kiromodel.Entry
	current := 0
	for i := len(history) - 1; i >= 0; i-- {
		b, err := json.Marshal(history[i])
		sz := 0
		if err == nil {
			sz = len(b)
		}
		if current+sz > maxChars && len(kept) > 0 {
			break
		}
		kept = append([]kiromodel.Entry{history[i]}, kept...)
		current += sz
	}
	return kept
}

// PreProcess applies the synchronous strategies (auto-truncate, pre-estimate) that need no
// summarizer call. It does not run smart-summary or error-retry, which require one.
func (c *Compactor) PreProcess(history []kiromodel.Entry, userContent string) []kiromodel.Entry {
	c.reset()
	if len(history) == 0 {
		return history
	}

	result := history
	if c.Config.has(StrategyAutoTruncate) {
		before := len(result)
		result = TruncateByCount(result, c.Config.MaxMessages)
		result = TruncateByChars(result, c.Config.MaxChars)
		if len(result) < before {
			c.truncated = true
			c.truncateInfo = fmt.Sprintf("auto-truncate: %d -> %d messages", before, len(result))
		}
	}

	if c.Config.has(StrategyPreEstimate) {
		total := historyChars(result) + len(userContent)
		if total > c.Config.EstimateThreshold {
			target := int(float64(c.Config.EstimateThreshold) * 0.8)
			before := len(result)
			result = TruncateByChars(result, target)
			if len(result) < before {
				c.truncated = true
				c.truncateInfo = fmt.Sprintf("pre-estimate truncate: %d -> %d messages", before, len(result))
			}
		}
	}

	result = kiromodel.Repair(result)
	return result
}

// ShouldSmartSummarize reports whether the smart-summary strategy would act on history.
func (c *Compactor) ShouldSmartSummarize(history []kiromodel.Entry) bool {
	if !c.Config.has(StrategySmartSummary) {
		return false
	}
	return historyChars(history) > c.Config.SummaryThreshold && len(history) > c.Config.SummaryKeepRecent
}

// CompressWithSummary implements the smart-summary strategy: summarize everything except the
// last SummaryKeepRecent entries and splice in a synthetic summary pair.
func (c *Compactor) CompressWithSummary(ctx context.Context, history []kiromodel.Entry, sessionKey string) ([]kiromodel.Entry, error) {
	if !c.ShouldSmartSummarize(history) {
		return history, nil
	}
	keepRecent := c.Config.SummaryKeepRecent
	old := history[:len(history)-keepRecent]
	recent := append([]kiromodel.Entry(nil), history[len(history)-keepRecent:]...)

	summary, err := c.summarizeWithCache(ctx, old, recent, sessionKey, keepRecent)
	if err != nil || summary == "" {
		c.truncated = true
		c.truncateInfo = fmt.Sprintf("smart-summary fallback truncate: %d -> %d messages", len(history), len(recent))
		return kiromodel.Repair(recent), nil
	}

	result := buildSummaryHistory(summary, recent)
	c.truncated = true
	c.truncateInfo = fmt.Sprintf("smart-summary: %d -> %d messages (summary %d chars)", len(history), len(result), len(summary))
	return kiromodel.Repair(result), nil
}

// HandleLengthError implements the error-retry strategy, invoked after an upstream
// CONTENT_TOO_LONG classification. attempt is 0-based; returns the retried history and
// whether the dispatcher should retry at all.
func (c *Compactor) HandleLengthError(ctx context.Context, history []kiromodel.Entry, attempt int, sessionKey string) ([]kiromodel.Entry, bool) {
	if !c.Config.has(StrategyErrorRetry) {
		return history, false
	}
	if attempt >= c.Config.MaxRetries {
		return history, false
	}
	if len(history) == 0 {
		return history, false
	}
	c.reset()

	factor := 1.0 - float64(attempt)*0.3
	target := int(float64(c.Config.RetryMaxMessages) * factor)
	if target < 5 {
		target = 5
	}
	if len(history) <= target {
		return history, false
	}

	old := history[:len(history)-target]
	recent := append([]kiromodel.Entry(nil), history[len(history)-target:]...)

	if c.Summarizer != nil {
		summary, err := c.summarizeWithCache(ctx, old, recent, sessionKey, target)
		if err == nil && summary != "" {
			result := buildSummaryHistory(summary, recent)
			c.truncated = true
			c.truncateInfo = fmt.Sprintf("error-retry summary (attempt %d): %d -> %d messages", attempt+1, len(history), len(result))
			return kiromodel.Repair(result), true
		}
	}

	truncated := TruncateByCount(history, target)
	if len(truncated) < len(history) {
		c.truncateInfo = fmt.Sprintf("error-retry truncate (attempt %d): %d -> %d messages", attempt+1, len(history), len(truncated))
		return kiromodel.Repair(truncated), true
	}
	return history, false
}

// summarizeWithCache consults the LRU before calling the summarizer, and populates it after
// a fresh summary is generated, per the reuse predicate in spec §4.H.
func (c *Compactor) summarizeWithCache(ctx context.Context, old, recent []kiromodel.Entry, sessionKey string, target int) (string, error) {
	oldCount := len(old)
	oldChars := historyChars(old)
	cacheKey := ""
	if sessionKey != "" {
		cacheKey = fmt.Sprintf("%s:%d", sessionKey, target)
	}

	if cacheKey != "" && c.Config.SummaryCacheEnabled && c.Cache != nil {
		if cached, ok := c.Cache.Get(cacheKey, oldCount, oldChars, c.Config.SummaryCacheMinDeltaMessages, c.Config.SummaryCacheMinDeltaChars, c.Config.SummaryCacheMaxAge); ok {
			return cached, nil
		}
	}

	if c.Summarizer == nil {
		return "", nil
	}
	prompt := buildSummaryPrompt(old, c.Config.SummaryMaxLength)
	summary, err := c.Summarizer.Summarize(ctx, prompt)
	if err != nil {
		return "", err
	}
	if len(summary) > c.Config.SummaryMaxLength {
		summary = summary[:c.Config.SummaryMaxLength] + "..."
	}
	if cacheKey != "" && c.Config.SummaryCacheEnabled && c.Cache != nil && summary != "" {
		c.Cache.Set(cacheKey, summary, oldCount, oldChars)
	}
	return summary, nil
}

func buildSummaryPrompt(old []kiromodel.Entry, maxLength int) string {
	var b strings.Builder
	for _, e := range old {
		role, content := "unknown", ""
		switch {
		case e.IsUser():
			role, content = "user", e.User.Content
		case e.IsAssistant():
			role, content = "assistant", e.Assistant.Content
		}
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		fmt.Fprintf(&b, "[%s]: %s\n", role, content)
	}
	formatted := b.String()
	if len(formatted) > 10000 {
		formatted = formatted[:10000] + "\n...(truncated)"
	}
	return fmt.Sprintf(
		"Summarize the key points of the following conversation history concisely: the user's "+
			"main goals, important actions already taken, and the current state. Keep it under "+
			"%d characters.\n\nConversation history:\n%s\n\nSummary:", maxLength, formatted)
}

// buildSummaryHistory replaces the dropped prefix with a synthetic [user: summary][assistant:
// ack] pair ahead of the kept recent entries, enforcing spec §4.G's invariants (1)-(3) on the
// join point: a placeholder assistant entry carries no toolUses, so any toolResults on the
// first kept entry are stripped before repair runs.
func buildSummaryHistory(summary string, recent []kiromodel.Entry) []kiromodel.Entry {
	modelID := ""
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].IsUser() {
			modelID = recent[i].User.ModelID
			break
		}
		if recent[i].IsAssistant() {
			modelID = recent[i].Assistant.ModelID
			break
		}
	}

	if len(recent) > 0 && recent[0].IsUser() && recent[0].User.Context != nil {
		recent[0].User.Context = nil
	}

	summaryMsg := kiromodel.UserEntry(kiromodel.UserInputMessage{
		Content: fmt.Sprintf("[Earlier conversation summary]\n%s\n\n[Continuing from recent messages...]", summary),
		ModelID: modelID,
		Origin:  "AI_EDITOR",
	})
	ackMsg := kiromodel.AssistantEntry(kiromodel.AssistantResponseMessage{
		Content: "I understand the context. Let's continue.",
	})

	result := make([]kiromodel.Entry, 0, len(recent)+2)
	result = append(result, summaryMsg, ackMsg)
	result = append(result, recent...)
	return result
}

func isContentLengthError(body string) bool {
	if strings.Contains(body, "CONTENT_LENGTH_EXCEEDS_THRESHOLD") {
		return true
	}
	if strings.Contains(body, "Input is too long") {
		return true
	}
	lowered := strings.ToLower(body)
	if strings.Contains(lowered, "too long") {
		if strings.Contains(lowered, "input") || strings.Contains(lowered, "content") || strings.Contains(lowered, "message") {
			return true
		}
	}
	return false
}
