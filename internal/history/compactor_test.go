package history

import (
	"context"
	"strings"
	"testing"

	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSummarizer struct {
	calls   int
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.summary, s.err
}

func buildHistory(n int) []kiromodel.Entry {
	var h []kiromodel.Entry
	for i := 0; i < n; i++ {
		h = append(h, kiromodel.UserEntry(kiromodel.UserInputMessage{Content: strings.Repeat("x", 50)}))
		h = append(h, kiromodel.AssistantEntry(kiromodel.AssistantResponseMessage{Content: strings.Repeat("y", 50)}))
	}
	return h
}

func TestPreProcessAutoTruncateByCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []Strategy{StrategyAutoTruncate}
	cfg.MaxMessages = 4
	cfg.MaxChars = 1_000_000
	c := NewCompactor(cfg, nil)

	out := c.PreProcess(buildHistory(10), "")
	assert.LessOrEqual(t, len(out), 4)
	assert.True(t, c.WasTruncated())
	assert.True(t, out[0].IsUser())
}

func TestPreProcessNoStrategiesIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = nil
	c := NewCompactor(cfg, nil)

	h := buildHistory(5)
	out := c.PreProcess(h, "")
	assert.Len(t, out, len(h))
	assert.False(t, c.WasTruncated())
}

func TestShouldSmartSummarizeThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []Strategy{StrategySmartSummary}
	cfg.SummaryThreshold = 10
	cfg.SummaryKeepRecent = 2
	c := NewCompactor(cfg, nil)

	assert.True(t, c.ShouldSmartSummarize(buildHistory(5)))
}

func TestCompressWithSummaryBuildsSyntheticPair(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []Strategy{StrategySmartSummary}
	cfg.SummaryThreshold = 10
	cfg.SummaryKeepRecent = 2
	summ := &stubSummarizer{summary: "user asked about X, assistant did Y"}
	c := NewCompactor(cfg, summ)

	out, err := c.CompressWithSummary(context.Background(), buildHistory(10), "session-1")
	require.NoError(t, err)
	require.Equal(t, 1, summ.calls)
	assert.True(t, out[0].IsUser())
	assert.Contains(t, out[0].User.Content, "Earlier conversation summary")
	assert.True(t, out[1].IsAssistant())
	assert.Empty(t, out[1].Assistant.ToolUses)
}

func TestCompressWithSummaryFallsBackToTruncateOnSummarizerError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []Strategy{StrategySmartSummary}
	cfg.SummaryThreshold = 10
	cfg.SummaryKeepRecent = 2
	summ := &stubSummarizer{err: assertError{}}
	c := NewCompactor(cfg, summ)

	history := buildHistory(10)
	out, err := c.CompressWithSummary(context.Background(), history, "session-1")
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.True(t, c.WasTruncated())
}

type assertError struct{}

func (assertError) Error() string { return "summarizer failed" }

func TestHandleLengthErrorRespectsMaxRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []Strategy{StrategyErrorRetry}
	cfg.MaxRetries = 2
	cfg.RetryMaxMessages = 4
	c := NewCompactor(cfg, nil)

	h := buildHistory(20)
	_, retry := c.HandleLengthError(context.Background(), h, 2, "s")
	assert.False(t, retry, "attempt >= max_retries must not retry")
}

func TestHandleLengthErrorReusesCachedSummary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []Strategy{StrategyErrorRetry}
	cfg.RetryMaxMessages = 4
	cfg.SummaryCacheEnabled = true
	summ := &stubSummarizer{summary: "cached summary text"}
	c := NewCompactor(cfg, summ)

	h := buildHistory(20)
	_, retry1 := c.HandleLengthError(context.Background(), h, 0, "session-x")
	require.True(t, retry1)
	require.Equal(t, 1, summ.calls)

	_, retry2 := c.HandleLengthError(context.Background(), h, 0, "session-x")
	require.True(t, retry2)
	assert.Equal(t, 1, summ.calls, "an unchanged prefix must reuse the cached summary, not call the summarizer again")
}

func TestSummaryCacheRejectsWhenPrefixGrewPastDelta(t *testing.T) {
	c := NewSummaryCache(10)
	c.Set("k", "s", 10, 1000)

	_, ok := c.Get("k", 14, 1000, 3, 5000, 0)
	assert.False(t, ok, "prefix grew by >= minDeltaMessages so the cache entry is stale")
}

func TestIsContentLengthErrorMatchesKnownMarkers(t *testing.T) {
	assert.True(t, IsContentLengthError("CONTENT_LENGTH_EXCEEDS_THRESHOLD: too big"))
	assert.True(t, IsContentLengthError("Input is too long for this model"))
	assert.True(t, IsContentLengthError("the message content is too LONG"))
	assert.False(t, IsContentLengthError("internal server error"))
}
