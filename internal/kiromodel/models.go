package kiromodel

import (
	"strings"

	"github.com/kiro-gateway/proxy/internal/util"
)

// DefaultUpstreamModel is used when no mapping or substring fallback applies.
const DefaultUpstreamModel = "claude-sonnet-4"

// knownUpstreamModels is the fixed set of model ids the upstream accepts, per §4.G.
var knownUpstreamModels = map[string]bool{
	"claude-sonnet-4":   true,
	"claude-sonnet-4.5": true,
	"claude-haiku-4.5":  true,
	"claude-opus-4.5":   true,
	"claude-opus-4.6":   true,
	"auto":              true,
}

// baseMapping translates common OpenAI/Anthropic/Gemini model names to upstream ids.
var baseMapping = map[string]string{
	"gpt-4o":              "claude-sonnet-4",
	"gpt-4o-mini":         "claude-haiku-4.5",
	"gpt-4.1":             "claude-sonnet-4.5",
	"gpt-4.1-mini":        "claude-haiku-4.5",
	"o3":                  "claude-opus-4.5",
	"o4-mini":             "claude-haiku-4.5",
	"claude-3-5-sonnet":   "claude-sonnet-4",
	"claude-3-5-haiku":    "claude-haiku-4.5",
	"claude-3-opus":       "claude-opus-4.5",
	"claude-sonnet-4":     "claude-sonnet-4",
	"claude-sonnet-4-5":   "claude-sonnet-4.5",
	"claude-opus-4-5":     "claude-opus-4.5",
	"claude-opus-4-6":     "claude-opus-4.6",
	"claude-haiku-4-5":    "claude-haiku-4.5",
	"gemini-1.5-pro":      "claude-sonnet-4",
	"gemini-1.5-flash":    "claude-haiku-4.5",
	"gemini-2.0-flash":    "claude-haiku-4.5",
	"gemini-2.5-pro":      "claude-opus-4.5",
	"auto":                "auto",
}

// ModelMapper resolves inbound model names to an upstream model id. Admin-added custom
// models merge in at construction time (§4.L).
type ModelMapper struct {
	custom map[string]string
}

// NewModelMapper returns a mapper seeded with the fixed table plus any custom aliases.
func NewModelMapper(custom map[string]string) *ModelMapper {
	m := &ModelMapper{custom: map[string]string{}}
	for k, v := range custom {
		m.custom[strings.ToLower(k)] = v
	}
	return m
}

// Resolve maps name to an upstream model id using the custom table, then the fixed
// table, then substring fallback, defaulting to DefaultUpstreamModel.
func (m *ModelMapper) Resolve(name string) string {
	name = util.NormalizeDroidCustomModel(strings.TrimSpace(name))
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return DefaultUpstreamModel
	}
	if knownUpstreamModels[lower] {
		return lower
	}
	if m != nil {
		if v, ok := m.custom[lower]; ok {
			return v
		}
	}
	if v, ok := baseMapping[lower]; ok {
		return v
	}
	switch {
	case strings.Contains(lower, "opus"):
		return "claude-opus-4.5"
	case strings.Contains(lower, "haiku"):
		return "claude-haiku-4.5"
	case strings.Contains(lower, "sonnet"):
		return "claude-sonnet-4"
	default:
		return DefaultUpstreamModel
	}
}
