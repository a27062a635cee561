// Package summarizer implements the history compactor's summarizer contract (spec §4.H):
// it calls the upstream generateAssistantResponse endpoint via the "short" HTTP client
// using claude-haiku-4.5, with no tools and no history of its own, and must not recurse
// into compaction.
package summarizer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/upstream"
)

// SummaryModel is the fixed upstream model id the summarizer always requests, per §4.H.
const SummaryModel = "claude-haiku-4.5"

type credKey struct{}

// credential is the minimal per-call auth context a summarizer request needs: it borrows
// whichever account the in-flight request already selected rather than picking its own.
type credential struct {
	token       string
	fingerprint string
	profileArn  string
}

// WithCredential attaches the calling request's credential to ctx so a Summarize call
// made while compacting that request's history can authenticate upstream.
func WithCredential(ctx context.Context, token, fingerprint, profileArn string) context.Context {
	return context.WithValue(ctx, credKey{}, credential{token: token, fingerprint: fingerprint, profileArn: profileArn})
}

// Summarizer calls the upstream endpoint through the short HTTP client via
// upstream.Client.Call (origin fallback included); a summary request has no tools and no
// credential failover of its own.
type Summarizer struct {
	HTTP *http.Client

	// BaseURL overrides upstream.Endpoint; empty means use the real upstream. Exposed for
	// tests that need to point calls at a local test server.
	BaseURL string
}

// New returns a Summarizer backed by httpClient (expected to be the "short" pool client).
func New(httpClient *http.Client) *Summarizer {
	return &Summarizer{HTTP: httpClient}
}

// Summarize sends prompt as a single user turn with no prior history and returns the
// concatenated text content of the reply. It does not invoke history compaction.
func (s *Summarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	cred, ok := ctx.Value(credKey{}).(credential)
	if !ok || cred.token == "" {
		return "", fmt.Errorf("summarizer: no credential in context")
	}

	client := &upstream.Client{HTTP: s.HTTP, BaseURL: s.BaseURL}
	body := upstream.BuildBody("", nil, kiromodel.UserInputMessage{
		Content: prompt,
		ModelID: SummaryModel,
		Origin:  "AI_EDITOR",
	}, cred.profileArn, nil)

	resp, err := client.Call(ctx, cred.token, cred.fingerprint, body)
	if err != nil {
		return "", fmt.Errorf("summarizer: call upstream: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("summarizer: upstream status %d", resp.StatusCode)
	}

	summary, err := upstream.ParseReply(resp.Body)
	if err != nil {
		return "", fmt.Errorf("summarizer: parse reply: %w", err)
	}
	text := ""
	for _, c := range summary.Content {
		text += c
	}
	return text, nil
}
