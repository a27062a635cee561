// Package usageclient calls the upstream getUsageLimits endpoint and computes a
// remaining-balance view, per spec §4.M.
package usageclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const usageLimitsURL = "https://q.us-east-1.amazonaws.com/getUsageLimits"

// defaultTTL is how long a snapshot is cached per credential before a fresh call is made.
const defaultTTL = 30 * time.Second

// Snapshot is the computed remaining-balance view for one credential, spec §3.
type Snapshot struct {
	ResourceType string
	Limit        float64
	Used         float64
	Remaining    float64
	ResetAt      time.Time
	FetchedAt    time.Time
}

// Client calls getUsageLimits using the "model" HTTP client and caches the result briefly
// per credential to avoid hammering the endpoint when an admin surface polls it.
type Client struct {
	HTTP *http.Client
	TTL  time.Duration

	// BaseURL overrides usageLimitsURL; empty means use the real upstream endpoint.
	// Exposed so tests can point the client at an httptest.Server.
	BaseURL string

	mu    sync.Mutex
	cache map[string]Snapshot
}

func New(httpClient *http.Client) *Client {
	return &Client{HTTP: httpClient, TTL: defaultTTL, cache: make(map[string]Snapshot)}
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return usageLimitsURL
}

func (c *Client) buildURL(profileArn string) string {
	u := c.baseURL() + "?origin=AI_EDITOR&resourceType=AGENTIC_REQUEST"
	if profileArn != "" {
		u += "&profileArn=" + url.QueryEscape(profileArn)
	}
	return u
}

func buildHeaders(token, kiroVersion, fingerprint string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("x-amz-user-agent", fmt.Sprintf("aws-sdk-js/1.0.0 KiroIDE-%s-%s", kiroVersion, fingerprint))
	h.Set("amz-sdk-request", "attempt=1; max=1")
	return h
}

// GetUsageLimits returns a cached snapshot for credID if fresh, otherwise calls upstream,
// caches, and returns the new snapshot.
func (c *Client) GetUsageLimits(ctx context.Context, credID, token, profileArn, kiroVersion, fingerprint string) (Snapshot, error) {
	if cached, ok := c.cached(credID); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(profileArn), nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header = buildHeaders(token, kiroVersion, fingerprint)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("usageclient: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return Snapshot{}, fmt.Errorf("usageclient: upstream status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var raw usageLimitsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("usageclient: decode response: %w", err)
	}

	snap := calculateBalance(raw)
	snap.FetchedAt = time.Now()

	c.store(credID, snap)
	return snap, nil
}

func (c *Client) cached(credID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.cache[credID]
	if !ok {
		return Snapshot{}, false
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if time.Since(snap.FetchedAt) > ttl {
		return Snapshot{}, false
	}
	return snap, true
}

func (c *Client) store(credID string, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[credID] = snap
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type usageBonus struct {
	UsageLimit   float64 `json:"usageLimit"`
	CurrentUsage float64 `json:"currentUsage"`
}

type usageFreeTrial struct {
	UsageLimitWithPrecision   float64 `json:"usageLimitWithPrecision"`
	CurrentUsageWithPrecision float64 `json:"currentUsageWithPrecision"`
}

type usageBreakdown struct {
	ResourceType              string          `json:"resourceType"`
	UsageLimitWithPrecision   float64         `json:"usageLimitWithPrecision"`
	CurrentUsageWithPrecision float64         `json:"currentUsageWithPrecision"`
	FreeTrialInfo             *usageFreeTrial `json:"freeTrialInfo"`
	Bonuses                   []usageBonus    `json:"bonuses"`
}

type usageLimitsResponse struct {
	UsageBreakdownList []usageBreakdown `json:"usageBreakdownList"`
}

func calculateBalance(resp usageLimitsResponse) Snapshot {
	var limit, used float64
	resourceType := "AGENTIC_REQUEST"

	for _, b := range resp.UsageBreakdownList {
		if b.ResourceType != "" {
			resourceType = b.ResourceType
		}
		limit += b.UsageLimitWithPrecision
		used += b.CurrentUsageWithPrecision
		if b.FreeTrialInfo != nil {
			limit += b.FreeTrialInfo.UsageLimitWithPrecision
			used += b.FreeTrialInfo.CurrentUsageWithPrecision
		}
		for _, bonus := range b.Bonuses {
			limit += bonus.UsageLimit
			used += bonus.CurrentUsage
		}
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Snapshot{
		ResourceType: resourceType,
		Limit:        limit,
		Used:         used,
		Remaining:    remaining,
	}
}
