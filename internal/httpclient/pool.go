// Package httpclient provides the three pre-configured outbound HTTP clients described
// in spec §4.D: api (long-stream generation calls), short (refresh/summary calls), and
// model (model-list/usage-limit calls).
package httpclient

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Pool lazily constructs and reuses the three named clients.
type Pool struct {
	mu     sync.Mutex
	api    *http.Client
	short  *http.Client
	model  *http.Client
}

// New returns an empty, unconstructed pool.
func New() *Pool { return &Pool{} }

func buildClient(readTimeout, connectTimeout time.Duration, maxConns int) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
	}
	return &http.Client{Transport: transport, Timeout: readTimeout}
}

// API returns the long-stream generation client (300s read, 30s connect, 50 conns).
func (p *Pool) API() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.api == nil {
		p.api = buildClient(300*time.Second, 30*time.Second, 50)
	}
	return p.api
}

// Short returns the refresh/summary client (60s read, 15s connect, 20 conns).
func (p *Pool) Short() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.short == nil {
		p.short = buildClient(60*time.Second, 15*time.Second, 20)
	}
	return p.short
}

// Model returns the model-list/usage-limit client (30s read, 10s connect, 10 conns).
func (p *Pool) Model() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		p.model = buildClient(30*time.Second, 10*time.Second, 10)
	}
	return p.model
}

// Warmup eagerly constructs all three clients.
func (p *Pool) Warmup() {
	p.API()
	p.Short()
	p.Model()
}

// CloseAll releases idle connections held by every constructed client.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range []*http.Client{p.api, p.short, p.model} {
		if c == nil {
			continue
		}
		if t, ok := c.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
}
