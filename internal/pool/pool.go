// Package pool holds the ordered set of credentials and implements session-affinity
// selection and failover, per spec §4.C.
package pool

import (
	"hash/fnv"
	"sync"

	"github.com/kiro-gateway/proxy/internal/credential"
	"github.com/kiro-gateway/proxy/internal/quota"
)

// Pool is an ordered, mutable sequence of credentials. Reads take a snapshot of the
// slice header under the read lock; writers copy-on-write under the write lock, per spec §5.
type Pool struct {
	mu     sync.RWMutex
	creds  []*credential.Credential
	ledger *quota.Ledger
}

// New returns an empty pool backed by ledger for availability checks.
func New(ledger *quota.Ledger) *Pool {
	return &Pool{ledger: ledger}
}

// Add appends a credential under the writer lock, copy-on-write.
func (p *Pool) Add(c *credential.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make([]*credential.Credential, len(p.creds), len(p.creds)+1)
	copy(next, p.creds)
	p.creds = append(next, c)
}

// Remove deletes the credential with the given id, copy-on-write.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make([]*credential.Credential, 0, len(p.creds))
	for _, c := range p.creds {
		if c.ID != id {
			next = append(next, c)
		}
	}
	p.creds = next
}

// snapshot returns the current slice header; callers must not mutate it.
func (p *Pool) snapshot() []*credential.Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creds
}

// All returns every credential currently in the pool, in order.
func (p *Pool) All() []*credential.Credential {
	return p.snapshot()
}

// Get returns the credential with the given id, if present.
func (p *Pool) Get(id string) *credential.Credential {
	for _, c := range p.snapshot() {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// isAvailable applies the full §3 availability predicate: credential health plus ledger.
func (p *Pool) isAvailable(c *credential.Credential) bool {
	if !c.Available() {
		return false
	}
	if p.ledger != nil && !p.ledger.Available(c.ID) {
		return false
	}
	return true
}

// available returns the subset of the snapshot that satisfies §3's availability
// predicate, preserving pool order.
func (p *Pool) available(snap []*credential.Credential) []*credential.Credential {
	out := make([]*credential.Credential, 0, len(snap))
	for _, c := range snap {
		if p.isAvailable(c) {
			out = append(out, c)
		}
	}
	return out
}

// Pick selects a credential deterministically from the available subset using
// hash(fingerprint) mod N, per §4.C. Returns nil if no credential is available.
//
// Per SPEC_FULL.md §4.I this selects only among the available subset rather than
// hashing over the full pool and discarding a cooldown hit — the affinity hash still
// lands deterministically on the same warm credential for a given fingerprint as long
// as the available set doesn't change, but a conversation never wastes a round trip on
// a credential already known to be cooling down.
func (p *Pool) Pick(fingerprint string) *credential.Credential {
	avail := p.available(p.snapshot())
	if len(avail) == 0 {
		return nil
	}
	idx := int(hashString(fingerprint) % uint64(len(avail)))
	return avail[idx]
}

// NextAfter walks the available subset starting just after credID, wrapping around,
// for failover. Returns nil if no other credential is available.
func (p *Pool) NextAfter(credID string) *credential.Credential {
	snap := p.snapshot()
	avail := p.available(snap)
	if len(avail) == 0 {
		return nil
	}
	start := -1
	for i, c := range avail {
		if c.ID == credID {
			start = i
			break
		}
	}
	for i := 1; i <= len(avail); i++ {
		candidate := avail[(start+i)%len(avail)]
		if candidate.ID != credID {
			return candidate
		}
	}
	if avail[0].ID != credID {
		return avail[0]
	}
	return nil
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
