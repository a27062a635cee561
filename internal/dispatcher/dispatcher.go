// Package dispatcher implements the per-request orchestration loop described in spec
// §4.I: pick a credential, gate on rate limits, compact history, call upstream, classify
// the result, retry or fail over, and record the flow.
package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiro-gateway/proxy/internal/credential"
	"github.com/kiro-gateway/proxy/internal/eventstream"
	"github.com/kiro-gateway/proxy/internal/flow"
	"github.com/kiro-gateway/proxy/internal/history"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/pool"
	"github.com/kiro-gateway/proxy/internal/quota"
	"github.com/kiro-gateway/proxy/internal/ratelimit"
	"github.com/kiro-gateway/proxy/internal/summarizer"
	"github.com/kiro-gateway/proxy/internal/upstream"
)

// MaxBodyLogChars bounds the user-visible error message per spec §7's log format.
const MaxBodyLogChars = 200

// DefaultMaxRetries bounds the retry/failover loop when no override is configured.
const DefaultMaxRetries = 3

// Request is one inbound call, already translated to the upstream history shape by a
// protocol adapter (§4.G). Model is the resolved upstream model id.
type Request struct {
	Protocol       string
	ConversationID string
	History        []kiromodel.Entry
	CurrentContent string
	CurrentImages  []kiromodel.Image
	Model          string
	ProfileArn     string
	Tools          []upstream.ToolSpecification
}

// Result is the outcome of one dispatched request: either a decoded Summary or a
// classified, client-facing error.
type Result struct {
	Summary      eventstream.Summary
	CredentialID string
	FlowID       string

	StatusCode  int
	Kind        Kind
	UserMessage string
}

// ErrNoAccountAvailable is returned when the pool has no usable credential (503 to client).
var ErrNoAccountAvailable = errors.New("dispatcher: no account available")

// Dispatcher ties together every other component for the duration of one request.
type Dispatcher struct {
	Pool      *pool.Pool
	Ledger    *quota.Ledger
	Limiter   *ratelimit.Limiter
	Upstream  *upstream.Client
	Refresher *credential.Refresher
	Compactor *history.Compactor
	Models    *kiromodel.ModelMapper
	Recorder  *flow.Recorder

	MaxRetries int
}

// New builds a Dispatcher from its collaborators; MaxRetries <= 0 uses DefaultMaxRetries.
func New(p *pool.Pool, ledger *quota.Ledger, limiter *ratelimit.Limiter, up *upstream.Client, refresher *credential.Refresher, compactor *history.Compactor, models *kiromodel.ModelMapper, recorder *flow.Recorder, maxRetries int) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Dispatcher{
		Pool: p, Ledger: ledger, Limiter: limiter, Upstream: up, Refresher: refresher,
		Compactor: compactor, Models: models, Recorder: recorder, MaxRetries: maxRetries,
	}
}

// SessionFingerprint hashes the first three history entries into a stable string used
// for credential affinity (§4.C), so the same conversation tends to land on the same
// credential across turns.
func SessionFingerprint(entries []kiromodel.Entry) string {
	n := len(entries)
	if n > 3 {
		n = 3
	}
	b, err := json.Marshal(entries[:n])
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Dispatch runs the full request lifecycle from spec §4.I and returns a Result describing
// either a successful decode or a client-facing classified failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	flowID := newFlowID()
	fingerprint := SessionFingerprint(req.History)
	rec := flow.Record{
		ID:        flowID,
		Protocol:  req.Protocol,
		CreatedAt: time.Now(),
		Model:     req.Model,
		State:     flow.StatePending,
	}

	cred := d.Pool.Pick(fingerprint)
	if cred == nil {
		d.finish(&rec, flow.StateError, &flow.ErrorInfo{Type: string(KindUnknown), Message: "no account available", Status: 503})
		return Result{FlowID: flowID, StatusCode: 503, Kind: KindUnknown, UserMessage: "no account available"}, ErrNoAccountAvailable
	}

	workingHistory := d.Compactor.PreProcess(req.History, req.CurrentContent)
	if d.Compactor.ShouldSmartSummarize(workingHistory) {
		sctx := summarizer.WithCredential(ctx, cred.Token().AccessToken, cred.Fingerprint(), req.ProfileArn)
		if summarized, err := d.Compactor.CompressWithSummary(sctx, workingHistory, req.ConversationID); err == nil {
			workingHistory = summarized
		}
	}

	var lastResult Result
	refreshedCredID := ""
attemptLoop:
	for attempt := 0; attempt <= d.MaxRetries; attempt++ {
		if cred == nil {
			// A prior iteration already set lastResult (rate-limited/suspended) before
			// failing over to no credential; preserve it instead of masking it with a
			// generic no-account message, per spec §7/§8 (a 429 on the only available
			// credential must still surface as 429, not 503).
			break attemptLoop
		}
		rec.CredentialID = cred.ID

		d.ensureFreshToken(ctx, cred)
		d.gateRateLimit(ctx, cred.ID)

		current := kiromodel.UserInputMessage{
			Content: req.CurrentContent,
			ModelID: req.Model,
			Images:  req.CurrentImages,
		}
		body := upstream.BuildBody(req.ConversationID, workingHistory, current, req.ProfileArn, req.Tools)

		resp, err := d.Upstream.Call(ctx, cred.Token().AccessToken, cred.Fingerprint(), body)
		if d.Limiter != nil {
			d.Limiter.Record(cred.ID, time.Now())
		}
		cred.IncrementRequests()

		if err != nil {
			lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: KindTransport, StatusCode: 502, UserMessage: "upstream transport error"}
			logDecision(cred.ID, KindTransport, 0, err.Error())
			if !d.sleep(ctx, backoff(attempt)) {
				break attemptLoop
			}
			continue
		}

		kind := Classify(resp.StatusCode, string(resp.Body), quota.IsQuotaError, history.IsContentLengthError)
		logDecision(cred.ID, kind, resp.StatusCode, string(resp.Body))

		switch kind {
		case KindSuccess:
			summary, perr := upstream.ParseReply(resp.Body)
			if perr != nil {
				lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: KindTransport, StatusCode: 502, UserMessage: "malformed upstream reply"}
				break
			}
			summary.InputTokens = estimateTokens(req.CurrentContent)
			summary.OutputTokens = estimateTokens(strings.Join(summary.Content, ""))
			rec.Usage = flow.Usage{InputTokens: summary.InputTokens, OutputTokens: summary.OutputTokens}
			for _, t := range summary.ToolUses {
				rec.ToolCalls = append(rec.ToolCalls, t.Name)
			}
			d.finish(&rec, flow.StateCompleted, nil)
			return Result{Summary: summary, CredentialID: cred.ID, FlowID: flowID, StatusCode: resp.StatusCode, Kind: kind}, nil

		case KindTokenExpired:
			if refreshedCredID == cred.ID {
				lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: kind, StatusCode: 401, UserMessage: "token expired after refresh"}
				d.finish(&rec, flow.StateError, &flow.ErrorInfo{Type: string(kind), Message: lastResult.UserMessage, Status: 401})
				return lastResult, fmt.Errorf("dispatcher: %s", kind)
			}
			refreshedCredID = cred.ID
			if _, rerr := d.Refresher.Refresh(ctx, cred); rerr != nil {
				lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: kind, StatusCode: 401, UserMessage: "token expired and refresh failed"}
				d.finish(&rec, flow.StateError, &flow.ErrorInfo{Type: string(kind), Message: "refresh failed", Status: 401})
				return lastResult, fmt.Errorf("dispatcher: %s", kind)
			}
			// Retry once with the same credential on the next attempt slot; a second 401
			// from it surfaces as 401 without another refresh.
			continue

		case KindRateLimited:
			// §4.K: when the limiter is enabled its cooldown (default 30s) applies in
			// place of the ledger's own 300s default; scenario 2 (§8) still requires a
			// cooldown entry to exist when the limiter is absent/disabled.
			cooldown := time.Duration(0)
			if d.Limiter != nil && d.Limiter.Config().Enabled {
				cooldown = d.Limiter.Config().QuotaCooldown
			}
			d.Ledger.Mark(cred.ID, "rate_limited", cooldown)
			lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: kind, StatusCode: 429, UserMessage: "rate limited upstream"}
			cred = d.Pool.NextAfter(cred.ID)

		case KindAccountSuspended:
			cred.SetHealth(credential.HealthSuspended)
			cred.SetEnabled(false)
			lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: kind, StatusCode: 403, UserMessage: "account suspended"}
			cred = d.Pool.NextAfter(cred.ID)

		case KindContentTooLong:
			sctx := summarizer.WithCredential(ctx, cred.Token().AccessToken, cred.Fingerprint(), req.ProfileArn)
			newHistory, ok := d.Compactor.HandleLengthError(sctx, workingHistory, attempt, req.ConversationID)
			lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: kind, StatusCode: 400, UserMessage: "conversation too long"}
			if !ok || len(newHistory) >= len(workingHistory) {
				// Compaction made no progress: further attempts won't either, surface now.
				d.finish(&rec, flow.StateError, &flow.ErrorInfo{Type: string(kind), Message: lastResult.UserMessage, Status: 400})
				return lastResult, fmt.Errorf("dispatcher: %s", kind)
			}
			workingHistory = newHistory

		case KindRetryableServer:
			lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: kind, StatusCode: resp.StatusCode, UserMessage: "upstream server error"}
			if !d.sleep(ctx, backoff(attempt)) {
				break attemptLoop
			}

		default: // BAD_REQUEST, UNKNOWN
			lastResult = Result{FlowID: flowID, CredentialID: cred.ID, Kind: kind, StatusCode: resp.StatusCode, UserMessage: "request rejected upstream"}
			d.finish(&rec, flow.StateError, &flow.ErrorInfo{Type: string(kind), Message: truncateMsg(string(resp.Body)), Status: resp.StatusCode})
			return lastResult, fmt.Errorf("dispatcher: %s", kind)
		}
	}

	d.finish(&rec, flow.StateError, &flow.ErrorInfo{Type: string(lastResult.Kind), Message: lastResult.UserMessage, Status: lastResult.StatusCode})
	return lastResult, fmt.Errorf("dispatcher: exhausted retries, last kind %s", lastResult.Kind)
}

func (d *Dispatcher) ensureFreshToken(ctx context.Context, cred *credential.Credential) {
	if !cred.Token().IsExpiringSoon(5 * time.Minute) {
		return
	}
	if _, err := d.Refresher.Refresh(ctx, cred); err != nil {
		log.WithFields(log.Fields{"cred": cred.ID}).WithError(err).Warn("dispatcher: proactive refresh failed, continuing with existing token")
	}
}

func (d *Dispatcher) gateRateLimit(ctx context.Context, credID string) {
	if d.Limiter == nil {
		return
	}
	allowed, wait, _ := d.Limiter.CanRequest(credID, time.Now())
	if allowed {
		return
	}
	d.sleep(ctx, wait)
}

// sleep waits for d, honoring ctx cancellation; returns false if ctx was cancelled first.
func (d *Dispatcher) sleep(ctx context.Context, d2 time.Duration) bool {
	if d2 <= 0 {
		return true
	}
	t := time.NewTimer(d2)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) finish(rec *flow.Record, state flow.State, errInfo *flow.ErrorInfo) {
	rec.State = state
	rec.Error = errInfo
	rec.CompletedAt = time.Now()
	if d.Recorder != nil {
		d.Recorder.Record(*rec)
	}
}

// backoff computes the exponential delay for attempt (0-based), per spec §4.I: 0.5*2^n seconds.
func backoff(attempt int) time.Duration {
	seconds := 0.5 * math.Pow(2, float64(attempt))
	return time.Duration(seconds * float64(time.Second))
}

// estimateTokens approximates a token count as chars/4 rounded up, per spec §8 scenario 6
// (usageMetadata.totalTokenCount ≈ len(prompt+reply)/4). The Kiro event-stream reply never
// carries real usage counters, so every protocol adapter's reported usage comes from this
// same estimate rather than an upstream-supplied field.
func estimateTokens(s string) int {
	chars := len(s)
	tokens := chars / 4
	if chars%4 != 0 {
		tokens++
	}
	return tokens
}

func truncateMsg(s string) string {
	if len(s) <= MaxBodyLogChars {
		return s
	}
	return s[:MaxBodyLogChars]
}

func logDecision(credID string, kind Kind, status int, body string) {
	log.WithFields(log.Fields{
		"cred":   credID,
		"kind":   kind,
		"status": status,
	}).Infof("[dispatcher] cred=%s kind=%s status=%d msg=%q", credID, kind, status, truncateMsg(body))
}

func newFlowID() string {
	var buf [16]byte
	sum := sha256.Sum256([]byte(time.Now().Format(time.RFC3339Nano)))
	copy(buf[:], sum[:16])
	return hex.EncodeToString(buf[:])
}
