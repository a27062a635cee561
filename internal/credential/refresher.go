package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// RefreshErrorKind classifies why a refresh attempt failed.
type RefreshErrorKind string

const (
	RefreshExpired   RefreshErrorKind = "expired"
	RefreshThrottled RefreshErrorKind = "throttled"
	RefreshTransport RefreshErrorKind = "transport"
	RefreshSchema    RefreshErrorKind = "schema"
)

// RefreshError wraps a classified refresh failure.
type RefreshError struct {
	Kind RefreshErrorKind
	Msg  string
}

func (e *RefreshError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

const kiroVersion = "0.1.0"

// Refresher refreshes an expiring access token against one of the two upstream
// refresh endpoints, persisting the result atomically via a Store.
type Refresher struct {
	Client *http.Client
	Store  *Store

	// URLFunc overrides RefreshURL; nil means use RefreshURL. Exposed for tests that need
	// to point refresh calls at a local test server instead of the real upstream.
	URLFunc func(region string, method AuthMethod) string
}

func (r *Refresher) refreshURL(region string, method AuthMethod) string {
	if r.URLFunc != nil {
		return r.URLFunc(region, method)
	}
	return RefreshURL(region, method)
}

// NewRefresher builds a refresher bound to client (expected to be the "short" pool client).
func NewRefresher(client *http.Client, store *Store) *Refresher {
	return &Refresher{Client: client, Store: store}
}

// RefreshURL returns the refresh endpoint for the given region/authMethod, per §4.A.
func RefreshURL(region string, method AuthMethod) string {
	if region == "" {
		region = "us-east-1"
	}
	if method == AuthIDC {
		return fmt.Sprintf("https://oidc.%s.amazonaws.com/token", region)
	}
	return fmt.Sprintf("https://prod.%s.auth.desktop.kiro.dev/refreshToken", region)
}

// ValidateRefreshToken rejects tokens too short or ending in an ellipsis, which the
// upstream emits for truncated copy-pasted tokens.
func ValidateRefreshToken(token string) (bool, string) {
	if strings.TrimSpace(token) == "" {
		return false, "missing refresh token"
	}
	if len(token) < 100 || strings.HasSuffix(token, "...") {
		return false, fmt.Sprintf("refresh token looks truncated (len=%d)", len(token))
	}
	return true, ""
}

// Refresh attempts to refresh cred's access token. On success it updates cred in
// memory and persists the new document to disk atomically.
func (r *Refresher) Refresh(ctx context.Context, cred *Credential) (string, error) {
	tok := cred.Token()

	if ok, reason := ValidateRefreshToken(tok.RefreshToken); !ok {
		return "", &RefreshError{Kind: RefreshSchema, Msg: reason}
	}

	method := tok.AuthMethod
	if method == "" {
		method = AuthSocial
	}
	url := r.refreshURL(tok.Region, method)
	machineID := cred.Fingerprint()

	var body map[string]any
	headers := map[string]string{"Content-Type": "application/json"}
	if method == AuthIDC {
		if tok.ClientID == "" || tok.ClientSecret == "" {
			return "", &RefreshError{Kind: RefreshSchema, Msg: "idc auth missing clientId/clientSecret"}
		}
		body = map[string]any{
			"refreshToken": tok.RefreshToken,
			"clientId":     tok.ClientID,
			"clientSecret": tok.ClientSecret,
			"grantType":    "refresh_token",
		}
		headers["x-amz-user-agent"] = fmt.Sprintf("aws-sdk-js/3.738.0 KiroIDE-%s-%s", kiroVersion, machineID)
		headers["User-Agent"] = "node"
	} else {
		body = map[string]any{"refreshToken": tok.RefreshToken}
		headers["User-Agent"] = fmt.Sprintf("KiroIDE-%s-%s", kiroVersion, machineID)
		headers["Accept"] = "application/json, text/plain, */*"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &RefreshError{Kind: RefreshSchema, Msg: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &RefreshError{Kind: RefreshTransport, Msg: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", &RefreshError{Kind: RefreshTransport, Msg: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return "", &RefreshError{Kind: RefreshExpired, Msg: "credential expired or invalid, re-login required"}
		case http.StatusTooManyRequests:
			return "", &RefreshError{Kind: RefreshThrottled, Msg: "refresh rate limited"}
		default:
			msg := string(respBody)
			if len(msg) > 200 {
				msg = msg[:200]
			}
			return "", &RefreshError{Kind: RefreshTransport, Msg: fmt.Sprintf("refresh failed: %d - %s", resp.StatusCode, msg)}
		}
	}

	var data map[string]any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return "", &RefreshError{Kind: RefreshSchema, Msg: "refresh response not json"}
	}

	newToken, _ := firstString(data, "accessToken", "access_token")
	if newToken == "" {
		return "", &RefreshError{Kind: RefreshSchema, Msg: "response missing access_token"}
	}

	tok.AccessToken = newToken
	if rt, ok := firstString(data, "refreshToken", "refresh_token"); ok {
		tok.RefreshToken = rt
	}
	if arn, ok := firstString(data, "profileArn"); ok {
		tok.ProfileArn = arn
	}
	if expiresIn, ok := firstNumber(data, "expiresIn", "expires_in"); ok {
		tok.ExpiresAt = time.Now().UTC().Add(time.Duration(expiresIn) * time.Second).Format(time.RFC3339)
	}
	tok.LastRefresh = time.Now().UTC().Format(time.RFC3339)

	cred.SetToken(tok)

	if r.Store != nil {
		if err := r.Store.Save(cred.Path, tok); err != nil {
			log.WithError(err).WithField("cred", cred.ID).Warn("credential: failed to persist refreshed token")
		}
	}
	return newToken, nil
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
