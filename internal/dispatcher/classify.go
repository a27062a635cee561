package dispatcher

import "strings"

// Kind is the error taxonomy from spec §7, computed from an upstream (status, body) pair.
type Kind string

const (
	KindSuccess          Kind = "SUCCESS"
	KindTokenExpired     Kind = "TOKEN_EXPIRED"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindAccountSuspended Kind = "ACCOUNT_SUSPENDED"
	KindContentTooLong   Kind = "CONTENT_TOO_LONG"
	KindRetryableServer  Kind = "RETRYABLE_SERVER"
	KindTransport        Kind = "TRANSPORT"
	KindBadRequest       Kind = "BAD_REQUEST"
	KindUnknown          Kind = "UNKNOWN"
)

var retryableServerStatus = map[int]bool{500: true, 502: true, 503: true, 504: true}

// Classify maps an upstream (status, body) pair to a Kind per spec §7's table. Quota
// classification (429/529 or quota keywords) takes priority over the plain
// retryable-server-status check; a 503 counts as a quota event only when its body carries
// a quota keyword, otherwise it is RETRYABLE_SERVER.
func Classify(status int, body string, isQuotaError func(status int, body string) bool, isContentTooLong func(body string) bool) Kind {
	if status < 400 {
		return KindSuccess
	}
	lower := strings.ToLower(body)

	if status == 401 {
		return KindTokenExpired
	}
	quotaEvent := isQuotaError(status, body)
	if quotaEvent && retryableServerStatus[status] {
		// A retryable server status alone is not a quota marker; require a body keyword.
		quotaEvent = isQuotaError(0, body)
	}
	if quotaEvent {
		return KindRateLimited
	}
	if status == 403 && (strings.Contains(lower, "suspended") || strings.Contains(lower, "disabled")) {
		return KindAccountSuspended
	}
	if isContentTooLong(body) {
		return KindContentTooLong
	}
	if retryableServerStatus[status] {
		return KindRetryableServer
	}
	if status == 400 {
		return KindBadRequest
	}
	return KindUnknown
}
