package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiro-gateway/proxy/internal/history"
	"github.com/kiro-gateway/proxy/internal/quota"
)

func classify(status int, body string) Kind {
	return Classify(status, body, quota.IsQuotaError, history.IsContentLengthError)
}

func TestClassifySuccess(t *testing.T) {
	assert.Equal(t, KindSuccess, classify(200, ""))
}

func TestClassifyTokenExpired(t *testing.T) {
	assert.Equal(t, KindTokenExpired, classify(401, "unauthorized"))
}

func TestClassifyRateLimitedByStatus(t *testing.T) {
	assert.Equal(t, KindRateLimited, classify(429, ""))
}

func TestClassifyRateLimitedByKeyword(t *testing.T) {
	assert.Equal(t, KindRateLimited, classify(400, "quota exceeded for this account"))
}

func TestClassifyAccountSuspended(t *testing.T) {
	assert.Equal(t, KindAccountSuspended, classify(403, "account is suspended"))
}

func TestClassifyContentTooLong(t *testing.T) {
	assert.Equal(t, KindContentTooLong, classify(400, "CONTENT_LENGTH_EXCEEDS_THRESHOLD"))
}

func TestClassifyRetryableServer(t *testing.T) {
	assert.Equal(t, KindRetryableServer, classify(503, "internal hiccup"))
}

func TestClassifyBadRequest(t *testing.T) {
	assert.Equal(t, KindBadRequest, classify(400, "missing field foo"))
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, classify(418, "teapot"))
}
