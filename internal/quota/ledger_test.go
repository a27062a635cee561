package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsQuotaErrorByStatus(t *testing.T) {
	assert.True(t, IsQuotaError(429, ""))
	assert.True(t, IsQuotaError(503, ""))
	assert.True(t, IsQuotaError(529, ""))
	assert.False(t, IsQuotaError(500, ""))
}

func TestIsQuotaErrorByKeyword(t *testing.T) {
	assert.True(t, IsQuotaError(400, "You have exceeded your QUOTA for this month"))
	assert.True(t, IsQuotaError(200, "please slow down, Too Many Requests"))
	assert.True(t, IsQuotaError(400, "server is overloaded right now"))
	assert.False(t, IsQuotaError(400, "bad request: missing field"))
}

func TestAvailableDefaultsTrueWhenNoRecord(t *testing.T) {
	l := NewLedger(0)
	assert.True(t, l.Available("c1"))
}

func TestMarkThenAvailableAfterCooldown(t *testing.T) {
	l := NewLedger(20 * time.Millisecond)
	l.Mark("c1", "429", 0)
	assert.False(t, l.Available("c1"))
	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.Available("c1"))
}

func TestRestoreClearsCooldown(t *testing.T) {
	l := NewLedger(time.Hour)
	l.Mark("c1", "429", 0)
	assert.False(t, l.Available("c1"))
	l.Restore("c1")
	assert.True(t, l.Available("c1"))
}

func TestMarkCooldownOverride(t *testing.T) {
	l := NewLedger(time.Hour)
	l.Mark("c1", "limiter", 10*time.Millisecond)
	until, ok := l.CooldownUntil("c1")
	assert.True(t, ok)
	assert.True(t, until.Before(time.Now().Add(time.Hour)))
}
