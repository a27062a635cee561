package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id string, state State, created time.Time, dur time.Duration, hasErr bool) Record {
	r := Record{ID: id, State: state, CreatedAt: created, CompletedAt: created.Add(dur), Model: "claude-sonnet-4"}
	if hasErr {
		r.Error = &ErrorInfo{Type: "RATE_LIMITED", Status: 429}
	}
	return r
}

func TestRecorderEvictsOldestPastCapacity(t *testing.T) {
	r := NewRecorder(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		r.Record(rec(string(rune('a'+i)), StateCompleted, base.Add(time.Duration(i)*time.Second), time.Millisecond, false))
	}
	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "e", all[2].ID)
}

func TestQueryFiltersByStateAndError(t *testing.T) {
	r := NewRecorder(10)
	base := time.Now()
	r.Record(rec("a", StateCompleted, base, time.Millisecond, false))
	r.Record(rec("b", StateError, base.Add(time.Second), time.Millisecond, true))

	yes := true
	got := r.Query(Filter{HasError: &yes})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestQueryNewestFirstAndPaged(t *testing.T) {
	r := NewRecorder(10)
	base := time.Now()
	for i := 0; i < 5; i++ {
		r.Record(rec(string(rune('a'+i)), StateCompleted, base.Add(time.Duration(i)*time.Second), time.Millisecond, false))
	}
	got := r.Query(Filter{Offset: 1, Limit: 2})
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestComputeStatsErrorRateAndDurations(t *testing.T) {
	r := NewRecorder(10)
	base := time.Now()
	r.Record(rec("a", StateCompleted, base, 100*time.Millisecond, false))
	r.Record(rec("b", StateCompleted, base, 200*time.Millisecond, false))
	r.Record(rec("c", StateError, base, 50*time.Millisecond, true))

	stats := r.Compute()
	assert.Equal(t, 3, stats.TotalFlows)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Errors)
	assert.InDelta(t, 1.0/3.0, stats.ErrorRate, 0.001)
	assert.Greater(t, stats.P50Duration, time.Duration(0))
}

func TestEmptyRecorderStats(t *testing.T) {
	r := NewRecorder(10)
	stats := r.Compute()
	assert.Equal(t, 0, stats.TotalFlows)
	assert.Equal(t, 0.0, stats.ErrorRate)
}
