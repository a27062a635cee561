package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeedsStaticUpstreamModels(t *testing.T) {
	r := New()
	e, ok := r.Get("claude-sonnet-4")
	require.True(t, ok)
	assert.Equal(t, 200000, e.ContextWindow)

	_, ok = r.Get("auto")
	assert.True(t, ok)
}

func TestAddCustomOverridesExisting(t *testing.T) {
	r := New()
	r.AddCustom(Entry{ID: "claude-sonnet-4", DisplayName: "My Alias", UpstreamModelID: "claude-sonnet-4"})
	e, ok := r.Get("claude-sonnet-4")
	require.True(t, ok)
	assert.Equal(t, "My Alias", e.DisplayName)
}

func TestRemoveCustomDropsEntry(t *testing.T) {
	r := New()
	r.AddCustom(Entry{ID: "my-model", UpstreamModelID: "claude-opus-4.5"})
	r.RemoveCustom("my-model")
	_, ok := r.Get("my-model")
	assert.False(t, ok)
}

func TestListIsSortedById(t *testing.T) {
	r := New()
	list := r.List()
	for i := 1; i < len(list); i++ {
		assert.LessOrEqual(t, list[i-1].ID, list[i].ID)
	}
}
