package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-gateway/proxy/internal/eventstream"
)

func encodeAssistantText(text string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"assistantResponseEvent": map[string]any{"content": text},
	})
	return eventstream.Encode("assistantResponseEvent", payload)
}

func TestSummarizeReturnsConcatenatedText(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		cs := body["conversationState"].(map[string]any)
		cur := cs["currentMessage"].(map[string]any)["userInputMessage"].(map[string]any)
		gotModel, _ = cur["modelId"].(string)
		assert.Empty(t, cs["history"])

		w.Write(append(encodeAssistantText("the user "), encodeAssistantText("asked about billing")...))
	}))
	defer srv.Close()

	s := New(srv.Client())
	s.BaseURL = srv.URL

	ctx := WithCredential(context.Background(), "tok", "fp", "")
	summary, err := s.Summarize(ctx, "summarize this conversation")
	require.NoError(t, err)
	assert.Equal(t, "the user asked about billing", summary)
	assert.Equal(t, SummaryModel, gotModel)
}

func TestSummarizeRequiresCredentialInContext(t *testing.T) {
	s := New(http.DefaultClient)
	_, err := s.Summarize(context.Background(), "prompt")
	assert.Error(t, err)
}
