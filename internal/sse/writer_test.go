package sse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteDataFramesPayload(t *testing.T) {
	var buf bytes.Buffer
	require := assert.New(t)
	err := WriteData(&buf, []byte(`{"a":1}`))
	require.NoError(err)
	require.Equal("data: {\"a\":1}\n\n", buf.String())
}

func TestWriteNamedEventFramesPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteNamedEvent(&buf, "message_start", []byte(`{"type":"message_start"}`))
	assert.NoError(t, err)
	assert.Equal(t, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n", buf.String())
}

func TestWriteDoneWritesTerminalMarker(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDone(&buf)
	assert.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n\n", buf.String())
}
