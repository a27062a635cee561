// Package sse writes Server-Sent Events frames for the three streaming dialects this
// proxy emits (OpenAI Chat Completions, OpenAI Responses, Anthropic Messages), reusing
// one pooled buffer per writer goroutine to avoid an allocation per chunk.
package sse

import (
	"bytes"
	"io"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

var (
	dataPrefix  = []byte("data: ")
	eventPrefix = []byte("event: ")
	suffix      = []byte("\n\n")
	doneFrame   = []byte("data: [DONE]\n\n")
)

// WriteData writes a plain "data: <payload>\n\n" frame.
func WriteData(w io.Writer, payload []byte) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(len(dataPrefix) + len(payload) + len(suffix))
	buf.Write(dataPrefix)
	buf.Write(payload)
	buf.Write(suffix)
	_, err := w.Write(buf.Bytes())
	buf.Reset()
	bufferPool.Put(buf)
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return err
}

// WriteNamedEvent writes a named-event SSE frame: "event: <name>\ndata: <payload>\n\n",
// the shape Anthropic's and OpenAI Responses' streams both use.
func WriteNamedEvent(w io.Writer, name string, payload []byte) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(len(eventPrefix) + len(name) + 1 + len(dataPrefix) + len(payload) + len(suffix))
	buf.Write(eventPrefix)
	buf.WriteString(name)
	buf.WriteByte('\n')
	buf.Write(dataPrefix)
	buf.Write(payload)
	buf.Write(suffix)
	_, err := w.Write(buf.Bytes())
	buf.Reset()
	bufferPool.Put(buf)
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return err
}

// WriteDone writes the OpenAI terminal "data: [DONE]\n\n" marker.
func WriteDone(w io.Writer) error {
	_, err := w.Write(doneFrame)
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return err
}

type flusher interface {
	Flush()
}
