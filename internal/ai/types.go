package ai

import "context"

// Wire role vocabulary of the Gemini API.
const (
	WireRoleUser  = "user"
	WireRoleModel = "model"
)

// DocumentHandle is an opaque remote reference to an uploaded file. It is
// valid only within the Gemini file storage lifetime and is never persisted.
type DocumentHandle struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	URI      string `json:"uri"`
}

// Turn is one role-tagged text block of prior conversation history.
type Turn struct {
	Role string
	Text string
}

// GenerateRequest is the outgoing model request for a single chat turn.
type GenerateRequest struct {
	SystemInstruction string
	History           []Turn
	UserText          string
	Attachments       []DocumentHandle
}

// EventKind discriminates StreamEvent variants.
type EventKind int

const (
	EventTextDelta EventKind = iota
	EventToolCall
)

// ToolCall is a tool invocation surfaced by the model mid-stream.
type ToolCall struct {
	Name string
	Args map[string]any
}

// StreamEvent is one decoded streaming chunk: either a text delta or a tool
// invocation. Raw SDK chunk shapes are decoded into this tagged form once,
// at the client boundary.
type StreamEvent struct {
	Kind EventKind
	Text string
	Tool ToolCall
}

// Generator produces a streamed model response, emitting decoded events in
// arrival order. A non-nil error from emit aborts the stream.
type Generator interface {
	GenerateStream(ctx context.Context, req GenerateRequest, emit func(StreamEvent) error) error
}

// GeneratorSource resolves a Generator for an API key. An empty key selects
// the server's default client.
type GeneratorSource interface {
	ForKey(ctx context.Context, apiKey string) (Generator, error)
}

// Uploader registers a local file with the remote file storage.
type Uploader interface {
	Upload(ctx context.Context, path string) (DocumentHandle, error)
}

// KeyChecker validates an API key against the remote API before it is stored.
type KeyChecker interface {
	Check(ctx context.Context, apiKey string) error
}
