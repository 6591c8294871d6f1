package ai

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

const pdfMIMEType = "application/pdf"

// Client wraps the Gemini SDK for one API key. Construction performs a
// connectivity check so a bad key fails at startup (or at key-save time),
// not in the middle of a chat turn.
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	sdkClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}

	if _, err := sdkClient.Models.Get(ctx, model, nil); err != nil {
		return nil, fmt.Errorf("gemini connectivity check failed: %w", err)
	}

	return &Client{client: sdkClient, model: model}, nil
}

// Upload registers a local PDF with the Gemini file storage and returns the
// remote handle.
func (c *Client) Upload(ctx context.Context, path string) (DocumentHandle, error) {
	file, err := c.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType: pdfMIMEType,
	})
	if err != nil {
		return DocumentHandle{}, fmt.Errorf("upload %s failed: %w", path, err)
	}
	return DocumentHandle{
		Name:     file.Name,
		MIMEType: file.MIMEType,
		URI:      file.URI,
	}, nil
}

// GenerateStream issues a streaming generation call with the system
// instruction, mapped history, the current turn (text plus optional file
// attachments) and a single Google Search tool declaration.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, emit func(StreamEvent) error) error {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == WireRoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	parts := []*genai.Part{genai.NewPartFromText(req.UserText)}
	for _, handle := range req.Attachments {
		parts = append(parts, genai.NewPartFromURI(handle.URI, handle.MIMEType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		ResponseMIMEType:  "text/plain",
	}

	for chunk, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		for _, event := range decodeChunk(chunk) {
			if emitErr := emit(event); emitErr != nil {
				return emitErr
			}
		}
	}
	return nil
}

// Check implements KeyChecker against a throwaway client.
func (c *Client) Check(ctx context.Context, apiKey string) error {
	_, err := NewClient(ctx, apiKey, c.model)
	return err
}

// decodeChunk flattens one raw SDK chunk into tagged events. A single chunk
// may carry text and tool invocations at the same time.
func decodeChunk(chunk *genai.GenerateContentResponse) []StreamEvent {
	var events []StreamEvent
	for _, candidate := range chunk.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				events = append(events, StreamEvent{Kind: EventTextDelta, Text: part.Text})
			}
			if part.FunctionCall != nil {
				events = append(events, StreamEvent{
					Kind: EventToolCall,
					Tool: ToolCall{
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					},
				})
			}
		}
	}
	return events
}

// ClientPool hands out one Client per API key. The default client is built
// eagerly so the server refuses to start with a broken key; per-user clients
// are built lazily on first use.
type ClientPool struct {
	model    string
	fallback *Client

	mu      sync.Mutex
	clients map[string]*Client
}

func NewClientPool(ctx context.Context, defaultAPIKey, model string) (*ClientPool, error) {
	defaultClient, err := NewClient(ctx, defaultAPIKey, model)
	if err != nil {
		return nil, err
	}
	return &ClientPool{
		model:    model,
		fallback: defaultClient,
		clients:  make(map[string]*Client),
	}, nil
}

// Default returns the server-keyed client.
func (p *ClientPool) Default() *Client {
	return p.fallback
}

// ForKey returns a Generator for the given key; an empty key selects the
// default client.
func (p *ClientPool) ForKey(ctx context.Context, apiKey string) (Generator, error) {
	if apiKey == "" {
		return p.fallback, nil
	}

	p.mu.Lock()
	cached, ok := p.clients[apiKey]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	client, err := NewClient(ctx, apiKey, p.model)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.clients[apiKey] = client
	p.mu.Unlock()
	return client, nil
}

// Check validates a key by constructing (and caching) a client for it.
func (p *ClientPool) Check(ctx context.Context, apiKey string) error {
	_, err := p.ForKey(ctx, apiKey)
	return err
}
