package ai

import (
	"strings"

	"transitchat/internal/model"
)

// Spellings the search tool invocation has been observed to arrive under.
var searchToolNames = map[string]bool{
	"googlesearch":  true,
	"google_search": true,
}

const unknownQueryPlaceholder = "unknown query"

// StreamCollector consumes decoded stream events: text deltas accumulate
// into the final answer (and are mirrored to onDelta for a live view), tool
// invocations are recorded for the grounding summary.
type StreamCollector struct {
	text    strings.Builder
	calls   []ToolCall
	onDelta func(string) error
}

// NewStreamCollector builds a collector. onDelta may be nil when the caller
// has no use for incremental output.
func NewStreamCollector(onDelta func(string) error) *StreamCollector {
	return &StreamCollector{onDelta: onDelta}
}

func (c *StreamCollector) Collect(event StreamEvent) error {
	switch event.Kind {
	case EventTextDelta:
		c.text.WriteString(event.Text)
		if c.onDelta != nil {
			return c.onDelta(event.Text)
		}
	case EventToolCall:
		c.calls = append(c.calls, event.Tool)
	}
	return nil
}

// Text returns the accumulated answer so far.
func (c *StreamCollector) Text() string {
	return c.text.String()
}

// Grounding derives the summary from recorded tool invocations. It is nil
// when no search tool was invoked. Query strings come from the "query"
// argument, falling back to "q", then to a placeholder.
func (c *StreamCollector) Grounding() *model.GroundingSummary {
	var queries []string
	performed := false
	for _, call := range c.calls {
		if !searchToolNames[strings.ToLower(call.Name)] {
			continue
		}
		performed = true
		queries = append(queries, queryFromArgs(call.Args))
	}
	if !performed {
		return nil
	}
	return &model.GroundingSummary{
		SearchPerformed: true,
		QueriesUsed:     queries,
	}
}

func queryFromArgs(args map[string]any) string {
	for _, key := range []string{"query", "q"} {
		if raw, ok := args[key]; ok {
			if s, ok := raw.(string); ok && s != "" {
				return s
			}
		}
	}
	return unknownQueryPlaceholder
}
