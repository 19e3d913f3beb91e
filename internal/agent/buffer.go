package agent

import (
	"fmt"
	"strings"

	"github.com/DroidClaw/DroidClaw/internal/provider"
)

const (
	// compactionThreshold is the estimated token count above which the
	// conversation buffer is compacted before the next model call.
	compactionThreshold = 12000

	// compactionTail is how many trailing messages survive compaction
	// verbatim.
	compactionTail = 6

	// charsPerToken is the rough estimate used instead of a tokenizer.
	charsPerToken = 4
)

// estimateTokens approximates the token footprint of the buffer.
func estimateTokens(messages []provider.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
		if m.Image != nil {
			chars += len(m.Image.Base64)
		}
		for _, tc := range m.ToolCalls {
			chars += len(tc.Name) + 64
		}
	}
	return chars / charsPerToken
}

// compactMessages folds the middle of a long conversation into a single
// summary message. The system prompt and the last tail messages are kept
// verbatim so the model retains its instructions and recent context.
func compactMessages(messages []provider.Message, tail int) []provider.Message {
	if tail <= 0 {
		tail = compactionTail
	}
	// system + summary + tail is the minimum shape worth producing.
	if len(messages) <= tail+2 {
		return messages
	}

	system := messages[0]
	middle := messages[1 : len(messages)-tail]
	kept := messages[len(messages)-tail:]

	var b strings.Builder
	b.WriteString("Earlier conversation compacted. Key points:\n")
	toolCalls := 0
	for _, m := range middle {
		switch m.Role {
		case "user":
			fmt.Fprintf(&b, "- user asked: %s\n", truncate(m.Content, 120))
		case "assistant":
			if len(m.ToolCalls) > 0 {
				toolCalls += len(m.ToolCalls)
				continue
			}
			if m.Content != "" {
				fmt.Fprintf(&b, "- assistant said: %s\n", truncate(m.Content, 120))
			}
		case "tool":
			// Individual tool outputs are summarized in aggregate below.
		}
	}
	if toolCalls > 0 {
		fmt.Fprintf(&b, "- %d tool calls were made; their outputs are reflected in the current device state\n", toolCalls)
	}

	out := make([]provider.Message, 0, tail+2)
	out = append(out, system)
	out = append(out, provider.Message{Role: "system", Content: b.String()})
	out = append(out, kept...)
	return out
}

// sanitizeTail drops tool messages at the head of the kept tail whose
// originating assistant tool_calls message was compacted away. Orphaned
// tool messages are protocol errors for chat completion APIs.
func sanitizeTail(messages []provider.Message) []provider.Message {
	// messages[0] is system, messages[1] the compaction summary.
	i := 2
	for i < len(messages) && messages[i].Role == "tool" {
		i++
	}
	if i == 2 {
		return messages
	}
	return append(messages[:2], messages[i:]...)
}
