// Package types defines the conversation types shared by the page fetcher,
// prompt augmenter and completion driver.
//
// They are intentionally minimal. Content is kept as raw JSON so that both the
// plain-string form and structured content blocks survive a round trip through
// the proxy byte for byte.
package types

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Role identifies the author of a [Message].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation in Anthropic Messages API shape.
type Message struct {
	// Role is "user" or "assistant". Other values are passed through untouched.
	Role Role `json:"role"`

	// Content is either a JSON string or a JSON array of content blocks.
	Content json.RawMessage `json:"content"`
}

// Transcript is an ordered, chronological list of messages. Roles are expected
// to alternate but nothing here enforces it.
type Transcript []Message

// TextMessage builds a message with plain string content.
func TextMessage(role Role, text string) Message {
	raw, _ := json.Marshal(text)
	return Message{Role: role, Content: raw}
}

// IsText reports whether the content is a plain JSON string.
func (m Message) IsText() bool {
	return gjson.ParseBytes(m.Content).Type == gjson.String
}

// IsBlocks reports whether the content is an array of content blocks.
func (m Message) IsBlocks() bool {
	return gjson.ParseBytes(m.Content).IsArray()
}

// Text returns the visible text of the message: the string content, or the
// concatenation of every "text" block.
func (m Message) Text() string {
	res := gjson.ParseBytes(m.Content)
	if res.Type == gjson.String {
		return res.String()
	}
	var out string
	res.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			out += block.Get("text").String()
		}
		return true
	})
	return out
}

// Clone returns a copy of t whose messages do not share content buffers with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		out[i] = Message{Role: m.Role, Content: append(json.RawMessage(nil), m.Content...)}
	}
	return out
}
