// Package prompt splices fetched page text into a conversation transcript.
package prompt

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/MrWong99/scorecard-proxy/pkg/types"
)

// Separator is inserted between the original user text and the page text.
const Separator = "\n\nHere is the raw scorecard page text:\n\n"

// Augment returns a copy of t in which every user message has [Separator]
// followed by pageText appended to its content. Messages with any other role
// are copied unchanged. The input transcript is not modified.
//
// Augment does not detect earlier augmentation; calling it twice appends the
// page text twice.
func Augment(t types.Transcript, pageText string) types.Transcript {
	out := t.Clone()
	suffix := Separator + pageText
	for i, m := range out {
		if m.Role != types.RoleUser {
			continue
		}
		out[i].Content = appendText(m.Content, suffix)
	}
	return out
}

// appendText adds suffix to the visible text of content. String content is
// concatenated. Block content gets the suffix on its last text block, or a new
// text block when it has none. Anything else (null, missing) is treated as an
// empty string.
func appendText(content json.RawMessage, suffix string) json.RawMessage {
	res := gjson.ParseBytes(content)

	if res.IsArray() {
		last := -1
		blocks := res.Array()
		for i, b := range blocks {
			if b.Get("type").String() == "text" {
				last = i
			}
		}
		if last >= 0 {
			path := strconv.Itoa(last) + ".text"
			if out, err := sjson.SetBytes(content, path, blocks[last].Get("text").String()+suffix); err == nil {
				return out
			}
		} else if out, err := sjson.SetBytes(content, "-1", map[string]string{"type": "text", "text": suffix}); err == nil {
			return out
		}
	}

	var text string
	if res.Type == gjson.String {
		text = res.String()
	}
	raw, _ := json.Marshal(text + suffix)
	return raw
}
