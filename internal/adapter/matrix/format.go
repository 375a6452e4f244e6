// ABOUTME: Markdown to Matrix HTML conversion for outbound text
// ABOUTME: Falls back to a plain body when goldmark fails

package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix/event"
)

// textContent renders markdown text as an org.matrix.custom.html message.
// Text with no markup is sent plain.
func textContent(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: text}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return content
	}
	html := strings.TrimSpace(buf.String())
	if html == "<p>"+text+"</p>" {
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = html
	return content
}
