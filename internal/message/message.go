// ABOUTME: Canonical message and event types produced by platform adapters
// ABOUTME: Handlers match against Message; Event carries everything else by name

package message

import (
	"encoding/json"
	"slices"
	"time"
)

// Inbound is the union of values an adapter can package from one payload.
// It is implemented only by *Message and *Event.
type Inbound interface {
	inbound()
}

// Message is a normalized chat message.
type Message struct {
	Platform string

	MessageID  string
	UserID     string
	GuildID    string
	SrcGuildID string
	ChannelID  string
	Nickname   string
	Avatar     string

	// Text is the cleaned text (mention tags removed, trimmed).
	// TextOriginal is the content as the platform delivered it.
	Text         string
	TextOriginal string
	Images       []string
	Faces        []string

	IsDirect  bool
	IsAdmin   bool
	IsAt      bool
	IsAtAll   bool
	AtTargets []string

	Time time.Time
	Raw  json.RawMessage

	annotations map[string]any
}

func (*Message) inbound() {}

// Clone returns a deep copy of the message, including annotations.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Images = slices.Clone(m.Images)
	c.Faces = slices.Clone(m.Faces)
	c.AtTargets = slices.Clone(m.AtTargets)
	c.Raw = slices.Clone(m.Raw)
	if m.annotations != nil {
		c.annotations = make(map[string]any, len(m.annotations))
		for k, v := range m.annotations {
			c.annotations[k] = v
		}
	}
	return &c
}

// Annotate attaches a value to the message. Middleware uses this to pass
// derived data to handlers without changing the canonical fields.
func (m *Message) Annotate(key string, value any) {
	if m.annotations == nil {
		m.annotations = make(map[string]any)
	}
	m.annotations[key] = value
}

// Annotation returns a value previously attached with Annotate.
func (m *Message) Annotation(key string) (any, bool) {
	v, ok := m.annotations[key]
	return v, ok
}

// Reply builds a text reply addressed to wherever m came from.
func (m *Message) Reply(text string) *Reply {
	return &Reply{
		Source:    m,
		Text:      text,
		UserID:    m.UserID,
		ChannelID: m.ChannelID,
		GuildID:   m.SrcGuildID,
		IsDirect:  m.IsDirect,
	}
}

// Event is a non-message platform notification.
type Event struct {
	Platform string
	Name     string
	Data     json.RawMessage
}

func (*Event) inbound() {}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Reply is an outbound message. It stays deliberately small: text, images
// and routing. Content building beyond that belongs to the caller.
type Reply struct {
	// Source is the message being answered, nil for active messages.
	Source *Message

	Text   string
	Images []string
	// Quote asks the platform to render the reply as a quote of Source.
	Quote bool

	UserID    string
	ChannelID string
	GuildID   string
	IsDirect  bool
}

// WithImage appends an image URL and returns the reply for chaining.
func (r *Reply) WithImage(url string) *Reply {
	r.Images = append(r.Images, url)
	return r
}

// WithQuote marks the reply as quoting its source.
func (r *Reply) WithQuote() *Reply {
	r.Quote = true
	return r
}

// Empty reports whether the reply carries nothing to send.
func (r *Reply) Empty() bool {
	return r == nil || (r.Text == "" && len(r.Images) == 0)
}

// Receipt identifies one platform message created by sending a Reply.
type Receipt struct {
	MessageID string
	TargetID  string
	Raw       json.RawMessage
}
