// ABOUTME: KOOK wire types for gateway events and REST payloads
// ABOUTME: Field names follow the KOOK v3 API

package kook

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Platform is the adapter name.
const Platform = "kook"

// Message types.
const (
	TypeText      = 1
	TypeImage     = 2
	TypeVideo     = 3
	TypeFile      = 4
	TypeAudio     = 8
	TypeKMarkdown = 9
	TypeCard      = 10
	TypeSystem    = 255
)

// Channel types of an event.
const (
	ChannelGroup  = "GROUP"
	ChannelPerson = "PERSON"
)

// PermAdministrator is the administrator permission bit of a guild role.
const PermAdministrator = 1

// User is a KOOK user as embedded in events and returned by /user/me.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Bot      bool   `json:"bot"`
	Roles    []int  `json:"roles"`
}

// DisplayName returns the guild nickname, falling back to the username.
func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// Event is the d payload of a dispatch frame.
type Event struct {
	ChannelType  string `json:"channel_type"`
	Type         int    `json:"type"`
	TargetID     string `json:"target_id"`
	AuthorID     string `json:"author_id"`
	Content      string `json:"content"`
	MsgID        string `json:"msg_id"`
	MsgTimestamp int64  `json:"msg_timestamp"`
	Nonce        string `json:"nonce"`
	Extra        Extra  `json:"extra"`
}

// Extra carries type-specific event fields.
type Extra struct {
	// Type is a number for messages and a string for system events.
	Type        json.RawMessage `json:"type"`
	GuildID     string          `json:"guild_id"`
	ChannelName string          `json:"channel_name"`
	Mention     []string        `json:"mention"`
	MentionAll  bool            `json:"mention_all"`
	MentionHere bool            `json:"mention_here"`
	Author      User            `json:"author"`
	Quote       *Quote          `json:"quote"`
	Attachments *Attachment     `json:"attachments"`
	Body        json.RawMessage `json:"body"`
}

// SystemType returns the system event name carried in extra.type.
func (e Extra) SystemType() string {
	var s string
	if err := json.Unmarshal(e.Type, &s); err == nil {
		return s
	}
	var n int
	if err := json.Unmarshal(e.Type, &n); err == nil {
		return strconv.Itoa(n)
	}
	return strings.TrimSpace(string(e.Type))
}

// Quote is a quoted message reference.
type Quote struct {
	ID      string `json:"id"`
	RongID  string `json:"rong_id"`
	Type    int    `json:"type"`
	Content string `json:"content"`
	Author  User   `json:"author"`
}

// MessageID returns the id usable with /message/view.
func (q *Quote) MessageID() string {
	if q.RongID != "" {
		return q.RongID
	}
	return q.ID
}

// Attachment is a file attached to a message.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ViewedMessage is the data of /message/view.
type ViewedMessage struct {
	ID          string      `json:"id"`
	Type        int         `json:"type"`
	Author      User        `json:"author"`
	Content     string      `json:"content"`
	Mention     []string    `json:"mention"`
	MentionAll  bool        `json:"mention_all"`
	MentionHere bool        `json:"mention_here"`
	Attachments *Attachment `json:"attachments"`
	Quote       *Quote      `json:"quote"`
	CreateAt    int64       `json:"create_at"`
	ChannelID   string      `json:"channel_id"`
}

// event reshapes a viewed message into a gateway event for packaging.
func (v *ViewedMessage) event(channelID, guildID string) *Event {
	if v.ChannelID != "" {
		channelID = v.ChannelID
	}
	return &Event{
		ChannelType:  ChannelGroup,
		Type:         v.Type,
		TargetID:     channelID,
		AuthorID:     v.Author.ID,
		Content:      v.Content,
		MsgID:        v.ID,
		MsgTimestamp: v.CreateAt,
		Extra: Extra{
			Type:        json.RawMessage(strconv.Itoa(v.Type)),
			GuildID:     guildID,
			Mention:     v.Mention,
			MentionAll:  v.MentionAll,
			MentionHere: v.MentionHere,
			Author:      v.Author,
			Quote:       v.Quote,
			Attachments: v.Attachments,
		},
	}
}

// Channel is the data of /channel/view.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GuildID string `json:"guild_id"`
	Type    int    `json:"type"`
}

// CreateMessageRequest is the body of /message/create and /direct-message/create.
type CreateMessageRequest struct {
	Type     int    `json:"type"`
	TargetID string `json:"target_id"`
	Content  string `json:"content"`
	Quote    string `json:"quote,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
}

// CreateMessageResult is the data returned when a message is created.
type CreateMessageResult struct {
	MsgID        string `json:"msg_id"`
	MsgTimestamp int64  `json:"msg_timestamp"`
	Nonce        string `json:"nonce"`
}
