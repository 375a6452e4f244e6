// ABOUTME: Converts forwarded Matrix room events into canonical messages
// ABOUTME: Confirms room membership, detects direct rooms and resolves replies

package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-bot/internal/message"
)

// maxReplyDepth bounds m.in_reply_to resolution.
const maxReplyDepth = 3

// PackageMessage converts a forwarded room event. Other event names become
// canonical events.
func (a *Adapter) PackageMessage(ctx context.Context, eventName string, payload json.RawMessage) (message.Inbound, error) {
	if eventName != EventRoomMessage {
		return &message.Event{Platform: Platform, Name: eventName, Data: payload}, nil
	}
	var re roomEvent
	if err := json.Unmarshal(payload, &re); err != nil {
		return nil, fmt.Errorf("decode matrix event: %w", err)
	}
	return a.packageEvent(ctx, &re, payload, 0)
}

func (a *Adapter) packageEvent(ctx context.Context, re *roomEvent, raw json.RawMessage, depth int) (message.Inbound, error) {
	sender := id.UserID(re.Sender)
	if depth == 0 && a.ignored(sender) {
		return nil, nil
	}

	var content event.MessageEventContent
	if err := json.Unmarshal(re.Content, &content); err != nil {
		return nil, fmt.Errorf("decode matrix content: %w", err)
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		// Edits are delivered again as a new event.
		return nil, nil
	}

	room := id.RoomID(re.RoomID)
	msg := &message.Message{
		Platform:     Platform,
		MessageID:    re.ID,
		UserID:       re.Sender,
		ChannelID:    re.RoomID,
		GuildID:      re.RoomID,
		SrcGuildID:   re.RoomID,
		Nickname:     sender.Localpart(),
		TextOriginal: content.Body,
		IsAdmin:      a.isAdmin(sender),
		Raw:          raw,
	}
	if re.Timestamp > 0 {
		msg.Time = time.UnixMilli(re.Timestamp)
	}

	if depth == 0 {
		members, ok := a.roomMembers(ctx, room)
		if !ok || !slices.Contains(members, a.self) {
			a.logger.Debug("dropping message for unconfirmed room", "room", re.RoomID, "event_id", re.ID)
			return nil, nil
		}
		msg.IsDirect = len(members) == 2
	}

	switch content.MsgType {
	case event.MsgImage:
		if content.URL != "" {
			msg.Images = append(msg.Images, string(content.URL))
		}
	case event.MsgText, event.MsgNotice, event.MsgEmote:
		a.parseBody(msg, &content)
	default:
		if depth == 0 {
			return nil, nil
		}
	}

	if reply := replyTo(&content); reply != "" && depth < maxReplyDepth {
		a.mergeReply(ctx, msg, room, reply, depth)
	}
	return msg, nil
}

// parseBody fills text and mentions. Reply fallbacks ("> " lines) are removed.
func (a *Adapter) parseBody(msg *message.Message, content *event.MessageEventContent) {
	if m := content.Mentions; m != nil {
		msg.IsAtAll = m.Room
		for _, uid := range m.UserIDs {
			if uid == a.self {
				msg.IsAt = true
				continue
			}
			msg.AtTargets = append(msg.AtTargets, uid.String())
		}
	}

	var lines []string
	for _, line := range strings.Split(content.Body, "\n") {
		if strings.HasPrefix(line, "> ") || line == ">" {
			continue
		}
		lines = append(lines, line)
	}
	text := strings.Join(lines, "\n")

	self := a.self.String()
	if self != "" && strings.Contains(text, self) {
		msg.IsAt = true
		text = strings.ReplaceAll(text, self, "")
	}
	if name := a.self.Localpart(); name != "" && strings.HasPrefix(text, name+": ") {
		msg.IsAt = true
		text = strings.TrimPrefix(text, name+": ")
	}
	if strings.Contains(text, "@room") {
		msg.IsAtAll = true
	}
	msg.Text = strings.TrimSpace(text)
}

func replyTo(content *event.MessageEventContent) id.EventID {
	if content.RelatesTo == nil || content.RelatesTo.InReplyTo == nil {
		return ""
	}
	return content.RelatesTo.InReplyTo.EventID
}

// mergeReply fetches the replied-to event and appends its images.
func (a *Adapter) mergeReply(ctx context.Context, msg *message.Message, room id.RoomID, eventID id.EventID, depth int) {
	evt, err := a.client.GetEvent(ctx, room, eventID)
	if err != nil {
		a.logger.Debug("reply lookup failed", "event_id", eventID, "error", apiError(err, "event"))
		return
	}
	payload, err := encodeEvent(evt)
	if err != nil {
		return
	}
	var re roomEvent
	if err := json.Unmarshal(payload, &re); err != nil {
		return
	}
	if re.RoomID == "" {
		re.RoomID = room.String()
	}
	ref, err := a.packageEvent(ctx, &re, nil, depth+1)
	if err != nil {
		return
	}
	if refMsg, ok := ref.(*message.Message); ok {
		msg.Images = append(msg.Images, refMsg.Images...)
	}
}

// roomMembers returns the joined members of room, cached for MemberCacheTTL.
func (a *Adapter) roomMembers(ctx context.Context, room id.RoomID) ([]id.UserID, bool) {
	if room == "" {
		return nil, false
	}
	if members, ok := a.members.Get(room); ok {
		return members, true
	}
	resp, err := a.client.JoinedMembers(ctx, room)
	if err != nil {
		a.logger.Debug("joined members lookup failed", "room", room, "error", apiError(err, "joined_members"))
		return nil, false
	}
	members := make([]id.UserID, 0, len(resp.Joined))
	for uid := range resp.Joined {
		members = append(members, uid)
	}
	slices.Sort(members)
	a.members.Set(room, members)
	return members, true
}
