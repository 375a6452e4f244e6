// ABOUTME: Converts KOOK gateway events into canonical messages and events
// ABOUTME: Resolves quotes recursively and reads admin roles through the role cache

package kook

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/2389/coven-bot/internal/message"
)

// maxQuoteDepth bounds quote resolution.
const maxQuoteDepth = 3

var (
	mentionTag = regexp.MustCompile(`\(met\)([^()]+?)\(met\)`)
	roleTag    = regexp.MustCompile(`\(rol\)(\d+)\(rol\)`)
	channelTag = regexp.MustCompile(`\(chn\)(\d+)\(chn\)`)
	emojiTag   = regexp.MustCompile(`\(emj\)([^()]*?)\(emj\)\[([^\]]+)\]`)
)

// PackageMessage converts a dispatch payload.
func (a *Adapter) PackageMessage(ctx context.Context, eventName string, payload json.RawMessage) (message.Inbound, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode kook event: %w", err)
	}
	return a.packageEvent(ctx, &ev, payload, 0)
}

// packageEvent packages ev. depth is zero for live messages and counts
// quote levels during reference resolution.
func (a *Adapter) packageEvent(ctx context.Context, ev *Event, raw json.RawMessage, depth int) (message.Inbound, error) {
	if ev.Type == TypeSystem {
		return &message.Event{
			Platform: Platform,
			Name:     ev.Extra.SystemType(),
			Data:     raw,
		}, nil
	}

	author := ev.Extra.Author
	if author.Bot && depth == 0 {
		return nil, nil
	}

	msg := &message.Message{
		Platform:     Platform,
		MessageID:    ev.MsgID,
		UserID:       ev.AuthorID,
		GuildID:      ev.Extra.GuildID,
		SrcGuildID:   ev.Extra.GuildID,
		ChannelID:    ev.TargetID,
		Nickname:     author.DisplayName(),
		Avatar:       author.Avatar,
		TextOriginal: ev.Content,
		IsDirect:     ev.ChannelType == ChannelPerson,
		Raw:          raw,
	}
	if msg.UserID == "" {
		msg.UserID = author.ID
	}
	if ev.MsgTimestamp > 0 {
		msg.Time = time.UnixMilli(ev.MsgTimestamp)
	}

	if msg.IsDirect {
		// target_id of a direct message is the bot itself.
		msg.ChannelID = ""
	} else if depth == 0 && !a.channelResolves(ctx, msg.ChannelID) {
		a.logger.Debug("dropping message for unresolvable channel", "channel_id", msg.ChannelID, "msg_id", msg.MessageID)
		return nil, nil
	}

	if depth == 0 && msg.GuildID != "" && len(author.Roles) > 0 {
		perms := a.roles.Permissions(ctx, msg.GuildID, author.Roles)
		msg.IsAdmin = perms&PermAdministrator != 0
	}

	switch ev.Type {
	case TypeImage:
		msg.Images = append(msg.Images, ev.Content)
		msg.TextOriginal = ""
	case TypeText, TypeKMarkdown:
		a.parseContent(msg, ev)
	}
	if att := ev.Extra.Attachments; att != nil && att.Type == "image" && att.URL != "" && !slices.Contains(msg.Images, att.URL) {
		msg.Images = append(msg.Images, att.URL)
	}

	if q := ev.Extra.Quote; q != nil && depth < maxQuoteDepth {
		a.mergeQuote(ctx, msg, q, depth)
	}
	return msg, nil
}

// parseContent fills text, mentions and faces from a text or kmarkdown body.
func (a *Adapter) parseContent(msg *message.Message, ev *Event) {
	self := a.SelfID()
	mentioned := slices.Clone(ev.Extra.Mention)
	for _, m := range mentionTag.FindAllStringSubmatch(ev.Content, -1) {
		if !slices.Contains(mentioned, m[1]) {
			mentioned = append(mentioned, m[1])
		}
	}

	for _, id := range mentioned {
		switch {
		case id == "all" || id == "here":
			msg.IsAtAll = true
		case self != "" && id == self:
			msg.IsAt = true
		default:
			msg.AtTargets = append(msg.AtTargets, id)
		}
	}
	if ev.Extra.MentionAll || ev.Extra.MentionHere {
		msg.IsAtAll = true
	}

	text := ev.Content
	for _, m := range emojiTag.FindAllStringSubmatch(text, -1) {
		msg.Faces = append(msg.Faces, m[2])
	}
	text = emojiTag.ReplaceAllString(text, "")
	text = mentionTag.ReplaceAllString(text, "")
	text = roleTag.ReplaceAllString(text, "")
	text = channelTag.ReplaceAllString(text, "")
	msg.Text = strings.TrimSpace(text)
}

// mergeQuote resolves a quoted message and appends its images.
func (a *Adapter) mergeQuote(ctx context.Context, msg *message.Message, q *Quote, depth int) {
	id := q.MessageID()
	if id == "" {
		return
	}
	viewed, err := a.client.MessageView(ctx, id)
	if err != nil {
		a.logger.Debug("quote lookup failed", "quote_id", id, "error", err)
		return
	}
	ref, err := a.packageEvent(ctx, viewed.event(msg.ChannelID, msg.GuildID), nil, depth+1)
	if err != nil {
		return
	}
	if refMsg, ok := ref.(*message.Message); ok {
		msg.Images = append(msg.Images, refMsg.Images...)
	}
}

// channelResolves reports whether /channel/view still finds the channel.
// Successful lookups are cached for the role cache TTL.
func (a *Adapter) channelResolves(ctx context.Context, channelID string) bool {
	if channelID == "" {
		return false
	}
	if _, ok := a.channels.Get(channelID); ok {
		return true
	}
	if _, err := a.client.ChannelView(ctx, channelID); err != nil {
		a.logger.Debug("channel lookup failed", "channel_id", channelID, "error", err)
		return false
	}
	a.channels.Set(channelID, struct{}{})
	return true
}
