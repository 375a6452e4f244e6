// ABOUTME: Package matrix adapts a Matrix homeserver account to the bot runtime
// ABOUTME: Built on mautrix for sync and the client-server API, goldmark for HTML replies

// Package matrix implements adapter.Adapter for Matrix.
//
// Connect runs the mautrix sync loop. Each m.room.message event is flattened
// into a small JSON payload and handed to the frame handler under the event
// name "m.room.message"; PackageMessage turns that payload back into a
// canonical message.
//
// Packaging rules:
//   - messages from the bot's own user, and from configured ignore users, are
//     dropped
//   - the room must list the bot among its joined members; lookups are cached
//     for MemberCacheTTL
//   - a room with exactly two joined members is treated as a direct chat
//   - the admin flag comes from the configured admin user list
//   - m.in_reply_to is resolved with GetEvent and the referenced images merged
//
// Replies are rendered from markdown with goldmark into
// org.matrix.custom.html. Images are sent as separate m.image events and
// recall redacts the event.
package matrix
