// Package kook implements the KOOK chat platform adapter.
//
// # Connection
//
// Connect fetches the bot identity from /user/me, then runs a
// gateway.Session whose endpoint comes from /gateway/index?compress=0.
// KOOK's websocket protocol is the {s, d, sn, extra} frame protocol the
// gateway package speaks natively.
//
// # REST
//
// Client wraps the v3 REST API at https://www.kookapp.cn/api/v3. Every
// request carries "Authorization: Bot <token>" and is paced by a token
// bucket. Responses use the envelope
//
//	{"code": 0, "message": "", "data": {...}}
//
// and a non-zero code becomes an *adapter.APIError.
//
// # Packaging
//
//   - type 255 system messages become events named by extra.type
//   - bot authors are dropped unless the message is being resolved as a quote
//   - channel messages are dropped when /channel/view no longer resolves
//   - the admin flag is the administrator bit of the author's guild roles,
//     read through a rolecache.Cache
//   - (met)id(met) mention tags are stripped; a mention of the bot sets IsAt
//   - (emj)name(emj)[id] emoji are collected into Faces
//   - quoted messages are fetched with /message/view, packaged recursively
//     and their images appended to the quoting message
package kook
