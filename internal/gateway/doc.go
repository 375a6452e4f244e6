// Package gateway maintains the persistent websocket connection to a chat
// platform.
//
// # Overview
//
// A Session owns one socket at a time and drives it through the lifecycle
//
//	Disconnected -> Connecting -> AwaitingHello -> Steady -> Closing
//
// Every inbound frame is decoded, its sequence number recorded, and dispatch
// frames are handed to the caller's FrameHandler on their own goroutine so a
// slow handler never stalls the read loop or heartbeat delivery.
//
// # Frames
//
// Frames are JSON objects with four fields:
//
//	{ "s": 0, "d": {...}, "sn": 42, "extra": {...} }
//
// Opcodes:
//
//   - 0 dispatch: d is an event delivered to the FrameHandler
//   - 1 hello: d carries {code, session_id}; non-zero code rejects the socket
//   - 2 heartbeat: client to server, carries the last sequence
//   - 3 heartbeat ack
//   - 4 resume: client sends {s:4, sn:last} after hello when a sequence exists
//   - 5 reconnect: server asks for a fresh connection; cached state is dropped
//   - 6 resume ack: informational
//
// Any frame with a non-null sn overwrites the stored sequence before the
// opcode is handled. There is no out-of-order protection: the last write wins.
//
// # Heartbeats
//
// On entering Steady the HeartbeatMonitor sends a beat every
// HeartbeatInterval and starts a watchdog per beat. If the ack has not
// arrived within AckTimeout the watchdog forces the socket closed and the
// outer loop reconnects.
//
// # Reconnects
//
// Any failure ends the current attempt: transport errors, malformed frames,
// handshake rejection, a reconnect request, or a heartbeat timeout. The
// session then sleeps RetryDelay and tries again. Handshake rejection and
// reconnect requests clear the cached gateway URL, sequence and session id
// so the next attempt re-resolves the endpoint.
//
// When a CheckpointStore is configured the sequence, session id and URL are
// loaded before the first attempt and saved after every attempt, so a
// restarted process can still resume.
//
// # Shutdown
//
// Close stops the loop, closes the socket, wakes any retry sleep, waits for
// the run loop to exit and then waits for in-flight handlers. If the close
// context expires first, the handlers' context is cancelled.
//
// # Key Files
//
//   - frame.go: frame codec and opcodes
//   - sequence.go: SequenceStore
//   - heartbeat.go: HeartbeatMonitor
//   - session.go: Session state machine and outer loop
//   - transport.go: Dialer/Conn abstraction and the gorilla/websocket dialer
//   - errors.go: error values
package gateway
