// ABOUTME: Gateway frame codec and opcode definitions
// ABOUTME: Frames are {s, d, sn, extra} JSON objects

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Opcode identifies the meaning of a frame.
type Opcode int

const (
	OpDispatch Opcode = iota
	OpHello
	OpHeartbeat
	OpHeartbeatAck
	OpResume
	OpReconnect
	OpResumeAck
)

func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "dispatch"
	case OpHello:
		return "hello"
	case OpHeartbeat:
		return "heartbeat"
	case OpHeartbeatAck:
		return "heartbeat_ack"
	case OpResume:
		return "resume"
	case OpReconnect:
		return "reconnect"
	case OpResumeAck:
		return "resume_ack"
	default:
		return fmt.Sprintf("opcode(%d)", int(o))
	}
}

// Frame is one gateway message in either direction.
type Frame struct {
	S     Opcode          `json:"s"`
	D     json.RawMessage `json:"d,omitempty"`
	SN    *uint64         `json:"sn,omitempty"`
	Extra json.RawMessage `json:"extra,omitempty"`
}

// Hello is the payload of an OpHello frame.
type Hello struct {
	Code      int    `json:"code"`
	SessionID string `json:"session_id"`
}

var jsonNull = []byte("null")

// DecodeFrame parses a frame. Errors wrap ErrMalformedFrame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if bytes.Equal(f.D, jsonNull) {
		f.D = nil
	}
	if bytes.Equal(f.Extra, jsonNull) {
		f.Extra = nil
	}
	return &f, nil
}

// Encode serializes the frame.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Hello decodes the frame payload as a hello. A hello without a payload
// is malformed.
func (f *Frame) Hello() (*Hello, error) {
	if len(f.D) == 0 {
		return nil, fmt.Errorf("%w: hello without payload", ErrMalformedFrame)
	}
	var h Hello
	if err := json.Unmarshal(f.D, &h); err != nil {
		return nil, fmt.Errorf("%w: hello payload: %v", ErrMalformedFrame, err)
	}
	return &h, nil
}

// HeartbeatFrame builds a client heartbeat carrying sn.
func HeartbeatFrame(sn uint64) *Frame {
	return &Frame{S: OpHeartbeat, SN: &sn}
}

// ResumeFrame builds a resume request carrying sn.
func ResumeFrame(sn uint64) *Frame {
	return &Frame{S: OpResume, SN: &sn}
}
