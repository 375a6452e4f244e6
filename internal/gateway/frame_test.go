// ABOUTME: Tests for gateway frame decoding and the client frames we emit
// ABOUTME: Malformed input must wrap ErrMalformedFrame

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		op      Opcode
		sn      *uint64
		hasData bool
	}{
		{name: "dispatch with sn", raw: `{"s":0,"d":{"type":1},"sn":42}`, op: OpDispatch, sn: ptr(42), hasData: true},
		{name: "hello", raw: `{"s":1,"d":{"code":0,"session_id":"x"}}`, op: OpHello, hasData: true},
		{name: "ack without payload", raw: `{"s":3}`, op: OpHeartbeatAck},
		{name: "null payload", raw: `{"s":3,"d":null,"sn":null}`, op: OpHeartbeatAck},
		{name: "zero sn is present", raw: `{"s":6,"sn":0}`, op: OpResumeAck, sn: ptr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.op, f.S)
			assert.Equal(t, tt.sn, f.SN)
			assert.Equal(t, tt.hasData, len(f.D) > 0)
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, raw := range []string{`{not json`, `[]`, `{"s":"zero"}`, ``} {
		_, err := DecodeFrame([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestFrame_Hello(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"s":1,"d":{"code":40103,"session_id":""}}`))
	require.NoError(t, err)
	h, err := f.Hello()
	require.NoError(t, err)
	assert.Equal(t, 40103, h.Code)

	f, err = DecodeFrame([]byte(`{"s":1}`))
	require.NoError(t, err)
	_, err = f.Hello()
	assert.ErrorIs(t, err, ErrMalformedFrame)

	f, err = DecodeFrame([]byte(`{"s":1,"d":"nope"}`))
	require.NoError(t, err)
	_, err = f.Hello()
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestClientFrames(t *testing.T) {
	data, err := ResumeFrame(9).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":4,"sn":9}`, string(data))

	data, err = HeartbeatFrame(0).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":2,"sn":0}`, string(data), "zero sequence is still sent")
}

func ptr(v uint64) *uint64 { return &v }
