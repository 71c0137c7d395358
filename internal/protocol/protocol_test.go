package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &ApprovalRequest{
		ID:   "abcdEFGH01234567",
		Host: "box1",
		User: "alice",
		Command: Command{
			Cwd:     "/home/alice",
			Command: "whoami",
			Args:    []string{"whoami"},
			Environ: nil,
		},
		Justification: "need to check something",
	}

	data := MarshalRequest(req)
	got, err := UnmarshalRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Host, got.Host)
	assert.Equal(t, req.User, got.User)
	assert.Equal(t, req.Command.Cwd, got.Command.Cwd)
	assert.Equal(t, req.Command.Command, got.Command.Command)
	assert.Equal(t, req.Command.Args, got.Command.Args)
	assert.Equal(t, req.Justification, got.Justification)
}

func TestRequestRoundTripEmptyOptionalFields(t *testing.T) {
	req := &ApprovalRequest{
		ID:   "x",
		Host: "box1",
		User: "alice",
		Command: Command{
			Command: "ls",
			Args:    []string{"ls"},
		},
	}
	data := MarshalRequest(req)
	got, err := UnmarshalRequest(data)
	require.NoError(t, err)
	assert.Equal(t, "", got.Justification)
}

func TestResponseRoundTripApprovedTrue(t *testing.T) {
	resp := &ApprovalResponse{ID: "x", Approved: true, HasApproved: true}
	data := MarshalResponse(resp)
	got, err := UnmarshalResponse(data)
	require.NoError(t, err)
	assert.True(t, got.HasApproved)
	assert.True(t, got.Approved)
	assert.Equal(t, "", got.Comment)
}

func TestResponseRoundTripApprovedFalseWithComment(t *testing.T) {
	resp := &ApprovalResponse{Approved: false, HasApproved: true, Comment: "wrong window"}
	data := MarshalResponse(resp)
	got, err := UnmarshalResponse(data)
	require.NoError(t, err)
	assert.True(t, got.HasApproved)
	assert.False(t, got.Approved)
	assert.Equal(t, "wrong window", got.Comment)
}

// A response with approved absent must decode with HasApproved=false, so
// the handshake layer can distinguish "null response" from "approved=false".
func TestResponseAbsentApprovedIsDistinguishable(t *testing.T) {
	resp := &ApprovalResponse{Comment: "still thinking"}
	data := MarshalResponse(resp)
	got, err := UnmarshalResponse(data)
	require.NoError(t, err)
	assert.False(t, got.HasApproved)
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// Hand-craft a response with an unknown field 99 (varint) prepended.
	var extra []byte
	extra = append(extra, MarshalResponse(&ApprovalResponse{Approved: true, HasApproved: true})...)
	// append an unknown varint field, tag = (99 << 3) | 0
	extra = appendUnknownVarintField(extra, 99, 7)

	got, err := UnmarshalResponse(extra)
	require.NoError(t, err)
	assert.True(t, got.HasApproved)
	assert.True(t, got.Approved)
}

func appendUnknownVarintField(b []byte, field int, value uint64) []byte {
	tag := uint64(field)<<3 | 0
	b = appendVarint(b, tag)
	b = appendVarint(b, value)
	return b
}

func appendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}
