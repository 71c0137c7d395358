// Package protocol implements the wire messages exchanged over the
// rendezvous socket: ApprovalRequest, Command, and ApprovalResponse.
//
// Encoding is hand-written tagged-field, optional-presence encoding using
// google.golang.org/protobuf/encoding/protowire — the same low-level
// varint/tag primitives a generated .pb.go would use — rather than a
// generated message, since no protoc invocation is available in this
// environment. Field numbers are fixed and must never be reassigned, so the
// bytes on the wire stay compatible with anything generated from a .proto
// carrying the same schema.
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxReplySize bounds a single ApprovalResponse read, so a misbehaving or
// malicious peer can't force an unbounded read off the rendezvous socket.
const MaxReplySize = 40960

// Command mirrors the wire message of the same name.
type Command struct {
	Cwd     string
	Command string
	Args    []string
	Environ []string
}

// ApprovalRequest mirrors the wire message of the same name.
type ApprovalRequest struct {
	ID            string
	Host          string
	User          string
	Command       Command
	Justification string
	// Edit is reserved; never populated by this implementation.
}

// ApprovalResponse mirrors the wire message of the same name. Approved and
// HasApproved distinguish "false" from "field absent": a response with
// approved absent is a protocol error, not an implicit rejection, so the
// two cases must stay distinguishable after decode.
type ApprovalResponse struct {
	ID         string
	Approved   bool
	HasApproved bool
	Comment    string
}

const (
	fieldRequestID            = 1
	fieldRequestHost          = 2
	fieldRequestUser          = 3
	fieldRequestCommand       = 4
	fieldRequestJustification = 5

	fieldCommandCwd     = 1
	fieldCommandCommand = 2
	fieldCommandArgs    = 3
	fieldCommandEnviron = 4

	fieldResponseID       = 1
	fieldResponseApproved = 2
	fieldResponseComment  = 3
)

// MarshalRequest encodes req using protobuf v2 tagged-field wire format.
func MarshalRequest(req *ApprovalRequest) []byte {
	var b []byte
	b = appendString(b, fieldRequestID, req.ID)
	b = appendString(b, fieldRequestHost, req.Host)
	b = appendString(b, fieldRequestUser, req.User)
	b = appendEmbeddedMessage(b, fieldRequestCommand, marshalCommand(&req.Command))
	if req.Justification != "" {
		b = appendString(b, fieldRequestJustification, req.Justification)
	}
	return b
}

func marshalCommand(c *Command) []byte {
	var b []byte
	b = appendString(b, fieldCommandCwd, c.Cwd)
	b = appendString(b, fieldCommandCommand, c.Command)
	for _, a := range c.Args {
		b = appendString(b, fieldCommandArgs, a)
	}
	for _, e := range c.Environ {
		b = appendString(b, fieldCommandEnviron, e)
	}
	return b
}

// UnmarshalRequest decodes an ApprovalRequest. Unknown fields are skipped,
// not rejected, so a newer sender's request still decodes on an older
// approver build instead of failing the whole handshake.
func UnmarshalRequest(data []byte) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("protocol.UnmarshalRequest: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldRequestID:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalRequest: id: %w", err)
			}
			req.ID, data = s, data[m:]
		case fieldRequestHost:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalRequest: host: %w", err)
			}
			req.Host, data = s, data[m:]
		case fieldRequestUser:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalRequest: user: %w", err)
			}
			req.User, data = s, data[m:]
		case fieldRequestCommand:
			raw, m, err := consumeBytes(data, typ)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalRequest: command: %w", err)
			}
			cmd, err := unmarshalCommand(raw)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalRequest: command: %w", err)
			}
			req.Command, data = *cmd, data[m:]
		case fieldRequestJustification:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalRequest: justification: %w", err)
			}
			req.Justification, data = s, data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("protocol.UnmarshalRequest: skip unknown field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return req, nil
}

func unmarshalCommand(data []byte) (*Command, error) {
	c := &Command{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldCommandCwd:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("cwd: %w", err)
			}
			c.Cwd, data = s, data[m:]
		case fieldCommandCommand:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("command: %w", err)
			}
			c.Command, data = s, data[m:]
		case fieldCommandArgs:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("args: %w", err)
			}
			c.Args, data = append(c.Args, s), data[m:]
		case fieldCommandEnviron:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("environ: %w", err)
			}
			c.Environ, data = append(c.Environ, s), data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("skip unknown field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return c, nil
}

// MarshalResponse encodes resp.
func MarshalResponse(resp *ApprovalResponse) []byte {
	var b []byte
	if resp.ID != "" {
		b = appendString(b, fieldResponseID, resp.ID)
	}
	if resp.HasApproved {
		b = protowire.AppendTag(b, fieldResponseApproved, protowire.VarintType)
		b = protowire.AppendVarint(b, boolToVarint(resp.Approved))
	}
	if resp.Comment != "" {
		b = appendString(b, fieldResponseComment, resp.Comment)
	}
	return b
}

// UnmarshalResponse decodes an ApprovalResponse. Unknown fields are
// ignored, for the same forward-compatibility reason UnmarshalRequest
// ignores them.
func UnmarshalResponse(data []byte) (*ApprovalResponse, error) {
	resp := &ApprovalResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("protocol.UnmarshalResponse: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldResponseID:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalResponse: id: %w", err)
			}
			resp.ID, data = s, data[m:]
		case fieldResponseApproved:
			if typ != protowire.VarintType {
				return nil, fmt.Errorf("protocol.UnmarshalResponse: approved: unexpected wire type %v", typ)
			}
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("protocol.UnmarshalResponse: approved: %w", protowire.ParseError(m))
			}
			resp.Approved, resp.HasApproved, data = v != 0, true, data[m:]
		case fieldResponseComment:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, fmt.Errorf("protocol.UnmarshalResponse: comment: %w", err)
			}
			resp.Comment, data = s, data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("protocol.UnmarshalResponse: skip unknown field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return resp, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendEmbeddedMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("unexpected wire type %v", typ)
	}
	v, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %v", typ)
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
