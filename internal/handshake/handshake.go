//go:build linux

// Package handshake runs the approver side of one rendezvous connection:
// verify the peer is an approver, send the request, read at most one
// bounded reply, and interpret the verdict.
//
// State machine of one connection:
//
//	ACCEPTED → CRED_CHECKED → REQUEST_SENT → REPLY_READ → {APPROVED, REJECTED, ERROR}
//
// Per-connection failures are the caller's to log; they must never
// terminate the accept loop — a probe from an unrelated user, or a broken
// approver client, shouldn't be able to wedge the whole invocation.
package handshake

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/localauth/sim/internal/protocol"
)

// State is one step of the per-connection state machine.
type State uint8

const (
	StateAccepted State = iota
	StateCredChecked
	StateRequestSent
	StateReplyRead
	StateApproved
	StateRejected
	StateError
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "ACCEPTED"
	case StateCredChecked:
		return "CRED_CHECKED"
	case StateRequestSent:
		return "REQUEST_SENT"
	case StateReplyRead:
		return "REPLY_READ"
	case StateApproved:
		return "APPROVED"
	case StateRejected:
		return "REJECTED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// IsTerminal reports whether s is one of the three states that end a
// connection's handshake.
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected || s == StateError
}

// Result is the outcome of one connection's handshake attempt.
type Result struct {
	State   State
	Reason  string // populated for StateRejected / StateError
	PeerUID uint32
}

// Approved reports whether this connection's handshake ended in approval.
// Only this outcome should ever cause the orchestrator's accept loop to
// stop and proceed to exec.
func (r Result) Approved() bool {
	return r.State == StateApproved
}

// groupMembers resolves a uid's full group membership: primary plus every
// supplementary group, since a user granted approver rights only via a
// supplementary group must still be recognized as an approver. A package
// variable so tests can substitute the system group database.
var groupMembers = func(uid uint32) ([]string, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, fmt.Errorf("lookup uid %d: %w", uid, err)
	}
	gids, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("list groups for uid %d: %w", uid, err)
	}
	return gids, nil
}

// peerCredentials reads {pid, uid, gid} for the peer of an accepted
// SOCK_SEQPACKET connection via SO_PEERCRED. This is the only source of
// peer identity the handshake trusts: an approver's own claims about who
// they are, sent over the socket, are never trusted in their place.
var peerCredentials = func(connFD int) (uid, gid uint32, err error) {
	ucred, err := unix.GetsockoptUcred(connFD, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0, fmt.Errorf("SO_PEERCRED: %w", err)
	}
	return uint32(ucred.Uid), uint32(ucred.Gid), nil
}

// Run executes one connection's handshake to completion. connFD is the
// accepted connection's file descriptor; the caller owns closing it.
func Run(connFD int, approverGID uint32, invokerUID uint32, req *protocol.ApprovalRequest) Result {
	state := StateAccepted

	// Identity comes only from the kernel, never from the peer itself.
	peerUID, peerGID, err := peerCredentials(connFD)
	if err != nil {
		return Result{State: StateError, Reason: fmt.Sprintf("peer credentials: %v", err)}
	}

	if peerUID == invokerUID {
		// The invoker must not be able to approve their own request —
		// otherwise MPA collapses into self-approval.
		return Result{State: StateError, PeerUID: peerUID, Reason: "invoker cannot approve their own request"}
	}

	isApprover, err := isInGroup(peerUID, peerGID, approverGID)
	if err != nil {
		// An approver-group lookup that fails must reject the connection,
		// not default to treating the peer as an approver.
		return Result{State: StateError, PeerUID: peerUID, Reason: fmt.Sprintf("group expansion: %v", err)}
	}
	if !isApprover {
		// Return before any bytes of the request are written: sending
		// first and checking membership after would leak the request's
		// contents to a connection that turns out not to be an approver.
		return Result{State: StateRejected, PeerUID: peerUID, Reason: "peer is not in approve_group"}
	}
	state = StateCredChecked

	// The request goes out in exactly one send so the approver reads it as
	// a single seqpacket message rather than reassembling a stream.
	payload := protocol.MarshalRequest(req)
	n, err := unix.Write(connFD, payload)
	if err != nil {
		return Result{State: StateError, PeerUID: peerUID, Reason: fmt.Sprintf("send request: %v", err)}
	}
	if n != len(payload) {
		// SOCK_SEQPACKET preserves message boundaries, so a short write
		// means something is already wrong with the connection; there is
		// no partial-send retry that makes sense here.
		return Result{State: StateError, PeerUID: peerUID, Reason: fmt.Sprintf("short write: sent %d of %d bytes", n, len(payload))}
	}
	state = StateRequestSent
	_ = state

	// At most one bounded reply is ever read back.
	buf := make([]byte, protocol.MaxReplySize)
	rn, err := unix.Read(connFD, buf)
	if err != nil {
		return Result{State: StateError, PeerUID: peerUID, Reason: fmt.Sprintf("read reply: %v", err)}
	}
	resp, err := protocol.UnmarshalResponse(buf[:rn])
	if err != nil {
		return Result{State: StateError, PeerUID: peerUID, Reason: fmt.Sprintf("parse reply: %v", err)}
	}
	state = StateReplyRead
	_ = state

	if resp.Comment != "" {
		return Result{State: StateRejected, PeerUID: peerUID, Reason: resp.Comment}
	}
	if !resp.HasApproved {
		return Result{State: StateError, PeerUID: peerUID, Reason: "null response"}
	}
	if !resp.Approved {
		return Result{State: StateRejected, PeerUID: peerUID, Reason: "rejected"}
	}
	return Result{State: StateApproved, PeerUID: peerUID}
}

// isInGroup reports whether approverGID appears in the peer's full group
// expansion: primary gid (from SO_PEERCRED) plus supplementary groups from
// the system database.
func isInGroup(peerUID, peerPrimaryGID, approverGID uint32) (bool, error) {
	if peerPrimaryGID == approverGID {
		return true, nil
	}
	gids, err := groupMembers(peerUID)
	if err != nil {
		return false, err
	}
	want := strconv.FormatUint(uint64(approverGID), 10)
	for _, g := range gids {
		if g == want {
			return true, nil
		}
	}
	return false, nil
}
