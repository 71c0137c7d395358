//go:build linux

// Package rendezvous creates and owns the per-invocation listening socket
// that is the trust boundary between requester and approver.
package rendezvous

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os/user"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/localauth/sim/internal/credgate"
)

// tokenAlphabet is the character set the rendezvous socket's filename is
// drawn from.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// tokenLength is the number of characters in the generated token.
const tokenLength = 16

// backlog is the accept backlog for the rendezvous socket. Small on
// purpose: this wrapper expects at most a handful of approvers to probe it,
// never a flood of connections.
const backlog = 5

// Rendezvous is a listening socket the Orchestrator owns exclusively until
// approval succeeds or the process exits. The socket file is not explicitly
// removed on Close — see DESIGN.md's Open Question decisions for why a
// stale file is left for operator-level housekeeping rather than cleaned up
// here.
type Rendezvous struct {
	Path        string
	FD          int
	ApproverGID uint32
}

// New creates a rendezvous socket in dir, group-owned by approverGroup,
// mode 0660. All filesystem-mutating steps run inside a single
// credgate.AsRoot(savedEUID, ...) bracket, since each one (bind, chown,
// chmod) needs root and none of them should be attempted individually at
// invoker privilege.
func New(dir, approverGroup string, savedEUID uint32) (*Rendezvous, error) {
	g, err := user.LookupGroup(approverGroup)
	if err != nil {
		return nil, fmt.Errorf("rendezvous.New: lookup group %q: %w", approverGroup, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return nil, fmt.Errorf("rendezvous.New: parse gid %q: %w", g.Gid, err)
	}

	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("rendezvous.New: generate token: %w", err)
	}
	path := filepath.Join(dir, token)

	var fd int
	err = credgate.AsRoot(savedEUID, func() error {
		var err error
		fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
		if err != nil {
			return fmt.Errorf("socket: %w", err)
		}

		addr := &unix.SockaddrUnix{Name: path}
		if err := unix.Bind(fd, addr); err != nil {
			unix.Close(fd)
			return fmt.Errorf("bind %q: %w", path, err)
		}

		if err := unix.Chown(path, 0, gid); err != nil {
			unix.Close(fd)
			return fmt.Errorf("chown %q: %w", path, err)
		}

		if err := unix.Chmod(path, 0o660); err != nil {
			unix.Close(fd)
			return fmt.Errorf("chmod %q: %w", path, err)
		}

		if err := unix.Listen(fd, backlog); err != nil {
			unix.Close(fd)
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rendezvous.New: %w", err)
	}

	return &Rendezvous{Path: path, FD: fd, ApproverGID: uint32(gid)}, nil
}

// Accept blocks until a peer connects, returning the accepted connection's
// file descriptor. Runs at invoker euid, outside the Credential-Gate
// bracket: nothing about accepting a connection needs root, so it does not
// run at root.
func (r *Rendezvous) Accept() (int, error) {
	connFD, _, err := unix.Accept(r.FD)
	if err != nil {
		return -1, fmt.Errorf("rendezvous.Accept: %w", err)
	}
	return connFD, nil
}

// Close closes the listening socket. The socket file itself is left in
// place; see the Rendezvous doc comment above.
func (r *Rendezvous) Close() error {
	return unix.Close(r.FD)
}

// randomToken draws tokenLength characters uniformly from tokenAlphabet
// using a cryptographically unbiased sampler, so the socket path can't be
// guessed or enumerated by an unrelated process racing to connect first.
func randomToken() (string, error) {
	n := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, tokenLength)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
