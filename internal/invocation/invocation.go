// Package invocation models the single, immutable record of "what the user
// asked sim to do" that flows through policy evaluation, the rendezvous
// handshake, and exec.
package invocation

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/localauth/sim/internal/protocol"
)

// Invocation is immutable after New returns. It captures the command the
// invoker wants run and the invoker's identity at process entry.
type Invocation struct {
	Command string
	Args    []string
	Cwd     string
	Host    string
	User    string

	InvokerUID uint32
	InvokerGID uint32

	// SavedEUID is the effective UID the process was launched with
	// (expected 0, via the setuid bit) before it was dropped to the real
	// UID at process entry. See credgate.
	SavedEUID uint32
}

// New builds an Invocation from argv and the process's current identity.
// getuid/geteuid/getgid must be sampled by the caller before any privilege
// drop, and the real uid/gid after the drop — New does not itself touch
// process credentials.
func New(command string, args []string, invokerUID, invokerGID, savedEUID uint32) (*Invocation, error) {
	if command == "" {
		return nil, fmt.Errorf("invocation.New: empty command")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("invocation.New: getcwd: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("invocation.New: gethostname: %w", err)
	}

	u, err := user.LookupId(fmt.Sprintf("%d", invokerUID))
	if err != nil {
		return nil, fmt.Errorf("invocation.New: resolve user for uid %d: %w", invokerUID, err)
	}

	return &Invocation{
		Command:    command,
		Args:       args,
		Cwd:        cwd,
		Host:       host,
		User:       u.Username,
		InvokerUID: invokerUID,
		InvokerGID: invokerGID,
		SavedEUID:  savedEUID,
	}, nil
}

// Argv returns the target command's argv, with the program name duplicated
// at index 0, matching what execve(2) expects in argv[0].
func (inv *Invocation) Argv() []string {
	argv := make([]string, 0, len(inv.Args)+1)
	argv = append(argv, inv.Command)
	argv = append(argv, inv.Args...)
	return argv
}

// BuildRequest turns an Invocation into the wire-ready ApprovalRequest an
// approver will be shown, keyed by the rendezvous socket's filename so the
// approver's own tooling can correlate a request with its socket path.
// Host/user/cwd are resolved once, in New, and never re-resolved here; this
// fails closed if any of them is unexpectedly empty rather than shipping an
// approval request an approver can't attribute to an invoker.
func BuildRequest(inv *Invocation, sockPath string) (*protocol.ApprovalRequest, error) {
	if inv.Host == "" || inv.User == "" || inv.Cwd == "" {
		return nil, fmt.Errorf("invocation.BuildRequest: invocation missing host/user/cwd")
	}
	return &protocol.ApprovalRequest{
		ID:   filepath.Base(sockPath),
		Host: inv.Host,
		User: inv.User,
		Command: protocol.Command{
			Cwd:     inv.Cwd,
			Command: inv.Command,
			Args:    inv.Argv(),
		},
	}, nil
}
