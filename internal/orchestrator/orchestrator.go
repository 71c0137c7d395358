//go:build linux

// Package orchestrator wires the Credential Gate, Policy Engine, Rendezvous
// Endpoint, Request Builder, Approver Handshake, and Exec Stage together:
//
//	check_admin → check_deny →
//	if not check_safe: new Rendezvous → build_request →
//	    loop: accept → handshake; break on APPROVED
//	exec_stage  # never returns on success
package orchestrator

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/localauth/sim/internal/config"
	"github.com/localauth/sim/internal/execstage"
	"github.com/localauth/sim/internal/handshake"
	"github.com/localauth/sim/internal/invocation"
	"github.com/localauth/sim/internal/metrics"
	"github.com/localauth/sim/internal/policy"
	"github.com/localauth/sim/internal/protocol"
	"github.com/localauth/sim/internal/rendezvous"
)

// Deps collects every privilege-sensitive or I/O-performing step behind a
// seam, the same pattern credgate/rendezvous/handshake/execstage each use
// internally — so Run's own control flow (ordering, loop-until-approved,
// metric labels) can be exercised without needing to run as root.
type Deps struct {
	NewRendezvous func(dir, approverGroup string, savedEUID uint32) (*rendezvous.Rendezvous, error)
	RunHandshake  func(connFD int, approverGID, invokerUID uint32, req *protocol.ApprovalRequest) handshake.Result
	Exec          func(command string, args []string) error
}

// DefaultDeps wires Deps to the real packages — what cmd/sim uses.
func DefaultDeps() Deps {
	return Deps{
		NewRendezvous: rendezvous.New,
		RunHandshake:  handshake.Run,
		Exec:          execstage.Run,
	}
}

// Run executes one full invocation: policy evaluation, optional approval
// rendezvous, and the terminal exec. It returns only on failure — on
// success, Deps.Exec itself does not return, so the exec-result metric is
// only ever observed as "error".
func Run(cfg *config.Config, inv *invocation.Invocation, m *metrics.Metrics, log *zap.Logger, deps Deps) error {
	if err := policy.CheckAdmin(cfg, inv); err != nil {
		m.PolicyDecisionsTotal.WithLabelValues("admin_denied").Inc()
		return err
	}
	if err := policy.CheckDeny(cfg, inv); err != nil {
		m.PolicyDecisionsTotal.WithLabelValues("command_denied").Inc()
		return err
	}

	if policy.CheckSafe(cfg, inv) {
		m.PolicyDecisionsTotal.WithLabelValues("safe").Inc()
		if err := deps.Exec(inv.Command, inv.Args); err != nil {
			m.ExecTotal.WithLabelValues("error").Inc()
			return err
		}
		return nil
	}
	m.PolicyDecisionsTotal.WithLabelValues("requires_approval").Inc()

	rv, err := deps.NewRendezvous(cfg.SockDir, cfg.ApproveGroup, inv.SavedEUID)
	if err != nil {
		return fmt.Errorf("orchestrator.Run: %w", err)
	}
	defer rv.Close() //nolint:errcheck

	req, err := invocation.BuildRequest(inv, rv.Path)
	if err != nil {
		return fmt.Errorf("orchestrator.Run: %w", err)
	}
	log.Info("waiting for MPA approval", zap.String("socket", rv.Path), zap.String("user", inv.User))

	for {
		connFD, err := rv.Accept()
		if err != nil {
			return fmt.Errorf("orchestrator.Run: %w", err)
		}

		res := deps.RunHandshake(connFD, rv.ApproverGID, inv.InvokerUID, req)
		unix.Close(connFD)

		switch res.State {
		case handshake.StateApproved:
			m.HandshakeConnectionsTotal.WithLabelValues("approved").Inc()
			log.Info("request approved", zap.Uint32("approver_uid", res.PeerUID))
			if err := deps.Exec(inv.Command, inv.Args); err != nil {
				m.ExecTotal.WithLabelValues("error").Inc()
				return err
			}
			return nil
		case handshake.StateRejected:
			m.HandshakeConnectionsTotal.WithLabelValues("rejected").Inc()
			log.Warn("request rejected, continuing to accept", zap.String("reason", res.Reason))
		default:
			m.HandshakeConnectionsTotal.WithLabelValues("error").Inc()
			log.Warn("handshake error, continuing to accept", zap.String("reason", res.Reason))
		}
		// Outcomes other than APPROVED never terminate the accept loop:
		// another approver may still connect, and a rejection from one
		// approver is not a fatal verdict for the invocation as a whole —
		// only the invoker's own SIGINT/SIGTERM ends the wait.
	}
}

