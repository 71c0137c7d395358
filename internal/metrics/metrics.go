// Package metrics holds sim's Prometheus metric descriptors.
//
// Metric naming convention: sim_<subsystem>_<name>_<unit>, following the
// same scheme the rest of the codebase uses.
//
// Unlike a long-running daemon, sim is a one-shot setuid-root wrapper: it
// never binds a listening socket of its own accord, and that includes
// /metrics. Exposing an HTTP endpoint from a process holding root
// privileges — even briefly, even on loopback — is exactly the kind of
// attack surface a setuid-root wrapper is supposed to minimize. Metrics are
// instead written out as a single Prometheus text-exposition snapshot on
// exit (WriteTextTo), for a wrapping collector to scrape from disk.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/expfmt"
)

// Metrics holds sim's Prometheus metric descriptors, registered on a
// dedicated registry rather than the global one.
type Metrics struct {
	registry *prometheus.Registry

	// PolicyDecisionsTotal counts policy engine verdicts.
	// Labels: result (admin_denied, command_denied, safe, requires_approval)
	PolicyDecisionsTotal *prometheus.CounterVec

	// HandshakeConnectionsTotal counts approver connections handled.
	// Labels: outcome (approved, rejected, error)
	HandshakeConnectionsTotal *prometheus.CounterVec

	// ExecTotal counts terminal exec attempts.
	// Labels: result (ok, error)
	ExecTotal *prometheus.CounterVec
}

// New creates and registers sim's Prometheus metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		PolicyDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sim",
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Total policy engine decisions, by result.",
		}, []string{"result"}),

		HandshakeConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sim",
			Subsystem: "handshake",
			Name:      "connections_total",
			Help:      "Total approver connections handled, by outcome.",
		}, []string{"outcome"}),

		ExecTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sim",
			Subsystem: "exec",
			Name:      "total",
			Help:      "Total Exec Stage attempts, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.PolicyDecisionsTotal,
		m.HandshakeConnectionsTotal,
		m.ExecTotal,
	)

	return m
}

// WriteTextTo writes a single Prometheus text-exposition snapshot of every
// registered metric to w. Intended for an exit-time dump to a file a
// separate, unprivileged collector scrapes — never for serving over a
// socket from this process.
func (m *Metrics) WriteTextTo(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
