// Package firewall manages the default-deny posture for the protected port
// and the time-bounded per-address allow rules that open it. All rule
// mutations go through a Backend; individual backend failures are logged
// and swallowed so the gate stays available under noisy traffic.
package firewall

import (
	"log/slog"
	"net"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

var (
	grantsIssued    = metrics.NewCounter("knockd_grants_issued_total")
	revokesExecuted = metrics.NewCounter("knockd_revokes_executed_total")
)

// REVOKE_ATTEMPTS bounds the delete attempts per scheduled revoke. Repeated
// opens for the same address stack duplicate allow rules; each extra attempt
// absorbs one duplicate occurrence.
const REVOKE_ATTEMPTS = 5

// Gate issues and revokes allow rules for one protected port.
type Gate struct {
	backend       Backend
	protectedPort uint16

	// afterFunc schedules the deferred revoke; tests swap it out.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewGate creates a Gate for protectedPort on top of the given backend.
func NewGate(backend Backend, protectedPort uint16) *Gate {
	return &Gate{
		backend:       backend,
		protectedPort: protectedPort,
		afterFunc:     time.AfterFunc,
	}
}

// EnsureDefaultBlock converges the protected port to default-deny. Safe to
// call repeatedly, e.g. across restarts.
func (g *Gate) EnsureDefaultBlock() error {
	if err := g.backend.EnsureBlock(g.protectedPort); err != nil {
		return err
	}
	slog.Info("protected port is blocked by default", "port", g.protectedPort)
	return nil
}

// Open inserts a top-priority allow rule for src and schedules an
// independent revoke once ttl elapses. It returns without waiting for the
// revoke; repeated opens for the same address stack additional rules and
// timers rather than extending an existing grant. Backend failures are
// logged, not propagated.
func (g *Gate) Open(src net.IP, ttl time.Duration) {
	grantID := uuid.NewString()
	slog.Info("opening protected port",
		"port", g.protectedPort, "addr", src, "ttl", ttl, "grant", grantID)

	if err := g.backend.Grant(src, g.protectedPort); err != nil {
		slog.Warn("failed to insert allow rule",
			"addr", src, "port", g.protectedPort, "grant", grantID, "err", err)
	}
	grantsIssued.Inc()

	g.afterFunc(ttl, func() {
		g.revoke(src, grantID)
	})
}

// revoke removes the allow rule for src. It retries a bounded number of
// times to absorb duplicate rule occurrences and transient backend errors,
// but makes no guarantee every duplicate is gone.
func (g *Gate) revoke(src net.IP, grantID string) {
	slog.Info("closing protected port",
		"port", g.protectedPort, "addr", src, "grant", grantID)
	revokesExecuted.Inc()

	var errs *multierror.Error
	for i := 0; i < REVOKE_ATTEMPTS; i++ {
		if err := g.backend.Revoke(src, g.protectedPort); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		slog.Debug("revoke attempts reported errors",
			"addr", src, "port", g.protectedPort, "err", err)
	}
}
