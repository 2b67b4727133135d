// Package knockd wires the knock listeners, the sequence tracker and the
// firewall gate into the knock server: a hidden gate that keeps the
// protected port closed by default and opens it per source address after
// the secret knock sequence completes.
package knockd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/knockgate/knockd/internal/config"
	"github.com/knockgate/knockd/internal/firewall"
	"github.com/knockgate/knockd/internal/tracker"
)

var sequencesCompleted = metrics.NewCounter("knockd_sequences_completed_total")

// Server owns the process lifetime of the knock service.
type Server struct {
	cfg       *config.AppConfig
	gate      *firewall.Gate
	tracker   *tracker.Tracker
	listeners []*Listener

	// listenAddr is the bind address for knock listeners, 0.0.0.0 in
	// production and 127.0.0.1 in tests.
	listenAddr string
}

// NewServer builds a Server from config on top of the given firewall
// backend.
func NewServer(cfg *config.AppConfig, backend firewall.Backend) *Server {
	return &Server{
		cfg:        cfg,
		gate:       firewall.NewGate(backend, cfg.ProtectedPort),
		tracker:    tracker.New(cfg.Sequence, cfg.Window),
		listenAddr: "0.0.0.0",
	}
}

// Start converges the default-deny posture and brings up one listener per
// sequence port, all feeding the shared tracker. It returns once every
// listener is bound.
func (s *Server) Start() error {
	slog.Info("starting knock server",
		"sequence", s.cfg.Sequence,
		"protected_port", s.cfg.ProtectedPort,
		"window", s.cfg.Window,
		"ttl", s.cfg.OpenTTL)

	if err := s.gate.EnsureDefaultBlock(); err != nil {
		return fmt.Errorf("failed to set up default block: %w", err)
	}

	for _, port := range s.cfg.Sequence {
		ln, err := Listen(s.listenAddr, port, s.handleKnock)
		if err != nil {
			s.Close()
			return err
		}
		s.listeners = append(s.listeners, ln)
		go ln.Serve()
	}
	return nil
}

// handleKnock feeds one knock into the tracker and, on completion, opens
// the gate for the source address. The gate call runs outside the
// tracker's lock on its own goroutine so a slow firewall backend never
// delays knocks from other addresses.
func (s *Server) handleKnock(src net.IP, port uint16, at time.Time) {
	if !s.tracker.RegisterKnock(src.String(), port, at) {
		return
	}
	sequencesCompleted.Inc()
	go s.gate.Open(src, s.cfg.OpenTTL)
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Close()
	<-ctx.Done()
	slog.Info("shutting down knock server")
	return nil
}

// Close stops all knock listeners.
func (s *Server) Close() {
	for _, ln := range s.listeners {
		ln.Close()
	}
}

// Ports returns the bound knock ports in sequence order.
func (s *Server) Ports() []uint16 {
	ports := make([]uint16, 0, len(s.listeners))
	for _, ln := range s.listeners {
		ports = append(ports, ln.Port())
	}
	return ports
}
