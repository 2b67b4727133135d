package knockd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var knocksReceived = metrics.NewCounter("knockd_knocks_received_total")

// KnockFunc receives one knock signal: the source address, the sequence
// port it arrived on, and the arrival time.
type KnockFunc func(src net.IP, port uint16, at time.Time)

// Listener accepts TCP connections on one knock port. The connection
// attempt itself is the signal: every accepted connection is closed
// immediately without reading or writing a byte, so hostile or slow peers
// cannot tie the listener up.
type Listener struct {
	ln      net.Listener
	port    uint16
	onKnock KnockFunc
}

// Listen binds a knock listener on addr:port. Port 0 picks an ephemeral
// port; Port() reports the bound one.
func Listen(addr string, port uint16, onKnock KnockFunc) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on knock port %d: %w", port, err)
	}
	bound := uint16(ln.Addr().(*net.TCPAddr).Port)
	slog.Info("listening for knocks", "port", bound)
	return &Listener{ln: ln, port: bound, onKnock: onKnock}, nil
}

// Port returns the bound knock port.
func (l *Listener) Port() uint16 {
	return l.port
}

// Serve accepts connections until the listener is closed. Per-connection
// errors are dropped and accepting continues; only closure of the listener
// itself ends the loop.
func (l *Listener) Serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Debug("accept failed", "port", l.port, "err", err)
			continue
		}
		at := time.Now()
		src := conn.RemoteAddr().(*net.TCPAddr).IP
		conn.Close()

		knocksReceived.Inc()
		slog.Debug("knock received", "addr", src, "port", l.port)
		l.onKnock(src, l.port, at)
	}
}

// Close stops the accept loop.
func (l *Listener) Close() error {
	return l.ln.Close()
}
