// Package protected implements the demo backend service that sits behind
// the gate. Its reachability is controlled entirely by the firewall rules
// the knock server manages; the service itself does no checking.
package protected

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
)

const Banner = "Protected service reached. Port knocking worked.\n"

// Server is a plain TCP service that greets every peer with a fixed
// confirmation line and hangs up.
type Server struct {
	ln net.Listener
}

// Listen binds the protected service on addr:port.
func Listen(addr string, port uint16) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on protected port %d: %w", port, err)
	}
	slog.Info("protected service listening", "addr", ln.Addr())
	return &Server{ln: ln}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts and answers connections until ctx is cancelled or the
// listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Debug("accept failed", "err", err)
			continue
		}
		go func(conn net.Conn) {
			defer conn.Close()
			if _, err := conn.Write([]byte(Banner)); err != nil {
				slog.Debug("failed to send banner", "addr", conn.RemoteAddr(), "err", err)
				return
			}
			slog.Info("connection served", "addr", conn.RemoteAddr())
		}(conn)
	}
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.ln.Close()
}
