// Package decoy implements an SSH-like session responder: a line-oriented
// prompt/response simulator that looks enough like a real SSH endpoint to
// draw scanners and credential stuffers away from the gated service. It is
// a pure consumer of an accepted connection and the logger; it grants
// nothing.
package decoy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

const SSH_BANNER = "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.11\r\n"

const (
	maxLine        = 1024
	maxCommands    = 32
	bannerTimeout  = 5 * time.Second
	promptTimeout  = 60 * time.Second
	fakeHostPrompt = "user@webserver:~$ "
)

// Session captures what one peer did during a decoy conversation.
type Session struct {
	ID       string
	Src      net.Addr
	Start    time.Time
	Username string
	Password string
	Commands []string
}

// Server accepts connections and runs each through the fake login flow.
type Server struct {
	ln net.Listener
}

func Listen(addr string, port uint16) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on decoy port %d: %w", port, err)
	}
	slog.Info("decoy listening", "addr", ln.Addr())
	return &Server{ln: ln}, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

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
			session := Handle(conn)
			logSession(session)
		}(conn)
	}
}

func (s *Server) Close() error {
	return s.ln.Close()
}

// Handle runs the fake SSH conversation over conn and returns the captured
// session. It never fails: a peer that hangs up or stalls simply ends the
// session early.
func Handle(conn net.Conn) *Session {
	session := &Session{
		ID:    uuid.NewString(),
		Src:   conn.RemoteAddr(),
		Start: time.Now(),
	}
	reader := bufio.NewReaderSize(conn, maxLine)

	send(conn, SSH_BANNER)

	// Many clients send their own version line first; read it if present
	// but don't insist.
	if banner, ok := recvLine(conn, reader, bannerTimeout); ok {
		slog.Debug("client banner", "session", session.ID, "banner", banner)
	}

	send(conn, "login as: ")
	user, ok := recvLine(conn, reader, promptTimeout)
	if !ok {
		return session
	}
	session.Username = user

	send(conn, fmt.Sprintf("%s@webserver's password: ", user))
	pass, ok := recvLine(conn, reader, promptTimeout)
	if !ok {
		return session
	}
	session.Password = pass

	// Fake shell. Everything typed is captured; nothing is executed.
	send(conn, "Welcome to Ubuntu 20.04.6 LTS (GNU/Linux 5.4.0-169-generic x86_64)\r\n\r\n")
	for len(session.Commands) < maxCommands {
		send(conn, fakeHostPrompt)
		command, ok := recvLine(conn, reader, promptTimeout)
		if !ok {
			break
		}
		if command == "" {
			continue
		}
		session.Commands = append(session.Commands, command)
		if command == "exit" || command == "logout" {
			send(conn, "logout\r\n")
			break
		}
		send(conn, fmt.Sprintf("-bash: %s: command not found\r\n", firstWord(command)))
	}
	return session
}

func logSession(session *Session) {
	slog.Info("decoy session finished",
		"session", session.ID,
		"addr", session.Src,
		"duration", time.Since(session.Start).Round(time.Millisecond),
		"username", session.Username,
		"password", session.Password,
		"commands", strings.Join(session.Commands, "; "))
}

// recvLine reads one line with a deadline and a length cap. The second
// return is false when the peer went away or stalled.
func recvLine(conn net.Conn, reader *bufio.Reader, timeout time.Duration) (string, bool) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	line = strings.TrimRight(line, "\r\n")
	return line, true
}

func send(conn net.Conn, s string) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	conn.Write([]byte(s))
}

func firstWord(command string) string {
	if i := strings.IndexByte(command, ' '); i >= 0 {
		return command[:i]
	}
	return command
}
