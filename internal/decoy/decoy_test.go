package decoy

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runSession drives Handle over a pipe: the peer's output is drained into
// a buffer while the scripted input lines are fed in. When hangUp is set
// the peer disconnects after sending its input instead of waiting for the
// conversation to finish.
func runSession(t *testing.T, input string, hangUp bool) (*Session, string) {
	t.Helper()
	server, client := net.Pipe()

	done := make(chan *Session, 1)
	go func() {
		defer server.Close()
		done <- Handle(server)
	}()

	var output bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		io.Copy(&output, client)
	}()

	_, err := client.Write([]byte(input))
	require.NoError(t, err)
	if hangUp {
		// Let the pending prompt drain before the peer goes away.
		time.Sleep(100 * time.Millisecond)
		client.Close()
	}

	select {
	case session := <-done:
		if !hangUp {
			client.Close()
		}
		wg.Wait()
		return session, output.String()
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return nil, ""
	}
}

func TestHandleCapturesCredentialsAndCommands(t *testing.T) {
	session, output := runSession(t,
		"SSH-2.0-Go_Test\r\nroot\nhunter2\nls -la\nexit\n", false)

	assert.Equal(t, "root", session.Username)
	assert.Equal(t, "hunter2", session.Password)
	assert.Equal(t, []string{"ls -la", "exit"}, session.Commands)
	assert.NotEmpty(t, session.ID)

	assert.Contains(t, output, SSH_BANNER)
	assert.Contains(t, output, "login as: ")
	assert.Contains(t, output, "root@webserver's password: ")
	assert.Contains(t, output, "-bash: ls: command not found")
	assert.Contains(t, output, "logout")
}

func TestHandlePeerDisconnectsAtLogin(t *testing.T) {
	// Peer sends its banner and vanishes; the session ends with nothing
	// captured.
	session, output := runSession(t, "SSH-2.0-Go_Test\r\n", true)

	assert.Empty(t, session.Username)
	assert.Empty(t, session.Password)
	assert.Empty(t, session.Commands)
	assert.Contains(t, output, "login as: ")
}

func TestHandleBlankCommandLinesIgnored(t *testing.T) {
	session, _ := runSession(t,
		"SSH-2.0-Go_Test\r\nadmin\npassw0rd\n\n\nwhoami\nexit\n", false)

	assert.Equal(t, []string{"whoami", "exit"}, session.Commands)
}
