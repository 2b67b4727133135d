package knockd

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knockgate/knockd/internal/config"
	"github.com/knockgate/knockd/internal/firewall"
)

// freePorts grabs n currently-free TCP ports on loopback.
func freePorts(t *testing.T, n int) []uint16 {
	t.Helper()
	ports := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		ports = append(ports, uint16(ln.Addr().(*net.TCPAddr).Port))
		ln.Close()
	}
	return ports
}

func testServer(t *testing.T) (*Server, *firewall.MockBackend) {
	t.Helper()
	cfg := config.Default()
	cfg.Sequence = freePorts(t, 3)
	cfg.Window = 5 * time.Second
	cfg.OpenTTL = time.Minute

	backend := firewall.NewMockBackend()
	srv := NewServer(cfg, backend)
	srv.listenAddr = "127.0.0.1"
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)
	return srv, backend
}

func knock(t *testing.T, port uint16) {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	conn.Close()
}

func TestServerOpensGateAfterSequence(t *testing.T) {
	srv, backend := testServer(t)

	assert.True(t, backend.Blocked(srv.cfg.ProtectedPort))

	for _, port := range srv.cfg.Sequence {
		knock(t, port)
		// Knock delivery is asynchronous relative to the dial; let each
		// knock land before sending the next so order is preserved.
		time.Sleep(50 * time.Millisecond)
	}

	src := net.ParseIP("127.0.0.1")
	assert.Eventually(t, func() bool {
		return backend.Allowed(src, srv.cfg.ProtectedPort) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServerIgnoresOutOfOrderKnocks(t *testing.T) {
	srv, backend := testServer(t)

	// Last port first: no state may be created and the gate stays shut.
	knock(t, srv.cfg.Sequence[2])
	knock(t, srv.cfg.Sequence[1])
	time.Sleep(200 * time.Millisecond)

	src := net.ParseIP("127.0.0.1")
	assert.Equal(t, 0, backend.Allowed(src, srv.cfg.ProtectedPort))
}

func TestServerPortsReportBoundListeners(t *testing.T) {
	srv, _ := testServer(t)
	assert.Equal(t, srv.cfg.Sequence, srv.Ports())
}

func TestListenerReportsKnocks(t *testing.T) {
	got := make(chan uint16, 1)
	ln, err := Listen("127.0.0.1", 0, func(src net.IP, port uint16, at time.Time) {
		got <- port
	})
	require.NoError(t, err)
	defer ln.Close()
	go ln.Serve()

	knock(t, ln.Port())
	select {
	case port := <-got:
		assert.Equal(t, ln.Port(), port)
	case <-time.After(2 * time.Second):
		t.Fatal("knock was not reported")
	}
}
