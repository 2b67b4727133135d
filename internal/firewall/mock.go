package firewall

import (
	"fmt"
	"net"
	"sync"
)

// MockBackend records firewall operations in order instead of touching a
// real packet filter. It stands in for iptables/nftables in tests and on
// hosts where mutating the firewall is not an option.
type MockBackend struct {
	mu  sync.Mutex
	ops []string

	// FailGrants and FailRevokes make the corresponding calls return an
	// error, for exercising the best-effort paths.
	FailGrants  bool
	FailRevokes bool

	blocked map[uint16]int
	allowed map[string]int
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		blocked: make(map[uint16]int),
		allowed: make(map[string]int),
	}
}

func allowKey(src net.IP, port uint16) string {
	return fmt.Sprintf("%s>%d", src, port)
}

func (m *MockBackend) EnsureBlock(port uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, fmt.Sprintf("block %d", port))
	m.blocked[port] = 1
	return nil
}

func (m *MockBackend) Grant(src net.IP, port uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, fmt.Sprintf("grant %s %d", src, port))
	if m.FailGrants {
		return fmt.Errorf("mock grant failure")
	}
	m.allowed[allowKey(src, port)]++
	return nil
}

func (m *MockBackend) Revoke(src net.IP, port uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, fmt.Sprintf("revoke %s %d", src, port))
	if m.FailRevokes {
		return fmt.Errorf("mock revoke failure")
	}
	key := allowKey(src, port)
	if m.allowed[key] > 0 {
		m.allowed[key]--
	}
	return nil
}

// Ops returns a copy of all recorded operations in call order.
func (m *MockBackend) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]string, len(m.ops))
	copy(ops, m.ops)
	return ops
}

// Allowed reports how many allow rule occurrences exist for (src, port).
func (m *MockBackend) Allowed(src net.IP, port uint16) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowed[allowKey(src, port)]
}

// Blocked reports whether a default drop rule exists for port.
func (m *MockBackend) Blocked(port uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked[port] > 0
}
