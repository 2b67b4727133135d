//go:build !linux

package firewall

import "fmt"

// NewBackend constructs the packet filter backend selected by config. Only
// the mock backend exists off Linux.
func NewBackend(kind BackendType) (Backend, error) {
	if kind == BackendMock {
		return NewMockBackend(), nil
	}
	return nil, fmt.Errorf("firewall backend '%s' is only supported on linux", kind)
}
