//go:build linux

package firewall

import "fmt"

// NewBackend constructs the packet filter backend selected by config.
func NewBackend(kind BackendType) (Backend, error) {
	switch kind {
	case BackendIPTables:
		return NewIPTablesBackend()
	case BackendNFTables:
		return NewNFTablesBackend()
	case BackendMock:
		return NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported firewall backend '%s'", kind)
	}
}
