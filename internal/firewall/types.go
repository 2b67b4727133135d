package firewall

import (
	"fmt"
	"net"
)

// BackendType are the supported packet filter backends.
type BackendType string

const (
	BackendIPTables BackendType = "iptables"
	BackendNFTables BackendType = "nftables"
	BackendMock     BackendType = "mock"
)

// BackendTypeFromString returns a valid BackendType for the given string, or
// an error if the value is invalid.
func BackendTypeFromString(val string) (BackendType, error) {
	switch BackendType(val) {
	case BackendIPTables:
		return BackendIPTables, nil
	case BackendNFTables:
		return BackendNFTables, nil
	case BackendMock:
		return BackendMock, nil
	}
	return "", fmt.Errorf("unsupported firewall backend '%s'", val)
}

// Backend is the packet filter control interface the gate converges rules
// through. All operations are synchronous and best-effort: a rule that is
// already present or already absent is expected churn, not a failure the
// caller should act on.
type Backend interface {
	// EnsureBlock removes any matching drop rule for the protected port
	// (best effort) and appends a fresh one, leaving the port default-deny
	// without stacking duplicates across restarts.
	EnsureBlock(port uint16) error

	// Grant inserts an allow rule for (src, port) at the highest priority
	// position so it is evaluated before the default drop.
	Grant(src net.IP, port uint16) error

	// Revoke deletes one matching allow rule occurrence for (src, port) if
	// present.
	Revoke(src net.IP, port uint16) error
}
