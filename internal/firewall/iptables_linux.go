//go:build linux

package firewall

import (
	"fmt"
	"net"

	"github.com/coreos/go-iptables/iptables"
)

const DEFAULT_TABLE = "filter"
const DEFAULT_CHAIN = "INPUT"

var iptv4 *iptables.IPTables

// IPTablesBackend drives the legacy iptables filter table. Drop rules are
// appended so they sit below any allow rules; allow rules are inserted at
// position 1 so they win.
type IPTablesBackend struct {
	ipt *iptables.IPTables
}

func NewIPTablesBackend() (*IPTablesBackend, error) {
	ipt, err := getOrCreateIpt(iptables.ProtocolIPv4)
	if err != nil {
		return nil, fmt.Errorf("failed to open iptables: %w", err)
	}
	return &IPTablesBackend{ipt: ipt}, nil
}

func (b *IPTablesBackend) EnsureBlock(port uint16) error {
	ruleSpec := dropSpec(port)
	// Best effort removal of a previous run's rule, then append. Absence
	// is not an error.
	_ = b.ipt.DeleteIfExists(DEFAULT_TABLE, DEFAULT_CHAIN, ruleSpec...)
	if err := b.ipt.AppendUnique(DEFAULT_TABLE, DEFAULT_CHAIN, ruleSpec...); err != nil {
		return fmt.Errorf("failed to add drop rule: %w", err)
	}
	return nil
}

func (b *IPTablesBackend) Grant(src net.IP, port uint16) error {
	if err := b.ipt.Insert(DEFAULT_TABLE, DEFAULT_CHAIN, 1, allowSpec(src, port)...); err != nil {
		return fmt.Errorf("failed to insert allow rule: %w", err)
	}
	return nil
}

func (b *IPTablesBackend) Revoke(src net.IP, port uint16) error {
	if err := b.ipt.DeleteIfExists(DEFAULT_TABLE, DEFAULT_CHAIN, allowSpec(src, port)...); err != nil {
		return fmt.Errorf("failed to delete allow rule: %w", err)
	}
	return nil
}

func dropSpec(port uint16) []string {
	return []string{
		"--protocol", "tcp",
		"--dport", fmt.Sprintf("%d", port),
		"--jump", "DROP",
	}
}

func allowSpec(src net.IP, port uint16) []string {
	return []string{
		"--protocol", "tcp",
		"--source", src.String(),
		"--dport", fmt.Sprintf("%d", port),
		"--jump", "ACCEPT",
	}
}

func getOrCreateIpt(protocol iptables.Protocol) (*iptables.IPTables, error) {
	if iptv4 != nil {
		return iptv4, nil
	}
	ipt, err := iptables.NewWithProtocol(protocol)
	if err == nil {
		iptv4 = ipt
	}
	return ipt, err
}
