//go:build linux

package firewall

import (
	"bytes"
	"fmt"
	"net"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

const NFT_TABLE = "knockd"
const NFT_CHAIN = "input"

// NFTablesBackend manages rules in its own nftables table so it never has
// to guess at rule positions in a shared chain: the drop rule is appended
// once, allow rules are always inserted ahead of it.
type NFTablesBackend struct {
	conn  *nftables.Conn
	table *nftables.Table
	chain *nftables.Chain
}

func NewNFTablesBackend() (*NFTablesBackend, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open netlink connection: %w", err)
	}
	return &NFTablesBackend{conn: conn}, nil
}

func (b *NFTablesBackend) EnsureBlock(port uint16) error {
	table := b.conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   NFT_TABLE,
	})
	// Drop anything left over from a previous run before re-adding the
	// drop rule, so restarts do not stack duplicates.
	b.conn.FlushTable(table)

	chain := b.conn.AddChain(&nftables.Chain{
		Name:     NFT_CHAIN,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
	})

	b.conn.AddRule(&nftables.Rule{
		Table:    table,
		Chain:    chain,
		Exprs:    append(matchTCPDport(port), &expr.Verdict{Kind: expr.VerdictDrop}),
		UserData: []byte(dropTag(port)),
	})

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to program drop rule: %w", err)
	}
	b.table = table
	b.chain = chain
	return nil
}

func (b *NFTablesBackend) Grant(src net.IP, port uint16) error {
	if b.table == nil {
		return fmt.Errorf("backend not initialized, call EnsureBlock first")
	}
	exprs := matchSource(src)
	exprs = append(exprs, matchTCPDport(port)...)
	exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})

	b.conn.InsertRule(&nftables.Rule{
		Table:    b.table,
		Chain:    b.chain,
		Exprs:    exprs,
		UserData: []byte(allowTag(src, port)),
	})
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to insert allow rule: %w", err)
	}
	return nil
}

func (b *NFTablesBackend) Revoke(src net.IP, port uint16) error {
	if b.table == nil {
		return fmt.Errorf("backend not initialized, call EnsureBlock first")
	}
	rules, err := b.conn.GetRules(b.table, b.chain)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	tag := []byte(allowTag(src, port))
	for _, rule := range rules {
		if !bytes.Equal(rule.UserData, tag) {
			continue
		}
		if err := b.conn.DelRule(rule); err != nil {
			return fmt.Errorf("failed to delete allow rule: %w", err)
		}
		if err := b.conn.Flush(); err != nil {
			return fmt.Errorf("failed to commit rule deletion: %w", err)
		}
		return nil
	}
	return nil
}

func dropTag(port uint16) string {
	return fmt.Sprintf("knockd:drop:%d", port)
}

func allowTag(src net.IP, port uint16) string {
	return fmt.Sprintf("knockd:allow:%s:%d", src, port)
}

// matchTCPDport matches inbound TCP segments to the given destination port.
func matchTCPDport(port uint16) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     []byte{unix.IPPROTO_TCP},
		},
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseTransportHeader,
			Offset:       2, // TCP destination port
			Len:          2,
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     binaryutil.BigEndian.PutUint16(port),
		},
	}
}

// matchSource matches the IPv4 source address.
func matchSource(src net.IP) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       12, // IPv4 source address
			Len:          4,
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     src.To4(),
		},
	}
}
