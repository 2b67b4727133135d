// Package scanner implements a sequential TCP connect scanner with banner
// grabbing. It exists to demo and verify the gate from the outside; there
// is no concurrency coordination beyond iterating the port list.
package scanner

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

const bannerReadLimit = 512
const bannerReadTimeout = 500 * time.Millisecond

// Result is the outcome of probing one port.
type Result struct {
	Port    uint16
	Open    bool
	RTT     time.Duration
	Banner  string
	Service string
}

// Options configures a scan.
type Options struct {
	Target  string
	Ports   []uint16
	Timeout time.Duration // per-port connect timeout
}

// ParsePorts parses a port spec such as "1-1024", "22,80,443" or a mix
// "1-1024,3306". The result is sorted and de-duplicated.
func ParsePorts(spec string) ([]uint16, error) {
	seen := make(map[uint16]struct{})
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if a, b, isRange := strings.Cut(part, "-"); isRange {
			start, err := parsePort(a)
			if err != nil {
				return nil, err
			}
			end, err := parsePort(b)
			if err != nil {
				return nil, err
			}
			if start > end {
				start, end = end, start
			}
			for p := int(start); p <= int(end); p++ {
				seen[uint16(p)] = struct{}{}
			}
			continue
		}
		port, err := parsePort(part)
		if err != nil {
			return nil, err
		}
		seen[port] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("empty port spec")
	}

	ports := make([]uint16, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports, nil
}

func parsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be 1-65535", s)
	}
	return uint16(port), nil
}

// ScanPort connect-scans a single port, measuring connect latency and
// grabbing a short banner when the port is open.
func ScanPort(target string, port uint16, timeout time.Duration) Result {
	result := Result{Port: port}
	start := time.Now()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(target, strconv.Itoa(int(port))), timeout)
	result.RTT = time.Since(start)
	if err != nil {
		return result
	}
	defer conn.Close()

	result.Open = true
	result.Banner = grabBanner(conn)
	result.Service = guessService(port, result.Banner)
	return result
}

// Scan probes every port in order and returns one Result per port. The
// context cancels a scan between ports.
func Scan(ctx context.Context, opts Options) ([]Result, error) {
	if opts.Target == "" {
		return nil, fmt.Errorf("target is required")
	}
	if len(opts.Ports) == 0 {
		return nil, fmt.Errorf("at least one port is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}

	results := make([]Result, 0, len(opts.Ports))
	for _, port := range opts.Ports {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		results = append(results, ScanPort(opts.Target, port, timeout))
	}
	return results, nil
}

// grabBanner reads whatever the service volunteers right after connect,
// squashed to a single trimmed line.
func grabBanner(conn net.Conn) string {
	conn.SetReadDeadline(time.Now().Add(bannerReadTimeout))
	buffer := make([]byte, bannerReadLimit)
	n, err := conn.Read(buffer)
	if err != nil || n == 0 {
		return ""
	}
	banner := strings.Join(strings.Fields(string(buffer[:n])), " ")
	if len(banner) > 120 {
		banner = banner[:120]
	}
	return banner
}

func guessService(port uint16, banner string) string {
	b := strings.ToLower(banner)
	switch {
	case port == 3306 || strings.Contains(b, "mysql"):
		return "MySQL"
	case port == 6379 || strings.Contains(b, "redis"):
		return "Redis"
	case port == 80 || port == 443 || port == 8080 || strings.Contains(b, "http"):
		return "HTTP"
	case port == 22 || port == 2222 || strings.Contains(b, "ssh"):
		return "SSH"
	}
	if banner != "" {
		return "Unknown"
	}
	return ""
}
