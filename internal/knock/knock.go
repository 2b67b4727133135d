// Package knock sends knock sequences from the client side. A knock is a
// bare TCP connect attempt; a refused connection still counts as delivered
// because the server only cares about the SYN arriving.
package knock

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Options configures a knock sequence run.
type Options struct {
	Host    string
	Ports   []uint16
	Delay   time.Duration // pause between knocks
	Timeout time.Duration // per-knock dial timeout
	Verify  uint16        // protected port to probe afterwards, 0 to skip
}

// DefaultOptions returns sensible client defaults.
func DefaultOptions() Options {
	return Options{
		Delay:   200 * time.Millisecond,
		Timeout: 2 * time.Second,
	}
}

// Result describes one sent knock.
type Result struct {
	Port     uint16
	Duration time.Duration
	Err      error // dial error, informational only
}

// SequenceResult is the outcome of a full knock run.
type SequenceResult struct {
	Results  []Result
	Verified bool // protected port answered after the sequence
}

// Send fires the knock sequence at the host, in order, with the configured
// delay between knocks. Dial failures on individual knocks do not abort
// the run: closed and filtered knock ports are normal, the connect attempt
// is the signal.
func Send(ctx context.Context, opts Options) (*SequenceResult, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if len(opts.Ports) == 0 {
		return nil, fmt.Errorf("at least one knock port is required")
	}
	if opts.Delay <= 0 {
		opts.Delay = 200 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}

	result := &SequenceResult{Results: make([]Result, 0, len(opts.Ports))}
	for i, port := range opts.Ports {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		start := time.Now()
		conn, err := net.DialTimeout("tcp", hostPort(opts.Host, port), opts.Timeout)
		if err == nil {
			conn.Close()
		}
		result.Results = append(result.Results, Result{
			Port:     port,
			Duration: time.Since(start),
			Err:      err,
		})

		if i < len(opts.Ports)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
	}

	if opts.Verify != 0 {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(opts.Delay):
		}
		conn, err := net.DialTimeout("tcp", hostPort(opts.Host, opts.Verify), opts.Timeout)
		if err == nil {
			conn.Close()
			result.Verified = true
		}
	}
	return result, nil
}

func hostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
