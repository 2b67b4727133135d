package cmd

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/knockgate/knockd/internal/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "TCP connect scan a target",
	Long: `Sequentially connect-scans the given ports, measuring connect
latency and grabbing whatever banner the service volunteers.`,
	Run: scanMain,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("target", "T", "", "Target hostname or IP")
	scanCmd.Flags().StringP("ports", "P", "", `Ports, e.g. "1-1024" or "22,80,443"`)
	scanCmd.Flags().Duration("timeout", time.Second, "Per-port connect timeout")
	scanCmd.MarkFlagRequired("target")
	scanCmd.MarkFlagRequired("ports")
}

func scanMain(cmd *cobra.Command, args []string) {
	target, _ := cmd.Flags().GetString("target")
	spec, _ := cmd.Flags().GetString("ports")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ports, err := scanner.ParsePorts(spec)
	if err != nil {
		log.Fatalf("%v", err)
	}
	resolved, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		log.Fatalf("could not resolve target %s: %v", target, err)
	}

	fmt.Printf("target: %s (%s), %d ports, timeout %s\n\n",
		target, resolved, len(ports), timeout)

	results, err := scanner.Scan(cmd.Context(), scanner.Options{
		Target:  target,
		Ports:   ports,
		Timeout: timeout,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	var open []uint16
	for _, r := range results {
		state := "closed"
		if r.Open {
			state = "open"
			open = append(open, r.Port)
		}
		fmt.Printf("port %5d: %-6s | %7.1f ms", r.Port, state,
			float64(r.RTT.Microseconds())/1000.0)
		if r.Service != "" {
			fmt.Printf(" | %s", r.Service)
		}
		if r.Banner != "" {
			fmt.Printf(" | banner: %s", r.Banner)
		}
		fmt.Println()
	}

	fmt.Printf("\nscan complete, %d open port(s)", len(open))
	if len(open) > 0 {
		fmt.Printf(": %v", open)
	}
	fmt.Println()
}
