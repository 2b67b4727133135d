package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/knockgate/knockd/internal/config"
	"github.com/knockgate/knockd/internal/knock"
)

// knockCmd represents the knock command
var knockCmd = &cobra.Command{
	Use:   "knock",
	Short: "Send a knock sequence to a knock server",
	Long: `Connects to each knock port in order. A refused connection still
counts: the server only sees the connection attempt. Pass --verify to probe
the protected port after knocking.`,
	Run: knockMain,
}

func init() {
	rootCmd.AddCommand(knockCmd)

	knockCmd.Flags().StringP("host", "H", "", "Knock server to knock on")
	knockCmd.Flags().StringP("sequence", "s", "1234,5678,9012", "Comma-separated knock ports")
	knockCmd.Flags().Duration("delay", 200*time.Millisecond, "Pause between knocks")
	knockCmd.Flags().Duration("timeout", 2*time.Second, "Per-knock dial timeout")
	knockCmd.Flags().Uint16("verify", 0, "Protected port to probe after knocking (0 = skip)")
	knockCmd.MarkFlagRequired("host")
}

func knockMain(cmd *cobra.Command, args []string) {
	host, _ := cmd.Flags().GetString("host")
	spec, _ := cmd.Flags().GetString("sequence")
	delay, _ := cmd.Flags().GetDuration("delay")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	verify, _ := cmd.Flags().GetUint16("verify")

	sequence, err := config.ParseSequence(spec)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := knock.Options{
		Host:    host,
		Ports:   sequence,
		Delay:   delay,
		Timeout: timeout,
		Verify:  verify,
	}
	result, err := knock.Send(cmd.Context(), opts)
	if err != nil {
		log.Fatalf("%v", err)
	}

	for i, r := range result.Results {
		state := "sent"
		if r.Err != nil {
			state = "sent (no listener)"
		}
		fmt.Printf("knock %d/%d on %d: %s (%.1f ms)\n",
			i+1, len(result.Results), r.Port, state,
			float64(r.Duration.Microseconds())/1000.0)
	}
	if verify != 0 {
		if result.Verified {
			fmt.Printf("protected port %d is open\n", verify)
		} else {
			fmt.Printf("protected port %d did not answer\n", verify)
		}
	}
}
