package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/knockgate/knockd/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "knockd",
	Short: "Port knocking gate",
	Long: `knockd keeps a protected TCP port closed by default and opens it,
per source address and for a limited time, after that address has knocked
the secret port sequence in order.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logging.Setup(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
