package cmd

import (
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knockgate/knockd/internal/config"
	"github.com/knockgate/knockd/internal/protected"
)

// protectedCmd represents the protected command
var protectedCmd = &cobra.Command{
	Use:   "protected",
	Short: "Run the demo protected service",
	Long: `A plain TCP service that confirms the gate works: once the knock
sequence has opened the firewall for you, connecting here returns a fixed
confirmation line.`,
	Run: protectedMain,
}

func init() {
	rootCmd.AddCommand(protectedCmd)

	protectedCmd.Flags().StringP("listen", "l", "0.0.0.0", "Address to listen on")
	protectedCmd.Flags().Uint16P("port", "p", config.DEFAULT_PROTECTED_PORT, "Port to listen on")
}

func protectedMain(cmd *cobra.Command, args []string) {
	listenAddr, _ := cmd.Flags().GetString("listen")
	port, _ := cmd.Flags().GetUint16("port")

	srv, err := protected.Listen(listenAddr, port)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
