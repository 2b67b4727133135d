package cmd

import (
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knockgate/knockd/internal/decoy"
	"github.com/knockgate/knockd/internal/logging"
)

// decoyCmd represents the decoy command
var decoyCmd = &cobra.Command{
	Use:   "decoy",
	Short: "Run the SSH-like decoy responder",
	Long: `Accepts connections on a decoy port and walks each peer through a
fake SSH login, logging captured credentials and commands. Purely a
distraction; it grants no access.`,
	Run: decoyMain,
}

func init() {
	rootCmd.AddCommand(decoyCmd)

	decoyCmd.Flags().StringP("listen", "l", "0.0.0.0", "Address to listen on")
	decoyCmd.Flags().Uint16P("port", "p", 22, "Decoy port")
	decoyCmd.Flags().String("log-file", "", "Also append session logs to this file")
}

func decoyMain(cmd *cobra.Command, args []string) {
	listenAddr, _ := cmd.Flags().GetString("listen")
	port, _ := cmd.Flags().GetUint16("port")
	logFile, _ := cmd.Flags().GetString("log-file")

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logging.SetupWriter(io.MultiWriter(os.Stderr, f), level, false)
	}

	srv, err := decoy.Listen(listenAddr, port)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
