package cmd

import (
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"

	"github.com/knockgate/knockd/internal/config"
	"github.com/knockgate/knockd/internal/firewall"
	"github.com/knockgate/knockd/internal/knockd"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the knock server",
	Long: `Runs the knock gate: one listener per sequence port, the shared
sequence tracker and the firewall gate for the protected port.`,
	Run: func(cmd *cobra.Command, args []string) {
		serverMain(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringP("sequence", "s", "1234,5678,9012", "Comma-separated knock ports")
	serverCmd.Flags().Uint16P("protected-port", "p", config.DEFAULT_PROTECTED_PORT, "Protected service port")
	serverCmd.Flags().Float64P("window", "w", 10.0, "Seconds allowed to complete the sequence")
	serverCmd.Flags().Float64P("ttl", "t", 30.0, "Seconds to keep the protected port open after success")
	serverCmd.Flags().StringP("backend", "b", "iptables", "Firewall backend: iptables, nftables or mock")
	serverCmd.Flags().StringP("config", "c", "", "YAML config file (flags override it)")
	serverCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address, e.g. 127.0.0.1:9101")
}

// serverConfig resolves the effective config: file values first, then any
// flag the operator set explicitly on top. Configuration errors are fatal;
// there is no partial startup.
func serverConfig(cmd *cobra.Command) *config.AppConfig {
	var cfg *config.AppConfig
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if cmd.Flags().Changed("sequence") {
		spec, _ := cmd.Flags().GetString("sequence")
		sequence, err := config.ParseSequence(spec)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg.Sequence = sequence
	}
	if cmd.Flags().Changed("protected-port") {
		cfg.ProtectedPort, _ = cmd.Flags().GetUint16("protected-port")
	}
	if cmd.Flags().Changed("window") {
		window, _ := cmd.Flags().GetFloat64("window")
		cfg.Window = time.Duration(window * float64(time.Second))
	}
	if cmd.Flags().Changed("ttl") {
		ttl, _ := cmd.Flags().GetFloat64("ttl")
		cfg.OpenTTL = time.Duration(ttl * float64(time.Second))
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend, _ = cmd.Flags().GetString("backend")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func serverMain(cmd *cobra.Command) {
	cfg := serverConfig(cmd)

	backendType, err := firewall.BackendTypeFromString(cfg.Backend)
	if err != nil {
		log.Fatalf("%v", err)
	}
	backend, err := firewall.NewBackend(backendType)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if metricsAddr, _ := cmd.Flags().GetString("metrics-addr"); metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := knockd.NewServer(cfg, backend)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics endpoint failed: %v", err)
	}
}
