package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/gpirm/pkg/bootcfg"
	"github.com/cuemby/gpirm/pkg/rm"
	"github.com/cuemby/gpirm/pkg/rmlog"
	"github.com/cuemby/gpirm/pkg/rmmetrics"
	"github.com/spf13/cobra"
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot the resource manager",
	Long: `boot constructs the Reactor from a BootInfo record (the untyped memory
region list and root-task PD id a kernel would pass at startup), wires every
component together, and serves Prometheus metrics until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		info := bootcfg.Default()
		if configPath != "" {
			loaded, err := bootcfg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load boot config: %w", err)
			}
			info = loaded
		}
		if metricsAddr != "" {
			info.MetricsAddr = metricsAddr
		}

		reactor, err := rm.Boot(info)
		if err != nil {
			return fmt.Errorf("boot resource manager: %w", err)
		}

		logger := rmlog.WithComponent("gpirm")

		mux := http.NewServeMux()
		mux.Handle("/metrics", rmmetrics.Handler())
		srv := &http.Server{Addr: info.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		logger.Info().Str("addr", info.MetricsAddr).Msg("metrics endpoint listening")

		fmt.Printf("gpirm booted. root PD: %d, cleanup policy: %s, frames: %d\n",
			reactor.RootPDID, info.CleanupPolicy, reactor.Pool.Total())
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		return srv.Close()
	},
}

func init() {
	bootCmd.Flags().String("config", "", "Path to a YAML boot config (defaults built in if unset)")
	bootCmd.Flags().String("metrics-addr", "", "Override the boot config's metrics listen address")
}
