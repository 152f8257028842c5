package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aeolun/mudclient/pkg/devserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := devserver.DefaultConfig()
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mudclient-devserver",
		Short: "Local game server for trying out mudclient",
		Long: `mudclient-devserver runs a small lobby game that speaks the mudclient
wire protocol over TCP, WebSocket and SSH. Accounts live in memory and are
lost on exit. Pass an empty address to disable a listener.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config, metricsAddr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config.TCPAddr, "tcp", config.TCPAddr, "TCP listen address")
	flags.StringVar(&config.WSAddr, "ws", config.WSAddr, "WebSocket listen address (served at /ws)")
	flags.StringVar(&config.SSHAddr, "ssh", config.SSHAddr, "SSH listen address")
	flags.StringVar(&config.SSHHostKeyPath, "host-key", config.SSHHostKeyPath, "SSH host key file, created if missing (empty for an in-memory key)")
	flags.StringVar(&config.Version, "game-version", config.Version, "Version clients must match")
	flags.StringVar(&config.Motd, "motd", config.Motd, "Message of the day shown after login")
	flags.DurationVar(&config.KeepaliveInterval, "keepalive", config.KeepaliveInterval, "Keepalive interval (0 disables)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func run(config devserver.Config, metricsAddr string) error {
	logger := log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

	srv := devserver.New(config, devserver.Lobby{}, devserver.NewAccounts())
	srv.SetLogger(logger)

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		srv.SetMetrics(devserver.NewMetrics(reg))

		metricsServer := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("Serving metrics on http://%s/metrics", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
		defer metricsServer.Close()
	}

	if err := srv.Start(); err != nil {
		return err
	}
	logger.Printf("Development server started (game version %s)", config.Version)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Println("Shutting down server...")
	if err := srv.Stop(); err != nil {
		logger.Printf("Error during shutdown: %v", err)
	}
	logger.Println("Server stopped")
	return nil
}
