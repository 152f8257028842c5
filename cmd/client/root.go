package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aeolun/mudclient/pkg/client"
	"github.com/aeolun/mudclient/pkg/command"
	"github.com/aeolun/mudclient/pkg/prompt"
	"github.com/aeolun/mudclient/pkg/terminal"
)

type rootFlags struct {
	server      string
	configPath  string
	logFile     string
	plain       bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "mudclient",
		Short: "Terminal client for text game servers",
		Long: `mudclient connects to a text game server, checks that both sides
speak the same version, logs you in and then relays the game between your
terminal and the server.

Server addresses may be host[:port], tcp://, ssh://[user@]host[:port],
ws:// or wss://.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", client.DefaultConfigPath(), "Path to config file")
	cmd.Flags().StringVar(&flags.server, "server", "", "Server address (overrides config)")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Write a debug log to this file (overrides config)")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Use plain line prompts instead of interactive ones")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")

	cmd.AddCommand(newVersionCmd(), newConfigCmd(flags), newTranscriptCmd(flags))
	return cmd
}

func runClient(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := client.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.server != "" {
		cfg.Connection.Server = flags.server
	}
	if flags.logFile != "" {
		cfg.Local.LogFile = flags.logFile
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.ListenAddr = flags.metricsAddr
	}

	logger, closeLog, err := openLogger(&cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Printf("mudclient %s starting, config %s", Version, flags.configPath)

	ep, err := client.ParseEndpoint(cfg.ServerAddress())
	if err != nil {
		return err
	}
	ep.SetLogger(logger)
	if ep.Warning != "" {
		styles := terminal.NewStyles(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), styles.Warning.Render("Warning: "+ep.Warning))
	}

	out := cmd.OutOrStdout()
	tty := terminal.New(os.Stdout)
	registry := command.NewRegistry()
	command.RegisterBuiltins(registry, tty, out)

	opts := client.Options{
		Opener:         ep,
		Version:        Version,
		Prompt:         newPrompter(&cfg, flags.plain),
		Out:            out,
		Dispatcher:     registry,
		Sizer:          tty,
		FallbackWidth:  cfg.Terminal.FallbackWidth,
		FallbackHeight: cfg.Terminal.FallbackHeight,
		Logger:         logger,
	}

	if cfg.Metrics.ListenAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts.Metrics = client.NewMetrics(reg)
		stop := serveMetrics(cfg.Metrics.ListenAddr, reg, logger)
		defer stop()
	}

	transcriptPath, err := cfg.TranscriptPath()
	if err != nil {
		return err
	}
	if transcriptPath != "" {
		transcript, err := client.OpenTranscript(transcriptPath, logger)
		if err != nil {
			// The session does not depend on the transcript
			logger.Printf("Transcript disabled: %v", err)
		} else {
			defer transcript.Close()
			opts.Transcript = transcript
		}
	}

	if cfg.Notify.OnDisconnect {
		opts.Notifier = client.DesktopNotifier{AppName: "mudclient"}
	}

	c, err := client.New(opts)
	if err != nil {
		return err
	}

	err = c.Run()
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, prompt.ErrAborted) {
		return nil
	}
	logger.Printf("Client stopped: %v", err)
	return &exitError{err: err}
}

// openLogger returns the debug logger: a rotating file when configured,
// otherwise a logger that discards everything.
func openLogger(cfg *client.Config) (*log.Logger, func(), error) {
	path, err := cfg.LogFilePath()
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		return log.New(io.Discard, "", 0), func() {}, nil
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	logger := log.New(lj, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return logger, func() { lj.Close() }, nil
}

func newPrompter(cfg *client.Config, plain bool) prompt.Prompter {
	if !plain && cfg.Terminal.InteractivePrompts && term.IsTerminal(int(os.Stdin.Fd())) {
		return prompt.NewInteractive(os.Stdin, os.Stdout)
	}
	return prompt.NewLine(os.Stdin, os.Stdout)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("Serving metrics on http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Metrics server error: %v", err)
		}
	}()
	return func() { srv.Close() }
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mudclient %s\n", Version)
		},
	}
}
