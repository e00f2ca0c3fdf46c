// Command llmtap is the CLI front-end for the llmtap pipeline: an
// intercepting proxy, a trace normaliser ("cook"), and a collaborator
// viewer. Exactly these three subcommands exist, matching the CLI
// surface contract.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/llmtap/llmtap/internal/capture"
	"github.com/llmtap/llmtap/internal/config"
	"github.com/llmtap/llmtap/internal/cook"
	"github.com/llmtap/llmtap/internal/metrics"
	"github.com/llmtap/llmtap/internal/proxy"
	"github.com/llmtap/llmtap/internal/tracing"
	"github.com/llmtap/llmtap/internal/viewer"
)

// exitError carries the process exit code a failure should produce.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func invalidArgs(format string, a ...interface{}) error {
	return &exitError{code: 2, err: fmt.Errorf(format, a...)}
}

func runtimeFailure(err error) error {
	return &exitError{code: 1, err: err}
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			color.New(color.FgRed).Fprintln(os.Stderr, "error:", ee.err)
			os.Exit(ee.code)
		}
		// Every RunE returns an exitError, so anything else comes from
		// cobra's own argument and flag validation.
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmtap",
		Short:         "Observe, normalise, and visualise LLM API traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newProxyCmd(), newCookCmd(), newViewerCmd())
	return root
}

func newProxyCmd() *cobra.Command {
	var (
		host       string
		port       int
		target     string
		output     string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the intercepting streaming proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return invalidArgs("%v", err)
			}
			if host != "" {
				cfg.Proxy.Host = host
			}
			if port != 0 {
				cfg.Proxy.Port = port
			}
			if target != "" {
				cfg.Proxy.Target = target
			}
			if output != "" {
				cfg.Proxy.Output = output
			}
			if cfg.Proxy.Target == "" {
				return invalidArgs("--target is required")
			}
			if cfg.Proxy.Output == "" {
				return invalidArgs("--output is required")
			}
			return runProxy(cfg.Proxy)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "bind host (default 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "bind port")
	cmd.Flags().StringVar(&target, "target", "", "upstream LLM API base URL")
	cmd.Flags().StringVarP(&output, "output", "o", "", "capture log path")
	cmd.Flags().StringVar(&configPath, "config", "", "optional config file")
	return cmd
}

func runProxy(cfg config.ProxyConfig) error {
	shutdownTracing := tracing.Configure()
	defer shutdownTracing(context.Background())

	log, err := capture.Open(cfg.Output)
	if err != nil {
		return runtimeFailure(err)
	}
	defer log.Close()

	m, reg := metrics.New()
	p, err := proxy.New(proxy.Options{
		Target:          cfg.Target,
		ConnectTimeout:  cfg.ConnectTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		DisconnectGrace: cfg.DisconnectGrace,
	}, log, m)
	if err != nil {
		return invalidArgs("%v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/_metrics", metrics.Handler(reg))
	mux.Handle("/", p)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("proxy listening", "addr", addr, "target", cfg.Target, "output", cfg.Output)
		color.New(color.FgGreen).Printf("llmtap proxy listening on %s, forwarding to %s\n", addr, cfg.Target)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return runtimeFailure(fmt.Errorf("binding %s: %w", addr, err))
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DisconnectGrace)
		defer cancel()
		return runtimeFailureIfNonNil(server.Shutdown(shutdownCtx))
	}
}

func runtimeFailureIfNonNil(err error) error {
	if err == nil {
		return nil
	}
	return runtimeFailure(err)
}

func newCookCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "cook INPUT",
		Short: "Normalise a capture log into a derived artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return invalidArgs("-o/--output is required")
			}
			input := args[0]
			if _, err := os.Stat(input); err != nil {
				return runtimeFailure(fmt.Errorf("reading %s: %w", input, err))
			}

			summary, err := cook.Run(input, output)
			if err != nil {
				return runtimeFailure(err)
			}

			color.New(color.FgGreen).Printf(
				"cooked %s records (%s skipped) -> %d messages, %d tools, %d requests\n",
				humanize.Comma(int64(summary.RecordsRead)),
				humanize.Comma(int64(summary.RecordsSkipped)),
				summary.Messages, summary.Tools, summary.Requests,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "derived artifact output path")
	return cmd
}

func newViewerCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "viewer INPUT",
		Short: "Serve the collaborator viewer over the derived artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if _, err := os.Stat(input); err != nil {
				return runtimeFailure(fmt.Errorf("reading %s: %w", input, err))
			}
			output := input + ".cooked.json"

			s, err := viewer.New(viewer.Options{InputPath: input, OutputPath: output})
			if err != nil {
				return runtimeFailure(err)
			}
			defer s.Close()

			if err := s.EnsureFresh(); err != nil {
				return runtimeFailure(err)
			}

			addr := fmt.Sprintf("%s:%d", host, port)
			server := &http.Server{Addr: addr, Handler: s}

			errCh := make(chan error, 1)
			go func() {
				color.New(color.FgGreen).Printf("llmtap viewer listening on http://%s\n", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return runtimeFailure(fmt.Errorf("binding %s: %w", addr, err))
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5e9)
				defer cancel()
				return runtimeFailureIfNonNil(server.Shutdown(shutdownCtx))
			}
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "bind host")
	cmd.Flags().IntVar(&port, "port", 8788, "bind port")
	return cmd
}
