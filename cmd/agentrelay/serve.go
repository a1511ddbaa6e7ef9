package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boat-builder/agentrelay"
	"github.com/boat-builder/agentrelay/demoserver"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveDelay time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo MCP server",
	Long: `Serve an MCP server whose stream_numbers tool sends one notification per
number while it runs. SSE is served at /sse and streamable HTTP at /mcp.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := agentrelay.LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:    serveAddr,
			Handler: demoserver.Handler(demoserver.New(demoserver.Options{Delay: serveDelay, Logger: logger})),
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Info("Serving demo MCP server", "addr", serveAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8000", "Listen address")
	serveCmd.Flags().DurationVar(&serveDelay, "delay", 500*time.Millisecond, "Delay between streamed numbers")
}
