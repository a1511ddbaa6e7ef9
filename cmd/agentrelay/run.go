package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/boat-builder/agentrelay"
	"github.com/boat-builder/agentrelay/mcpsource"
	"github.com/boat-builder/agentrelay/metrics"
	"github.com/boat-builder/agentrelay/prompts"
	"github.com/spf13/cobra"
)

const defaultInstructions = "Use the tools to answer the questions."

var (
	sessionID    string
	instructions string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run one prompt and stream the answer",
	Example: `  agentrelay run "stream up to 10 numbers."
  MCP_URL=http://localhost:8000/mcp MCP_TRANSPORT=streamable agentrelay run "What's the secret word?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := agentrelay.LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.MetricsAddr != "" {
			go serveMetrics(cfg.MetricsAddr, logger)
		}

		return runPrompt(ctx, cfg, logger, strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID; continues the stored transcript when a database is configured")
	runCmd.Flags().StringVar(&instructions, "instructions", defaultInstructions, "Agent instructions")
}

func runPrompt(ctx context.Context, cfg *agentrelay.Config, logger *slog.Logger, input string) error {
	client, err := mcpsource.Connect(ctx, mcpsource.Config{
		URL:       cfg.MCPURL,
		Transport: cfg.MCPTransport,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server %s: %w", cfg.MCPURL, err)
	}
	defer client.Close()

	tools, err := client.Tools(ctx)
	if err != nil {
		return err
	}
	logger.Info("Connected to MCP server", "url", cfg.MCPURL, "tools", len(tools))

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name())
	}
	prompt, err := prompts.AgentPrompt(prompts.AgentPromptData{
		Instructions: instructions,
		ToolNames:    names,
		Streaming:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to render agent prompt: %w", err)
	}

	agent := agentrelay.NewAgent("Assistant", prompt, tools)
	agent.SetLogger(logger)
	agent.SetMaxTurns(cfg.MaxTurns)

	var store agentrelay.TranscriptStore
	if cfg.DB != "" {
		store, err = agentrelay.OpenTranscriptStore(cfg.DB)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	if sessionID != "" {
		ctx = agentrelay.WithSessionID(ctx, sessionID)
	}

	streamable := &agentrelay.StreamableAgent{
		Agent:    agent,
		LLM:      agentrelay.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
		Model:    cfg.Model,
		Notifier: client,
		Store:    store,
		Options:  append(cfg.StreamOptions(), agentrelay.WithLogger(logger)),
	}

	stream, err := streamable.RunStreamed(ctx, sessionID, input)
	if err != nil {
		return err
	}

	fmt.Printf("Running: %s\n", input)
	for ev, err := range stream.Events(ctx) {
		if err != nil {
			fmt.Println()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if delta, ok := ev.TextDelta(); ok {
			fmt.Print(delta)
		}
	}
	fmt.Println()

	if cost, ok := stream.Run().Cost(cfg.Model); ok {
		logger.Info("Run finished",
			"input_tokens", cost.InputTokens,
			"output_tokens", cost.OutputTokens,
			"cost_usd", cost.TotalCost)
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server stopped", "error", err)
	}
}
