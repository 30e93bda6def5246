package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"noeta/internal/config"
	"noeta/internal/llm"
	"noeta/internal/tools"
	"noeta/internal/transport"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket transport and tool registry until interrupted",
	Long: `Boots the belief base from the workspace's persisted snapshot, starts
the tool registry and (if an LLM API key is configured) the llmComplete and
noteSummary tools, and serves the Client Message Protocol over WebSocket
until interrupted, saving the snapshot back out on shutdown.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "override the configured listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	b, err := bootCognition()
	if err != nil {
		return err
	}
	defer b.close()

	addr := b.FileCfg.Transport.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}

	registry := tools.New(b.Cog.Bus)
	stopTools := registry.Start()
	defer stopTools()

	cfgWatcher, err := config.NewWatcher(func(cfg config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed, keeping previous settings", zap.Error(err))
			return
		}
		b.Cog.SetContradictionPolicy(cfg.ContradictionPolicy())
		logger.Info("config reloaded", zap.String("contradiction_policy", cfg.Reasoning.ContradictionPolicy))
	})
	if err != nil {
		logger.Warn("config file watcher unavailable, edits to .noeta/config.json require a restart", zap.Error(err))
	} else if err := cfgWatcher.Start(); err != nil {
		logger.Warn("config file watcher failed to start", zap.Error(err))
	} else {
		defer cfgWatcher.Stop()
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	key := apiKey
	if key == "" {
		key = os.Getenv("NOETA_LLM_API_KEY")
	}
	if key != "" {
		llmClient, err := llm.New(baseCtx, key, "")
		if err != nil {
			logger.Warn("llm client unavailable, skipping llmComplete/noteSummary tools", zap.Error(err))
		} else {
			registerLLMTools(registry, b, llmClient)
		}
	}

	srv := transport.New(b.Cog, b.FileCfg.Transport.StaticDir)

	ctx, cancel := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("noeta serving", zap.String("addr", addr))
	serveErr := srv.ListenAndServe(ctx, addr)

	if err := b.save(); err != nil {
		logger.Error("failed to save snapshot on shutdown", zap.Error(err))
	}
	return serveErr
}

// registerLLMTools wires the two tools SPEC_FULL.md §4.14 names as
// llm.Client's callers: llmComplete (a raw prompt passthrough) and
// noteSummary (summarizes one note's text).
func registerLLMTools(registry *tools.Registry, b *booted, llmClient *llm.Client) {
	registry.Register("llmComplete", func(ctx context.Context, params map[string]any) (any, error) {
		prompt, _ := params["prompt"].(string)
		if prompt == "" {
			return nil, fmt.Errorf("llmComplete: missing prompt parameter")
		}
		return llmClient.Complete(ctx, prompt)
	})

	registry.Register("noteSummary", func(ctx context.Context, params map[string]any) (any, error) {
		noteID, _ := params["noteId"].(string)
		if noteID == "" {
			return nil, fmt.Errorf("noteSummary: missing noteId parameter")
		}
		n, ok := b.Cog.Notes.Get(noteID)
		if !ok {
			return nil, fmt.Errorf("noteSummary: unknown note %q", noteID)
		}
		prompt := "Summarize the following note in one or two sentences:\n\n" + n.Text
		return llmClient.Complete(ctx, prompt)
	})
}
