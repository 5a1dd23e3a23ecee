package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tjohnman/modular-ai-agent/internal/bus"
	"github.com/tjohnman/modular-ai-agent/internal/channel"
	"github.com/tjohnman/modular-ai-agent/internal/config"
	"github.com/tjohnman/modular-ai-agent/internal/dispatch"
	"github.com/tjohnman/modular-ai-agent/internal/journal"
	"github.com/tjohnman/modular-ai-agent/internal/logging"
	"github.com/tjohnman/modular-ai-agent/internal/provider"
	"github.com/tjohnman/modular-ai-agent/internal/sched"
	"github.com/tjohnman/modular-ai-agent/internal/store"
	"github.com/tjohnman/modular-ai-agent/internal/tool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logSvc, err := logging.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logSvc.Close()
	log := logSvc.Logger

	st, err := store.New(cfg.SessionsDir, cfg.MemoryDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	db, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()
	jrnl := journal.New(db)

	queue := bus.NewQueue()
	defer queue.Close()

	scheduler, err := sched.New(st, log, func(task sched.Task) error {
		queue.Push(bus.TaskFired{Channel: task.ChannelName, Task: task})
		return nil
	})
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	registry := tool.NewRegistry(tool.RegisterBuiltins)
	log.Info("tools registered", "count", registry.Len())

	prov := provider.WithRetry(
		provider.NewOpenAI(cfg.ProviderAPIKey, cfg.ProviderBaseURL, cfg.ProviderModel, log),
		log,
	)

	var channels []channel.Channel
	for _, name := range cfg.Channels {
		switch name {
		case "terminal":
			channels = append(channels, channel.NewTerminal(log))
		case "websocket":
			ws := channel.NewWebSocket(cfg.WSAddr, log)
			if err := ws.Start(); err != nil {
				return fmt.Errorf("start websocket channel: %w", err)
			}
			defer ws.Close()
			channels = append(channels, ws)
		default:
			log.Error("unknown channel in config", "channel", name)
		}
	}
	if len(channels) == 0 {
		return fmt.Errorf("no channels configured")
	}

	dispatcher := dispatch.New(queue, st, scheduler, prov, registry, jrnl, channels, log, dispatch.Options{
		WorkspaceDir:     cfg.WorkspaceDir,
		HostWorkspace:    cfg.HostWorkspace,
		SystemPromptPath: cfg.SystemPrompt,
		CompactThreshold: cfg.CompactThreshold,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	log.Info("agentd started", "session", st.SessionFile(), "channels", cfg.Channels, "model", cfg.ProviderModel)
	return dispatcher.Run(ctx)
}
