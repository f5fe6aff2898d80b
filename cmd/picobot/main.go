package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/local/picobot/internal/agent"
	"github.com/local/picobot/internal/channels"
	"github.com/local/picobot/internal/chat"
	"github.com/local/picobot/internal/config"
	"github.com/local/picobot/internal/embedding"
	"github.com/local/picobot/internal/llm"
	"github.com/local/picobot/internal/memory"
	"github.com/local/picobot/internal/scheduler"
	"github.com/local/picobot/internal/skills"
	"github.com/local/picobot/internal/tools"
)

const version = "0.1.0"

// NewRootCmd assembles the picobot CLI: a long-running `run` that wires up
// every C1-C8 component plus a trivial `version`.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "picobot",
		Short: "picobot — a persistent, tool-using conversational agent runtime",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the picobot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "picobot v%s\n", version)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent runtime and configured transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			return run(cfgPath)
		},
	}
	runCmd.Flags().StringP("config", "c", "config.toml", "Path to the TOML configuration file")
	rootCmd.AddCommand(runCmd)

	return rootCmd
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var embedder memory.Embedder
	dimensions := config.DefaultEmbeddingDims
	if cfg.Embedding != nil {
		embedder = embedding.New(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model)
		dimensions = cfg.Embedding.Dimensions
	}

	store, err := memory.Open(cfg.Memory.DatabasePath, dimensions, embedder)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer store.Close()

	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey)

	reg := tools.NewRegistry()
	tools.NewBuiltinTools(reg, cfg.Sandbox.AllowedDirectory)
	tools.RegisterExternalTools(ctx, reg, cfg.Tools)

	skillRegistry := skills.NewRegistry(cfg.Skills.Directory)
	if err := skillRegistry.Reload(); err != nil {
		log.Printf("skills: initial load of %s failed: %v", cfg.Skills.Directory, err)
	}

	engine := scheduler.NewEngine()
	engine.Start()
	defer engine.Stop()

	hub := chat.NewHub(256)

	// The agent and the scheduler manager need each other: the manager's
	// fire callback routes back through the agent, and the agent's
	// schedule_task tool needs the manager. ag is wired into the forwarding
	// closure first, then assigned once agent.New has run, so the closure
	// never observes a nil *Agent after run() finishes setup.
	var ag *agent.Agent
	mgr := scheduler.NewManager(engine, store.ScheduledTaskStore(), func(ctx context.Context, incoming chat.Inbound) (string, error) {
		return ag.ProcessWithReplyChannel(ctx, incoming, hub.Out)
	})

	ag = agent.New(cfg, llmClient, store, reg, skillRegistry, mgr)

	if err := mgr.Restore(ctx, hub.Out); err != nil {
		log.Printf("scheduler: failed to restore scheduled tasks: %v", err)
	}
	if _, err := mgr.RegisterHeartbeat(func(ctx context.Context) {
		log.Println("heartbeat: bot is alive")
	}); err != nil {
		log.Printf("scheduler: failed to register heartbeat job: %v", err)
	}
	go mgr.RunFireConsumer(ctx)

	if err := channels.StartProxy(ctx, hub); err != nil {
		return fmt.Errorf("failed to start proxy channel: %w", err)
	}
	if cfg.Transport.Ntfy.Enabled {
		if err := channels.StartNtfy(ctx, hub, cfg.Transport.Ntfy.Server, cfg.Transport.Ntfy.Token, cfg.Transport.Ntfy.Topic); err != nil {
			log.Printf("ntfy: failed to start channel: %v", err)
		}
	}

	go runLoop(ctx, hub, ag)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("picobot: shutting down")
	cancel()
	return nil
}

// runLoop drains inbound chat messages and replies on the same hub, keeping
// the scheduler's reply channel and ordinary transport traffic on one path.
func runLoop(ctx context.Context, hub *chat.Hub, ag *agent.Agent) {
	for {
		select {
		case <-ctx.Done():
			return
		case incoming := <-hub.In:
			go func(in chat.Inbound) {
				reply, err := ag.ProcessWithReplyChannel(ctx, in, hub.Out)
				if err != nil {
					log.Printf("agent: failed to process message from %s/%s: %v", in.Channel, in.SenderID, err)
					return
				}
				select {
				case hub.Out <- chat.Outbound{Channel: in.Channel, ChatID: in.ChatID, Content: reply}:
				case <-ctx.Done():
				}
			}(incoming)
		}
	}
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
