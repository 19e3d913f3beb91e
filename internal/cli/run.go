package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DroidClaw/DroidClaw/internal/agent"
	"github.com/DroidClaw/DroidClaw/internal/bus"
	"github.com/DroidClaw/DroidClaw/internal/config"
	"github.com/DroidClaw/DroidClaw/internal/orchestrator"
	"github.com/DroidClaw/DroidClaw/internal/provider"
	"github.com/DroidClaw/DroidClaw/internal/timeline"
	"github.com/DroidClaw/DroidClaw/internal/tools"
	"github.com/DroidClaw/DroidClaw/internal/trace"
)

var runVerbose bool

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Execute a goal on the device",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGoal(strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print every tool call as it happens")
}

func runGoal(goal string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("no API key configured; set DROIDCLAW_API_KEY or edit the config file")
	}

	level := slog.LevelWarn
	if runVerbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	p := provider.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Model.Name)

	reg := tools.NewRegistry()
	dc := tools.NewADBController(cfg.Device.ADBPath, cfg.Device.Serial)
	tools.RegisterDeviceTools(reg, dc)
	tools.RegisterAPITools(reg)

	audit, err := timeline.NewService(config.ExpandPath(cfg.Paths.TimelineDB))
	if err != nil {
		return fmt.Errorf("failed to open timeline: %w", err)
	}
	defer audit.Close()

	var tracer *trace.Publisher
	if cfg.Trace.Enabled {
		tracer = trace.NewPublisher(cfg.Trace.Brokers, cfg.Trace.Topic, cfg.Trace.QueueSize)
		defer tracer.Close()
	}

	coord := orchestrator.New(cfg, p, reg, audit, tracer, bus.NewProgressBus(cfg.Hooks.LogCapacity))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printHeader("🤖 DroidClaw Run")
	fmt.Printf("Goal: %s\n\n", goal)

	res, err := coord.RunTask(ctx, goal, progressPrinter())
	if err != nil {
		return err
	}

	fmt.Println()
	if res.Success {
		color.Green("✓ %s", res.Output)
	} else {
		color.Red("✗ %s", res.Output)
	}
	fmt.Printf("\nstrategy=%s iterations=%d tool_calls=%d duration=%s\n",
		res.Strategy, res.Iterations, res.ToolCalls, res.Duration.Truncate(time.Millisecond))
	return nil
}

// progressPrinter renders progress events when --verbose is set.
func progressPrinter() agent.ProgressFunc {
	if !runVerbose {
		return nil
	}
	return func(ev bus.ProgressEvent) {
		switch ev.Kind {
		case bus.EventIteration:
			fmt.Println(color.HiBlackString("  %s", ev.Detail))
		case bus.EventToolCall:
			fmt.Printf("  → %s\n", ev.Tool)
		case bus.EventLoopWarning:
			color.Yellow("  ⚠ %s", ev.Detail)
		case bus.EventSubtaskUpdate:
			fmt.Printf("  ▸ %s\n", ev.Detail)
		}
	}
}
