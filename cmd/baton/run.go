package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/baton-gateway/baton/internal/acp"
	"github.com/baton-gateway/baton/internal/config"
	"github.com/baton-gateway/baton/internal/debugapi"
	"github.com/baton-gateway/baton/internal/dispatch"
	"github.com/baton-gateway/baton/internal/eventbus"
	"github.com/baton-gateway/baton/internal/gateway"
	"github.com/baton-gateway/baton/internal/logging"
	"github.com/baton-gateway/baton/internal/queue"
	"github.com/baton-gateway/baton/internal/repos"
	"github.com/baton-gateway/baton/internal/transport"
	"github.com/baton-gateway/baton/internal/transport/cli"
)

// runOptions mirrors the CLI surface of spec.md §6.
type runOptions struct {
	Mode       string
	Dir        string
	ConfigPath string
	Lang       string
}

const repoScanDepth = 3

func run(opts runOptions) error {
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		dir = wd
	}

	cfg, err := config.Load(dir, opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Lang != "" {
		cfg.Language = opts.Lang
	}
	if cfg.Project.Path == "" {
		cfg.Project.Path = dir
	}

	logger, err := logging.New(logging.Config{Level: "info", Format: "", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logging.SetDefault(logger)

	mode := resolveMode(opts.Mode, cfg)
	logger.Info(fmt.Sprintf("starting baton in %s mode", mode))

	inventory, err := repos.Scan(cfg.Project.Path, repoScanDepth)
	if err != nil {
		return fmt.Errorf("scan repos: %w", err)
	}

	var bus eventbus.Bus
	if cfg.Nats.URL != "" {
		natsBus, err := eventbus.NewNATSBus(cfg.Nats.URL, logger)
		if err != nil {
			return fmt.Errorf("connect nats bus: %w", err)
		}
		bus = natsBus
	} else {
		bus = eventbus.NewLocalBus()
	}

	launch := func(projectPath string, handler gateway.PermissionHandler) (gateway.ACPClient, error) {
		return acp.New(projectPath, acpLaunchConfig(cfg, logger), handler, logger), nil
	}

	manager := gateway.NewManager(gateway.Config{
		DefaultProjectPath: cfg.Project.Path,
	}, launch, bus, inventory, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode != "cli" && mode != "auto" {
		return fmt.Errorf("transport %q is not built into this binary; only cli/auto are wired to a live adapter", mode)
	}

	// adapter is assigned below, once the dispatcher exists; the
	// completion callback only reads it once a task actually completes,
	// by which point it has already been assigned.
	var adapter transport.Adapter
	engine := queue.New(func(ctx context.Context, s *gateway.Session, t *gateway.Task, resp gateway.PromptResponse) {
		if adapter == nil {
			return
		}
		if err := adapter.RenderResponse(ctx, s.UserID, s.ContextID, resp.Message); err != nil {
			logger.WithError(err).Warn("failed to render task completion")
		}
	}, logger)
	dispatcher := dispatch.New(manager, engine)

	cliAdapter := cli.New(dispatcher, bus, os.Stdout, logger)
	adapter = cliAdapter

	debugSrv := debugapi.New(manager, bus, logger)
	debugErrCh := make(chan error, 1)
	go func() { debugErrCh <- debugSrv.Run(ctx, "127.0.0.1:7890") }()

	runErr := cliAdapter.Run(ctx, os.Stdin)

	stop()
	if err := <-debugErrCh; err != nil {
		logger.WithError(err).Warn("debug API server did not shut down cleanly")
	}
	if natsBus, ok := bus.(*eventbus.NATSBus); ok {
		natsBus.Close()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("adapter exited: %w", runErr)
	}
	return nil
}

// resolveMode implements "auto picks the first transport whose required
// credentials are present, else cli."
func resolveMode(requested string, cfg *config.Config) string {
	if requested != "auto" {
		return requested
	}
	switch {
	case cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "":
		return "feishu"
	case cfg.Telegram.BotToken != "":
		return "telegram"
	case cfg.WhatsApp.AccessToken != "" || cfg.WhatsApp.WACLI.Bin != "":
		return "whatsapp"
	case cfg.Slack.BotToken != "" && cfg.Slack.SigningSecret != "":
		return "slack"
	case cfg.Discord.BotToken != "" && cfg.Discord.PublicKey != "":
		return "discord"
	default:
		return "cli"
	}
}

func acpLaunchConfig(cfg *config.Config, logger *logging.Logger) acp.LaunchConfig {
	launch := acp.LaunchConfig{
		Executor: acp.Executor(cfg.ACP.Executor),
		Command:  cfg.ACP.Command,
		Args:     cfg.ACP.Args,
		Cwd:      cfg.ACP.Cwd,
		Env:      cfg.ACP.Env,
	}
	if cfg.ACP.Container.Enabled {
		launch.Container = &acp.ContainerConfig{
			Image:  cfg.ACP.Container.Image,
			Host:   cfg.ACP.Container.Host,
			Labels: cfg.ACP.Container.Labels,
			Logger: logger,
		}
	}
	return launch
}
