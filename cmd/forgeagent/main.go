// Command forgeagent is a local coding assistant: an interactive
// terminal agent over a workspace, or an HTTP server exposing the same
// core with streamed events and out-of-band approval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	faotel "github.com/Strob0t/ForgeAgent/internal/adapter/otel"
	"github.com/Strob0t/ForgeAgent/internal/adapter/ristretto"
	"github.com/Strob0t/ForgeAgent/internal/adapter/terminal"
	"github.com/Strob0t/ForgeAgent/internal/config"
	"github.com/Strob0t/ForgeAgent/internal/logger"
	"github.com/Strob0t/ForgeAgent/internal/secrets"
	"github.com/Strob0t/ForgeAgent/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "forgeagent:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", config.DefaultConfigFile, "path to YAML config")
		workspace   = flag.String("workspace", ".", "workspace root the agent operates on")
		providerFlg = flag.String("provider", "", "model provider (openai, anthropic, openai-compatible)")
		modelFlg    = flag.String("model", "", "model name")
		serve       = flag.Bool("serve", false, "run the HTTP server instead of the interactive terminal")
		resumeID    = flag.String("resume", "", "resume the session with this id from its log")
		autoApprove = flag.Bool("auto-approve", false, "skip approval prompts (dangerous)")
		prompt      = flag.String("prompt", "", "run a single prompt and exit")
	)
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return err
	}
	if *providerFlg != "" {
		cfg.LLM.Provider = *providerFlg
	}
	if *modelFlg != "" {
		cfg.LLM.Model = *modelFlg
	}

	// Interactive mode logs to stderr so streamed assistant text owns
	// stdout.
	logOut := os.Stdout
	if !*serve {
		logOut = os.Stderr
	}
	log, logCloser := logger.NewWithWriter(cfg.Logging, logOut)
	defer logCloser.Close()
	slog.SetDefault(log)

	vault, err := secrets.NewVault(secrets.EnvLoader(secrets.EnvOpenAIKey, secrets.EnvAnthropicKey))
	if err != nil {
		return err
	}

	ctx := context.Background()
	otelShutdown, err := faotel.InitTracer(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(ctx) }()

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	metrics, err := faotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	factory := service.NewFactory(cfg, vault, log, cache)
	runner := service.NewRunner(log, metrics)

	if *serve {
		return runServer(ctx, cfg, factory, runner, log)
	}
	return runInteractive(ctx, factory, runner, interactiveParams{
		workspace:   *workspace,
		resumeID:    *resumeID,
		autoApprove: *autoApprove,
		prompt:      *prompt,
	})
}

type interactiveParams struct {
	workspace   string
	resumeID    string
	autoApprove bool
	prompt      string
}

func runInteractive(ctx context.Context, factory *service.Factory, runner *service.Runner, p interactiveParams) error {
	sink := terminal.NewSink(os.Stdout)
	approver := terminal.NewApprover()

	s, err := factory.NewSession(service.CreateParams{
		WorkspacePath: p.workspace,
		SessionID:     p.resumeID,
		Resume:        p.resumeID != "",
		AutoApprove:   p.autoApprove,
		Interactive:   true,
		Sink:          sink,
		Approver:      approver,
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Log.Close() }()

	if p.prompt != "" {
		if !s.TryRun() {
			return fmt.Errorf("session busy")
		}
		defer s.EndRun()
		runner.Run(ctx, s, p.prompt)
		return nil
	}

	return terminal.NewREPL(runner, s).Loop(ctx)
}
