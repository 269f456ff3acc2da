package service

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Strob0t/ForgeAgent/internal/adapter/anthropic"
	"github.com/Strob0t/ForgeAgent/internal/adapter/jsonl"
	"github.com/Strob0t/ForgeAgent/internal/adapter/openai"
	"github.com/Strob0t/ForgeAgent/internal/config"
	"github.com/Strob0t/ForgeAgent/internal/domain"
	"github.com/Strob0t/ForgeAgent/internal/domain/policy"
	"github.com/Strob0t/ForgeAgent/internal/domain/session"
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/git"
	"github.com/Strob0t/ForgeAgent/internal/port/approval"
	"github.com/Strob0t/ForgeAgent/internal/port/broadcast"
	"github.com/Strob0t/ForgeAgent/internal/port/provider"
	"github.com/Strob0t/ForgeAgent/internal/resilience"
	"github.com/Strob0t/ForgeAgent/internal/secrets"
	"github.com/Strob0t/ForgeAgent/internal/tools"
	"github.com/Strob0t/ForgeAgent/internal/workspace"
)

// Factory builds session runtimes from configuration and secrets.
type Factory struct {
	cfg     *config.Config
	vault   *secrets.Vault
	logger  *slog.Logger
	cache   tool.WalkCache
	gitPool *git.Pool
}

// NewFactory creates a Factory. cache may be nil to disable walk caching.
func NewFactory(cfg *config.Config, vault *secrets.Vault, logger *slog.Logger, cache tool.WalkCache) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:     cfg,
		vault:   vault,
		logger:  logger,
		cache:   cache,
		gitPool: git.NewPool(cfg.Git.MaxConcurrent),
	}
}

// CreateParams parameterize session construction.
type CreateParams struct {
	WorkspacePath string
	Provider      string // "" uses the configured provider
	Model         string // "" uses config, then the provider default
	SessionID     string // "" generates one; set when resuming
	Resume        bool
	AutoApprove   bool

	// Interactive sessions supply their own sink and arbitrator;
	// server sessions get an event queue and an async approver.
	Interactive bool
	Sink        broadcast.Sink
	Approver    approval.Arbitrator

	// ExtraSink, when set on a server session, mirrors the event
	// stream to an additional destination (the WebSocket hub).
	ExtraSink broadcast.Sink
}

// NewSession validates params and assembles a runtime. Validation
// failures (missing workspace, unknown provider, missing API key) are
// returned as errors and are fatal to the request, never to the process.
func (f *Factory) NewSession(params CreateParams) (*Session, error) {
	info, err := f.resolveIdentity(params)
	if err != nil {
		return nil, err
	}

	guard, err := workspace.NewGuard(info.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace guard: %w", err)
	}

	prov, err := f.buildProvider(info.Provider, info.Model)
	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry()
	tools.RegisterAll(registry)

	logPath := f.sessionLogPath(guard.Root(), info.ID)
	writer, err := jsonl.NewWriter(logPath)
	if err != nil {
		return nil, fmt.Errorf("session log: %w", err)
	}

	s := &Session{
		Info: info,
		Options: Options{
			RepoRoot:      guard.Root(),
			Model:         info.Model,
			SystemPrompt:  f.cfg.Agent.SystemPrompt,
			MaxIterations: f.cfg.Agent.MaxIterations,
			MaxTokens:     f.cfg.LLM.MaxTokens,
			Temperature:   f.cfg.LLM.Temperature,
		},
		Registry: registry,
		Provider: prov,
		Policy:   policy.NewEngine(params.AutoApprove),
		Log:      writer,
		Exec: tool.ExecContext{
			RepoRoot: guard.Root(),
			Guard:    guard,
			Cache:    f.cache,
			CacheTTL: f.cfg.Cache.TTL,
			Git:      f.gitPool,
			Logger:   f.logger,
		},
	}

	if params.Interactive {
		if params.Sink == nil || params.Approver == nil {
			return nil, fmt.Errorf("interactive session requires a sink and an arbitrator")
		}
		s.Sink = params.Sink
		s.Approver = params.Approver
	} else {
		s.Events = NewEventQueue()
		sink := broadcast.Sink(s.Events)
		if params.ExtraSink != nil {
			sink = broadcast.Fanout{s.Events, params.ExtraSink}
		}
		s.Sink = sink
		s.Approver = NewAsyncApprover(sink)
	}

	if params.Resume {
		msgs, err := (jsonl.Reader{}).ReadMessages(logPath, func(line int, warnErr error) {
			f.logger.Warn("skipping malformed session log line", "session_id", info.ID, "line", line, "error", warnErr)
		})
		if err != nil {
			return nil, fmt.Errorf("resume session %s: %w", info.ID, err)
		}
		s.SetMessages(msgs)
	}

	action := "create"
	if params.Resume {
		action = "resume"
	}
	f.appendIndex(guard.Root(), info, action)
	writer.Append(jsonl.SessionStartPayload{Type: "session_start", Info: info})

	f.logger.Info("session ready",
		"session_id", info.ID,
		"workspace", info.WorkspaceRoot,
		"provider", info.Provider,
		"model", info.Model,
		"resumed", params.Resume,
	)
	return s, nil
}

// resolveIdentity validates the workspace, provider, and model choice.
func (f *Factory) resolveIdentity(params CreateParams) (session.Info, error) {
	var info session.Info

	if params.WorkspacePath == "" {
		return info, fmt.Errorf("%w: workspace path is required", domain.ErrValidation)
	}
	abs, err := filepath.Abs(params.WorkspacePath)
	if err != nil {
		return info, fmt.Errorf("resolve workspace: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil || !fi.IsDir() {
		return info, fmt.Errorf("%w: workspace %s does not exist", domain.ErrValidation, abs)
	}

	providerName := params.Provider
	if providerName == "" {
		providerName = f.cfg.LLM.Provider
	}
	switch providerName {
	case config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOpenAICompatible:
	default:
		return info, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, providerName)
	}

	// Model precedence: request, then config file, then provider default.
	model := params.Model
	if model == "" {
		model = f.cfg.LLM.Model
	}
	if model == "" {
		model = config.DefaultModels[providerName]
	}
	if providerName == config.ProviderOpenAICompatible {
		if f.cfg.LLM.Endpoint == "" {
			return info, fmt.Errorf("%w: provider openai-compatible requires an explicit endpoint", domain.ErrValidation)
		}
		if model == "" {
			return info, fmt.Errorf("%w: provider openai-compatible requires an explicit model", domain.ErrValidation)
		}
	}

	id := params.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	return session.Info{
		ID:            id,
		WorkspaceRoot: abs,
		Provider:      providerName,
		Model:         model,
		CreatedAt:     touchTime(),
	}, nil
}

// buildProvider constructs the provider client, enforcing API key
// presence and attaching the circuit breaker.
func (f *Factory) buildProvider(name, model string) (provider.Provider, error) {
	key, required := f.vault.APIKey(name)
	if required && key == "" {
		envName := secrets.EnvOpenAIKey
		if name == config.ProviderAnthropic {
			envName = secrets.EnvAnthropicKey
		}
		return nil, fmt.Errorf("%w: provider %s requires %s", domain.ErrValidation, name, envName)
	}

	breaker := resilience.NewBreaker(name, f.cfg.Breaker.MaxFailures, f.cfg.Breaker.Timeout)

	switch name {
	case config.ProviderOpenAI:
		c := openai.NewClient(key, f.cfg.LLM.HTTPTimeout)
		c.SetBreaker(breaker)
		return c, nil
	case config.ProviderAnthropic:
		c := anthropic.NewClient(key, f.cfg.LLM.HTTPTimeout)
		c.SetBreaker(breaker)
		return c, nil
	case config.ProviderOpenAICompatible:
		c := openai.NewCompatible(f.cfg.LLM.Endpoint, key, f.cfg.LLM.HTTPTimeout)
		c.SetBreaker(breaker)
		return c, nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// ProviderInfo reports the configured provider identity and whether
// its API key requirement is satisfied, for health reporting.
func (f *Factory) ProviderInfo() (providerName, model string, keyConfigured bool) {
	name := f.cfg.LLM.Provider
	key, required := f.vault.APIKey(name)
	return name, f.cfg.Model(), !required || key != ""
}

func (f *Factory) sessionLogPath(root, id string) string {
	return filepath.Join(root, f.cfg.Agent.SessionDir, "session_"+id+".jsonl")
}

// appendIndex records the create/resume in the sessions index file.
// Index problems are logged, never fatal.
func (f *Factory) appendIndex(root string, info session.Info, action string) {
	idx, err := jsonl.NewWriter(filepath.Join(root, f.cfg.Agent.SessionDir, "sessions.jsonl"))
	if err != nil {
		f.logger.Warn("session index unavailable", "error", err)
		return
	}
	defer func() { _ = idx.Close() }()
	idx.Append(session.IndexRecord{
		SessionID: info.ID,
		Action:    action,
		Workspace: info.WorkspaceRoot,
		Provider:  info.Provider,
		Model:     info.Model,
		Timestamp: touchTime(),
	})
}
