package cli

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ToolGate/ToolGate/internal/approval"
	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/dryrun"
	"github.com/ToolGate/ToolGate/internal/notify"
	"github.com/ToolGate/ToolGate/internal/pipeline"
	"github.com/ToolGate/ToolGate/internal/policy"
	"github.com/ToolGate/ToolGate/internal/provider"
	"github.com/ToolGate/ToolGate/internal/risk"
	"github.com/ToolGate/ToolGate/internal/store"
	"github.com/ToolGate/ToolGate/internal/stream"
	"github.com/ToolGate/ToolGate/internal/tools"
)

// policyCacheTTL bounds how long policy decisions stay cached in a CLI
// process.
const policyCacheTTL = 5 * time.Minute

// app is the wired-up application behind every command that needs more
// than the config file.
type app struct {
	cfg       *config.Config
	store     *store.Store
	policies  *policy.Registry
	scorer    *risk.Scorer
	simulator *dryrun.Simulator
	approvals *approval.Manager
	registry  *tools.Registry
	pipeline  *pipeline.Pipeline
	mirror    *stream.Mirror
}

// buildApp loads config and wires every component.
func buildApp() (*app, error) {
	if err := provider.ValidateTable(); err != nil {
		return nil, fmt.Errorf("provider resolution table: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dbPath, err := config.DBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	st, err := store.NewStore(dbPath)
	if err != nil {
		return nil, err
	}

	policies, err := loadPolicies(cfg)
	if err != nil {
		return nil, err
	}
	registry := policy.NewRegistry(policies, policyCacheTTL)
	scorer := risk.NewScorer(registry)
	simulator := dryrun.NewSimulator(registry, scorer)

	approvals := approval.NewManager(st, simulator, cfg.Approval)
	if notifier := notify.NewSlackNotifier(cfg.Notify.Slack); notifier != nil {
		approvals.SetNotifier(notifier)
	}

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(&tools.ReadFileTool{})
	toolRegistry.Register(&tools.WriteFileTool{Workspace: cfg.Tools.Workspace})
	toolRegistry.Register(&tools.ListDirTool{})
	toolRegistry.Register(&tools.ExecTool{Policies: registry, Timeout: cfg.Tools.ExecTimeout, WorkDir: cfg.Tools.Workspace})
	toolRegistry.Register(&tools.FetchTool{Policies: registry, Client: &http.Client{Timeout: 30 * time.Second}})

	external := tools.NewExternalCache(tools.NopDiscoverer{}, cfg.Tools.ExternalCacheTTL)

	p := pipeline.New(cfg, st, toolRegistry, external, approvals, nil)
	mirror := stream.NewMirror(cfg.Stream)
	if mirror != nil {
		p.SetSink(mirror)
	}

	return &app{
		cfg:       cfg,
		store:     st,
		policies:  registry,
		scorer:    scorer,
		simulator: simulator,
		approvals: approvals,
		registry:  toolRegistry,
		pipeline:  p,
		mirror:    mirror,
	}, nil
}

func (a *app) Close() {
	if a.mirror != nil {
		a.mirror.Close()
	}
	a.store.Close()
}

func loadPolicies(cfg *config.Config) ([]policy.Policy, error) {
	dir, err := config.DataDir(cfg)
	if err != nil {
		return nil, err
	}
	return policy.LoadPolicies(filepath.Join(dir, "policies.json"))
}
