package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/logging"
	"github.com/raysh454/casprobe/internal/runstore"
	"github.com/raysh454/casprobe/internal/scenario"
	"github.com/raysh454/casprobe/internal/webclient"
)

// Application is the runtime state container of one casprobe invocation:
// config, logger, the HTTP client, the optional run history and the
// scenario runner built on top of them.
type Application struct {
	Config *Config
	Logger logging.Logger

	client *webclient.NetHTTPClient
	store  *runstore.Store
	runner *scenario.Runner
}

// Option customizes the scenario environment of an Application.
type Option func(*scenario.Env)

// WithLauncher replaces the Chrome launcher.
func WithLauncher(l cas.Launcher) Option {
	return func(env *scenario.Env) { env.Launch = l }
}

// NewApplication validates cfg and wires the components.
func NewApplication(cfg *Config, logger logging.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	client, err := webclient.NewNetHTTPClient(cfg.WebClient, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("creating web client: %w", err)
	}

	a := &Application{Config: cfg, Logger: logger, client: client}

	var recorder scenario.Recorder
	if cfg.StorePath != "" {
		store, err := runstore.Open(cfg.StorePath, logger)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("opening run store: %w", err)
		}
		a.store = store
		recorder = store

		if cfg.HistoryRetention > 0 {
			cutoff := time.Now().Add(-cfg.HistoryRetention)
			if n, err := store.Prune(context.Background(), cutoff); err != nil {
				logger.Warn("pruning run history", logging.Err(err))
			} else if n > 0 {
				logger.Info("pruned run history", logging.F("runs", n))
			}
		}
	}

	env := &scenario.Env{
		BaseURL:        cfg.BaseURL,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Client:         client,
		BrowserOptions: cfg.Browser,
		StepTimeout:    cfg.StepTimeout,
		Logger:         logger,
	}
	for _, opt := range opts {
		opt(env)
	}
	a.runner = scenario.NewRunner(env, recorder)
	return a, nil
}

// Run looks up the named scenario and runs it. The result is returned even
// when the run failed.
func (a *Application) Run(ctx context.Context, name string) (*scenario.Result, error) {
	sc, err := scenario.Lookup(name)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("running scenario", logging.F("scenario", sc.Name), logging.F("base_url", a.Config.BaseURL))
	return a.runner.Run(ctx, sc)
}

// ErrNoHistory is returned by History when no store is configured.
var ErrNoHistory = errors.New("run history disabled: set store_path")

// History lists recorded runs, newest first.
func (a *Application) History(ctx context.Context, scenarioName string, limit int) ([]*scenario.Result, error) {
	if a.store == nil {
		return nil, ErrNoHistory
	}
	return a.store.List(ctx, scenarioName, limit)
}

// Artifact returns the page HTML captured for a failed run.
func (a *Application) Artifact(ctx context.Context, runID string) (string, error) {
	if a.store == nil {
		return "", ErrNoHistory
	}
	return a.store.Artifact(ctx, runID)
}

// Close releases the HTTP client and the run store.
func (a *Application) Close() error {
	if a.client != nil {
		a.client.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
