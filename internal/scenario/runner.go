package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/casprobe/internal/browser"
	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/logging"
)

// CleanupStep is the name under which browser release is reported.
const CleanupStep = "cleanup"

// artifactTimeout bounds the HTML capture after a failure.
const artifactTimeout = 5 * time.Second

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, res *Result) error
}

// Runner executes scenarios against one Env.
type Runner struct {
	env      *Env
	recorder Recorder
	logger   logging.Logger
}

// NewRunner returns a Runner. recorder may be nil.
func NewRunner(env *Env, recorder Recorder) *Runner {
	logger := env.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	env.Logger = logger
	if env.Launch == nil {
		env.Launch = cas.Launch
	}
	return &Runner{
		env:      env,
		recorder: recorder,
		logger:   logger.With(logging.Field{Key: "component", Value: "runner"}),
	}
}

// Run executes sc. Steps run in order; after the first failure the
// remaining steps are reported as skipped. The browser, if one was
// launched, is closed exactly once whatever the outcome. The returned error
// is a *StepError for the failing step, or ErrAuthenticatorConflict when
// the scenario refuses the configured browser options; in that case every
// step is skipped.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (res *Result, err error) {
	logger := r.logger.With(logging.Field{Key: "scenario", Value: sc.Name})
	res = &Result{
		RunID:     uuid.NewString(),
		Scenario:  sc.Name,
		StartedAt: time.Now().UTC(),
	}
	state := &State{Env: r.env, Logger: logger}

	logger.Info("scenario started", logging.Field{Key: "run_id", Value: res.RunID})

	defer func() {
		if cerr := r.release(state, res, logger); cerr != nil && err == nil {
			err = &StepError{Step: CleanupStep, Err: cerr}
		}
		r.finish(ctx, res, err, logger)
	}()

	state.BrowserOptions, err = browserOptions(sc, r.env.BrowserOptions)
	if err != nil {
		logger.Error("scenario rejected", logging.Err(err))
	}

	for _, step := range sc.Steps {
		if err != nil {
			res.Steps = append(res.Steps, StepResult{Name: step.Name, Status: StatusSkipped})
			continue
		}
		var sr StepResult
		sr, err = r.runStep(ctx, state, step, logger)
		res.Steps = append(res.Steps, sr)
		if err != nil {
			r.captureArtifact(ctx, state, res, logger)
		}
	}
	return res, err
}

func browserOptions(sc *Scenario, opts browser.Config) (browser.Config, error) {
	switch sc.Authenticator {
	case NoAuthenticator:
		if opts.VirtualAuthenticator {
			return opts, fmt.Errorf("%w: %s", ErrAuthenticatorConflict, sc.Name)
		}
	case WithAuthenticator:
		opts.VirtualAuthenticator = true
	}
	return opts, nil
}

func (r *Runner) runStep(ctx context.Context, state *State, step Step, logger logging.Logger) (StepResult, error) {
	stepLogger := logger.With(logging.Field{Key: "step", Value: step.Name})
	state.Logger = stepLogger

	stepCtx := ctx
	if r.env.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.env.StepTimeout)
		defer cancel()
	}

	sr := StepResult{Name: step.Name, StartedAt: time.Now().UTC()}
	stepLogger.Debug("step started")

	err := step.Run(stepCtx, state)
	sr.Duration = time.Since(sr.StartedAt)
	if err != nil {
		sr.Status = StatusFailed
		sr.Error = err.Error()
		stepLogger.Error("step failed",
			logging.Field{Key: "duration", Value: sr.Duration.String()},
			logging.Err(err))
		return sr, &StepError{Step: step.Name, Err: err}
	}

	sr.Status = StatusPassed
	stepLogger.Info("step passed", logging.Field{Key: "duration", Value: sr.Duration.String()})
	return sr, nil
}

// release closes the browser if one is held and reports it as the cleanup step.
func (r *Runner) release(state *State, res *Result, logger logging.Logger) error {
	if state.Browser == nil {
		return nil
	}
	b := state.Browser
	state.Browser = nil
	state.Page = nil

	sr := StepResult{Name: CleanupStep, StartedAt: time.Now().UTC()}
	err := b.Close()
	sr.Duration = time.Since(sr.StartedAt)
	if err != nil {
		sr.Status = StatusFailed
		sr.Error = err.Error()
		logger.Warn("browser close failed", logging.Err(err))
	} else {
		sr.Status = StatusPassed
	}
	res.Steps = append(res.Steps, sr)
	return err
}

func (r *Runner) captureArtifact(ctx context.Context, state *State, res *Result, logger logging.Logger) {
	if state.Page == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), artifactTimeout)
	defer cancel()
	html, err := state.Page.HTML(actx)
	if err != nil {
		logger.Debug("could not capture page html", logging.Err(err))
		return
	}
	res.PageHTML = html
}

func (r *Runner) finish(ctx context.Context, res *Result, err error, logger logging.Logger) {
	res.EndedAt = time.Now().UTC()
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	} else {
		res.Status = StatusPassed
	}

	logger.Info("scenario finished",
		logging.Field{Key: "run_id", Value: res.RunID},
		logging.Field{Key: "status", Value: string(res.Status)},
		logging.Field{Key: "duration", Value: res.EndedAt.Sub(res.StartedAt).String()})

	if r.recorder == nil {
		return
	}
	if rerr := r.recorder.Record(context.WithoutCancel(ctx), res); rerr != nil {
		logger.Warn("failed to record run", logging.Field{Key: "run_id", Value: res.RunID}, logging.Err(rerr))
	}
}

// FailedStep returns the name of the step that ended the run, if any.
func FailedStep(err error) (string, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}

// Describe formats a one-line summary of res.
func Describe(res *Result) string {
	if res.Passed() {
		return fmt.Sprintf("%s %s passed in %s", res.Scenario, res.RunID, res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	return fmt.Sprintf("%s %s failed: %s", res.Scenario, res.RunID, res.Error)
}
