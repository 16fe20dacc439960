package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/casprobe/internal/browser"
	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/logging"
	"github.com/raysh454/casprobe/internal/webclient"
)

var (
	// ErrNoPage is returned by page steps that run before a page was opened.
	ErrNoPage = errors.New("no page open")

	// ErrAuthenticatorConflict is returned when the environment enables the
	// virtual authenticator for a scenario that must run without one.
	ErrAuthenticatorConflict = errors.New("virtual authenticator not allowed for scenario")
)

// Authenticator selects whether a scenario's browser carries a virtual
// security key.
type Authenticator int

const (
	// AuthenticatorFromConfig leaves the choice to Env.BrowserOptions.
	AuthenticatorFromConfig Authenticator = iota
	// NoAuthenticator rejects runs whose options enable one. Without a key
	// the registration prompt stays on screen for the assertions.
	NoAuthenticator
	// WithAuthenticator always attaches one.
	WithAuthenticator
)

// Env is everything a scenario needs from the outside world.
type Env struct {
	BaseURL  string
	Username string
	Password string

	Client         webclient.WebClient
	Launch         cas.Launcher
	BrowserOptions browser.Config

	// StepTimeout bounds each step; zero means no bound beyond the caller's ctx.
	StepTimeout time.Duration

	Logger logging.Logger
}

// State carries the handles that steps hand to each other. The runner owns
// Browser and closes it after the last step.
type State struct {
	Env *Env

	// BrowserOptions are Env.BrowserOptions after the scenario's
	// Authenticator policy was applied.
	BrowserOptions browser.Config

	Browser  cas.Browser
	Page     cas.Page
	Response *webclient.Response
	Logger   logging.Logger
}

// Step is one unit of a scenario.
type Step struct {
	Name string
	Run  func(ctx context.Context, s *State) error
}

// Scenario is an ordered list of steps. Steps run strictly in sequence and
// the first failure ends the run.
type Scenario struct {
	Name        string
	Description string
	Steps       []Step

	Authenticator Authenticator
}

// StepError names the step that ended a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
