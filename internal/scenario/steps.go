package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"

	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/logging"
)

// Refresh POSTs to the actuator refresh endpoint so the server picks up
// the configuration the scenario depends on.
func Refresh() Step {
	return Step{Name: "refresh", Run: func(ctx context.Context, s *State) error {
		url := cas.ActuatorURL(s.Env.BaseURL, "refresh")
		s.Logger.Info("refreshing application context", logging.Field{Key: "url", Value: url})

		resp, err := cas.DoRequest(ctx, s.Env.Client, url, http.MethodPost)
		if resp != nil {
			s.Response = resp
			s.Logger.Info("refresh response",
				logging.Field{Key: "status", Value: resp.StatusCode},
				logging.Field{Key: "body", Value: string(resp.Body)})
		}
		return err
	}}
}

// ForgetDevices removes every U2F device the server holds for the
// configured user, so registration is offered again.
func ForgetDevices(name string) Step {
	return Step{Name: name, Run: func(ctx context.Context, s *State) error {
		url := cas.ActuatorURL(s.Env.BaseURL, "u2fDevices/"+neturl.PathEscape(s.Env.Username))
		s.Logger.Info("removing registered devices",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "username", Value: s.Env.Username})

		resp, err := cas.DoRequest(ctx, s.Env.Client, url, http.MethodDelete)
		if resp != nil {
			s.Response = resp
		}
		return err
	}}
}

// LaunchBrowser starts the browser the remaining steps drive.
func LaunchBrowser() Step {
	return Step{Name: "launch", Run: func(ctx context.Context, s *State) error {
		b, err := s.Env.Launch(ctx, s.BrowserOptions, s.Logger)
		if err != nil {
			if !errors.Is(err, cas.ErrLaunchFailed) {
				err = fmt.Errorf("%w: %w", cas.ErrLaunchFailed, err)
			}
			return err
		}
		s.Browser = b
		return nil
	}}
}

// OpenPage opens the tab later steps act on.
func OpenPage() Step {
	return Step{Name: "new-page", Run: func(ctx context.Context, s *State) error {
		if s.Browser == nil {
			return fmt.Errorf("%w: browser not launched", cas.ErrLaunchFailed)
		}
		p, err := cas.NewPage(ctx, s.Browser)
		if err != nil {
			return err
		}
		s.Page = p
		return nil
	}}
}

// GotoLogin loads the login page, selecting method through authn_method.
func GotoLogin(method string) Step {
	return Step{Name: "navigate", Run: func(ctx context.Context, s *State) error {
		if s.Page == nil {
			return ErrNoPage
		}
		url, err := cas.LoginURL(s.Env.BaseURL, method)
		if err != nil {
			return fmt.Errorf("%w: %w", cas.ErrNavigationFailed, err)
		}
		s.Logger.Debug("opening login page", logging.Field{Key: "url", Value: url})
		return cas.Goto(ctx, s.Page, url)
	}}
}

// Login submits the configured credentials.
func Login() Step {
	return Step{Name: "authenticate", Run: func(ctx context.Context, s *State) error {
		if s.Page == nil {
			return ErrNoPage
		}
		return cas.LoginWith(ctx, s.Page, s.Env.Username, s.Env.Password)
	}}
}

// AssertText checks the trimmed text content of selector.
func AssertText(selector, expected string) Step {
	return Step{Name: "assert " + selector, Run: func(ctx context.Context, s *State) error {
		if s.Page == nil {
			return ErrNoPage
		}
		return cas.AssertTextContent(ctx, s.Page, selector, expected)
	}}
}

// AssertCredentials checks how many credentials the virtual authenticator holds.
func AssertCredentials(want int) Step {
	return Step{Name: fmt.Sprintf("assert %d credential(s)", want), Run: func(ctx context.Context, s *State) error {
		if s.Page == nil {
			return ErrNoPage
		}
		return cas.AssertCredentialCount(ctx, s.Page, want)
	}}
}
