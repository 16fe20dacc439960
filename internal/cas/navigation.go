package cas

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// LoginForm names the inputs of the CAS login form.
type LoginForm struct {
	Username string
	Password string
}

// DefaultLoginForm matches the stock CAS login view.
var DefaultLoginForm = LoginForm{
	Username: "#username",
	Password: "#password",
}

// Goto navigates page to url.
func Goto(ctx context.Context, page Page, url string) error {
	if err := page.Goto(ctx, url); err != nil {
		return fmt.Errorf("%w: %w", ErrNavigationFailed, err)
	}
	return nil
}

// LoginWith fills the default login form and submits it as if Enter was
// pressed in the password field.
func LoginWith(ctx context.Context, page Page, username, password string) error {
	return LoginWithForm(ctx, page, DefaultLoginForm, username, password)
}

// LoginWithForm is LoginWith for non-default selectors.
func LoginWithForm(ctx context.Context, page Page, form LoginForm, username, password string) error {
	if err := page.Type(ctx, form.Username, username); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if err := page.Type(ctx, form.Password, password); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if err := page.Submit(ctx, form.Password); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	return nil
}

// LoginURL builds <base>/login, adding authn_method when method is set.
func LoginURL(base, method string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/login")
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	if method != "" {
		q := u.Query()
		q.Set("authn_method", method)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// ActuatorURL builds <base>/actuator/<endpoint>.
func ActuatorURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/actuator/" + strings.TrimLeft(endpoint, "/")
}
