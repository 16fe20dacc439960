package cas

import (
	"context"
	"fmt"

	"github.com/raysh454/casprobe/internal/browser"
	"github.com/raysh454/casprobe/internal/logging"
)

// Page is what the helpers need from a browser tab.
type Page interface {
	Goto(ctx context.Context, url string) error
	Type(ctx context.Context, selector, value string) error
	Submit(ctx context.Context, selector string) error
	TextContent(ctx context.Context, selector string) (string, error)
	HTML(ctx context.Context) (string, error)
}

// Browser is an owned browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts a browser.
type Launcher func(ctx context.Context, opts browser.Config, logger logging.Logger) (Browser, error)

type chromeBrowser struct {
	*browser.Browser
}

func (c chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := c.Browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Launch starts Chrome through chromedp. It satisfies Launcher.
func Launch(ctx context.Context, opts browser.Config, logger logging.Logger) (Browser, error) {
	b, err := browser.Launch(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	return chromeBrowser{Browser: b}, nil
}

// NewPage opens a tab on b.
func NewPage(ctx context.Context, b Browser) (Page, error) {
	p, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: new page: %w", ErrLaunchFailed, err)
	}
	return p, nil
}

// BrowserOptions returns the launch options CAS scenarios run with.
func BrowserOptions() browser.Config {
	return browser.DefaultConfig()
}
