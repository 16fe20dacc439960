package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/webauthn"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/casprobe/internal/logging"
)

// Page is a single browser tab.
type Page struct {
	browser *Browser
	cfg     Config
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc // nil for the initial tab, which lives as long as the browser

	authenticator webauthn.AuthenticatorID
}

func newPage(b *Browser, ctx context.Context, cancel context.CancelFunc) *Page {
	return &Page{
		browser: b,
		cfg:     b.cfg,
		logger:  b.logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// scope derives a context from the tab bounded by timeout and by the
// caller's ctx. Cancelling it aborts the action without closing the tab.
func (p *Page) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := p.scope(ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Goto loads url and waits for the network to go quiet.
func (p *Page) Goto(ctx context.Context, url string) error {
	runCtx, cancel := p.scope(ctx, p.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, network.Enable()); err != nil {
		return fmt.Errorf("enable network events: %w", err)
	}
	idle := watchNetworkIdle(runCtx, p.cfg.IdleAfter)

	start := time.Now()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	idle.arm()

	select {
	case <-idle.Done():
	case <-time.After(p.cfg.IdleTimeout):
		p.logger.Debug("network did not settle, continuing",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "idle_timeout", Value: p.cfg.IdleTimeout.String()})
	case <-runCtx.Done():
		return fmt.Errorf("wait for %s to settle: %w", url, runCtx.Err())
	}

	p.logger.Debug("page loaded",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "duration", Value: time.Since(start).String()})
	return nil
}

// Type replaces the value of the input matched by selector with value,
// sending real key events.
func (p *Page) Type(ctx context.Context, selector, value string) error {
	err := p.run(ctx, p.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return p.elementErr(ctx, selector, "type into", err)
	}
	return nil
}

// Submit submits the form owning selector and waits for the next page load.
func (p *Page) Submit(ctx context.Context, selector string) error {
	runCtx, cancel := p.scope(ctx, p.cfg.NavigationTimeout)
	defer cancel()

	loaded := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(runCtx, func(ev any) {
		if _, ok := ev.(*cdppage.EventLoadEventFired); ok {
			once.Do(func() { close(loaded) })
		}
	})

	if err := chromedp.Run(runCtx, chromedp.Submit(selector, chromedp.ByQuery)); err != nil {
		return p.elementErr(ctx, selector, "submit", err)
	}

	select {
	case <-loaded:
		return nil
	case <-runCtx.Done():
		return fmt.Errorf("wait for page load after submitting %q: %w", selector, runCtx.Err())
	}
}

// TextContent waits for the first element matching selector to be visible
// and returns its raw textContent.
func (p *Page) TextContent(ctx context.Context, selector string) (string, error) {
	var text string
	err := p.run(ctx, p.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.TextContent(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", p.elementErr(ctx, selector, "read text of", err)
	}
	return text, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document html: %w", err)
	}
	return html, nil
}

// URL returns the current location of the tab.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Close closes the tab. Closing the initial tab is a no-op; it goes away
// with the browser.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

// elementErr turns a timeout while waiting for selector into ErrElementNotFound,
// unless the caller's own context is what expired.
func (p *Page) elementErr(ctx context.Context, selector, action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s %q: %w", action, selector, ErrElementNotFound)
	}
	return fmt.Errorf("%s %q: %w", action, selector, err)
}
