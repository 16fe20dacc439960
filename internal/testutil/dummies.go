// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without a browser or network.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/webauthn"

	"github.com/raysh454/casprobe/internal/browser"
	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/logging"
	"github.com/raysh454/casprobe/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns body "[]" with status 200.
// Set FailURLs[url] = true to force a transport error, Status[url] to force a status.
type DummyWebClient struct {
	FailURLs map[string]bool
	Status   map[string]int
	mu       sync.Mutex
	Requests []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs[req.URL] {
		return nil, errors.New("dummy transport failure for " + req.URL)
	}

	status := 200
	if s, ok := d.Status[req.URL]; ok {
		status = s
	}
	return &webclient.Response{
		Request:    req,
		Body:       []byte("[]"),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// ─── Browser ───────────────────────────────────────────────────────────

// DummyPage implements cas.Page. Texts maps selectors to their text content;
// selectors missing from Texts yield browser.ErrElementNotFound. Errs forces
// an error from the named method ("Goto", "Type", "Submit", "TextContent",
// "HTML", "Credentials").
type DummyPage struct {
	Texts map[string]string
	Errs  map[string]error
	Body  string

	// Devices is the number of credentials Credentials reports.
	Devices int

	mu    sync.Mutex
	Calls []string
}

func (p *DummyPage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, call)
}

func (p *DummyPage) Goto(_ context.Context, url string) error {
	p.record("Goto " + url)
	return p.Errs["Goto"]
}

func (p *DummyPage) Type(_ context.Context, selector, value string) error {
	p.record(fmt.Sprintf("Type %s=%s", selector, value))
	return p.Errs["Type"]
}

func (p *DummyPage) Submit(_ context.Context, selector string) error {
	p.record("Submit " + selector)
	return p.Errs["Submit"]
}

func (p *DummyPage) TextContent(_ context.Context, selector string) (string, error) {
	p.record("TextContent " + selector)
	if err := p.Errs["TextContent"]; err != nil {
		return "", err
	}
	text, ok := p.Texts[selector]
	if !ok {
		return "", fmt.Errorf("read text of %q: %w", selector, browser.ErrElementNotFound)
	}
	return text, nil
}

func (p *DummyPage) HTML(_ context.Context) (string, error) {
	p.record("HTML")
	if err := p.Errs["HTML"]; err != nil {
		return "", err
	}
	return p.Body, nil
}

// Credentials makes DummyPage a cas.CredentialSource.
func (p *DummyPage) Credentials(_ context.Context) ([]*webauthn.Credential, error) {
	p.record("Credentials")
	if err := p.Errs["Credentials"]; err != nil {
		return nil, err
	}
	out := make([]*webauthn.Credential, p.Devices)
	for i := range out {
		out[i] = &webauthn.Credential{CredentialID: fmt.Sprintf("cred-%d", i)}
	}
	return out, nil
}

// CallLog returns a copy of the recorded calls.
func (p *DummyPage) CallLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Calls...)
}

// DummyBrowser implements cas.Browser and hands out Page on every NewPage.
type DummyBrowser struct {
	Page       *DummyPage
	NewPageErr error
	CloseErr   error

	mu         sync.Mutex
	CloseCalls int
	Launched   []browser.Config
}

func (b *DummyBrowser) NewPage(context.Context) (cas.Page, error) {
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	return b.Page, nil
}

func (b *DummyBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCalls++
	return b.CloseErr
}

// Closes returns how many times Close was called.
func (b *DummyBrowser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.CloseCalls
}

// LaunchOptions returns the options of every launch of b.
func (b *DummyBrowser) LaunchOptions() []browser.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]browser.Config(nil), b.Launched...)
}

// Launcher returns a cas.Launcher handing out b, or failing with err when set.
func Launcher(b *DummyBrowser, err error) cas.Launcher {
	return func(_ context.Context, opts browser.Config, _ logging.Logger) (cas.Browser, error) {
		if b != nil {
			b.mu.Lock()
			b.Launched = append(b.Launched, opts)
			b.mu.Unlock()
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}
