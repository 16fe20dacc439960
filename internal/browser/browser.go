package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/raysh454/casprobe/internal/logging"
)

var (
	// ErrClosed is returned when a closed browser is asked for a new page.
	ErrClosed = errors.New("browser closed")
	// ErrElementNotFound is returned when a selector matched nothing in time.
	ErrElementNotFound = errors.New("element not found")
)

// Browser owns one Chrome process. Close releases it; further calls to
// Close are no-ops returning the first result.
type Browser struct {
	cfg    Config
	logger logging.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	mu             sync.Mutex
	initialTabUsed bool
	closed         bool

	closeOnce sync.Once
	closeErr  error
}

// Launch starts Chrome with cfg. The process is not tied to ctx once Launch
// returns; only Close stops it.
func Launch(ctx context.Context, cfg Config, logger logging.Logger) (*Browser, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg = cfg.withDefaults()
	logger = logger.With(logging.Field{Key: "component", Value: "browser"})

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreCertErrors),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...))
		}),
	)

	// The first Run allocates the process. It must run on the undecorated
	// browser context or the process would die with a derived deadline.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	logger.Info("browser launched",
		logging.Field{Key: "headless", Value: cfg.Headless},
		logging.Field{Key: "ignore_cert_errors", Value: cfg.IgnoreCertErrors})

	return &Browser{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		ctx:         browserCtx,
		cancel:      cancel,
	}, nil
}

// NewPage returns a tab. The blank tab Chrome starts with is handed out
// first; later calls open new tabs.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	reuse := !b.initialTabUsed
	b.initialTabUsed = true
	b.mu.Unlock()

	var p *Page
	if reuse {
		p = newPage(b, b.ctx, nil)
	} else {
		tabCtx, tabCancel := chromedp.NewContext(b.ctx)
		stop := context.AfterFunc(ctx, tabCancel)
		err := chromedp.Run(tabCtx)
		stop()
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("open tab: %w", err)
		}
		p = newPage(b, tabCtx, tabCancel)
	}

	if b.cfg.VirtualAuthenticator {
		if _, err := p.AddVirtualAuthenticator(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("attach virtual authenticator: %w", err)
		}
	}
	return p, nil
}

// Close shuts Chrome down. It is safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.closeErr = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
		if b.closeErr != nil && !errors.Is(b.closeErr, context.Canceled) {
			b.logger.Warn("browser did not close cleanly", logging.Field{Key: "error", Value: b.closeErr.Error()})
		} else {
			b.closeErr = nil
			b.logger.Info("browser closed")
		}
	})
	return b.closeErr
}

// Closed reports whether Close has been called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
