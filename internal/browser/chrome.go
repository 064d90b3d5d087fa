package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	DefaultUserAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.90 Safari/537.36"
	defaultNavigateTimeout = time.Minute
	idlePollInterval       = 100 * time.Millisecond
)

// Options configures the Chrome process.
type Options struct {
	Headless        bool
	ExecPath        string // empty: let chromedp locate Chrome
	UserAgent       string
	NavigateTimeout time.Duration
}

// ChromeSession is a headless Chrome tab with network capture enabled.
type ChromeSession struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	rec         *recorder
	navTimeout  time.Duration
	closeOnce   sync.Once
}

// NewChromeSession launches Chrome and enables the Network domain.
// The browser lives until Close is called or parent is cancelled.
func NewChromeSession(parent context.Context, opts Options) (*ChromeSession, error) {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	navTimeout := opts.NavigateTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigateTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		ctx:         ctx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		rec:         newRecorder(),
		navTimeout:  navTimeout,
	}
	chromedp.ListenTarget(ctx, s.rec.handle)

	// The first Run starts the browser; it must use the session context so
	// the browser is not tied to a shorter-lived child.
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// NewChromeFactory returns a Factory that launches one Chrome per session.
func NewChromeFactory(opts Options) Factory {
	return func(ctx context.Context) (Session, error) {
		return NewChromeSession(ctx, opts)
	}
}

// runCtx bounds a chromedp action by both the navigate timeout and ctx.
func (s *ChromeSession) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()

	s.rec.reset()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *ChromeSession) NetworkLog(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.rec.drain(), nil
}

func (s *ChromeSession) WaitNetworkIdle(ctx context.Context, quiet, max time.Duration) error {
	deadline := time.NewTimer(max)
	defer deadline.Stop()
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if s.rec.idleFor(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}
	}
}

func (s *ChromeSession) OuterHTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *ChromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancelCtx()
		s.cancelAlloc()
	})
	return err
}
