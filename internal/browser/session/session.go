package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/stealth"
	"github.com/xkilldash9x/webpilot/internal/config"
)

var (
	ErrNotStarted     = errors.New("browser session not started")
	ErrAlreadyStarted = errors.New("browser session already started")
	ErrClosed         = errors.New("browser session closed")
)

const (
	defaultOpTimeout = 30 * time.Second
	closeTimeout     = 10 * time.Second
)

// Session drives one Chrome tab over CDP. It is the chromedp implementation
// of schemas.Browser.
type Session struct {
	browserCfg config.BrowserConfig
	netCfg     config.NetworkConfig
	persona    stealth.Persona
	logger     *zap.Logger

	mu          sync.Mutex
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closed      bool

	idle *idleTracker
}

var _ schemas.Browser = (*Session)(nil)

// New returns an unstarted session.
func New(browserCfg config.BrowserConfig, netCfg config.NetworkConfig, logger *zap.Logger) *Session {
	return &Session{
		browserCfg: browserCfg,
		netCfg:     netCfg,
		persona:    stealth.DefaultPersona.WithUserAgent(browserCfg.UserAgent),
		logger:     logger.Named("chromedp"),
		idle:       newIdleTracker(),
	}
}

// Start launches Chrome, applies the stealth persona and opens about:blank.
// ctx bounds the launch only; the browser lives until Close.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.tabCtx != nil:
		return ErrAlreadyStarted
	}

	s.logger.Info("Launching browser.", zap.Bool("headless", s.browserCfg.Headless))

	opts := AllocatorOptions(s.browserCfg, s.persona.UserAgent)
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Debugf),
	)

	// The first Run allocates the browser. It gets the tab context itself, a
	// deadline on it would kill the process when it expires.
	launched := make(chan error, 1)
	go func() { launched <- chromedp.Run(tabCtx) }()

	launchTimeout := s.timeout(s.netCfg.NavigationTimeout)
	select {
	case err := <-launched:
		if err != nil {
			tabCancel()
			allocCancel()
			return fmt.Errorf("browser failed to start: %w", err)
		}
	case <-time.After(launchTimeout):
		tabCancel()
		allocCancel()
		return fmt.Errorf("browser failed to start within %v", launchTimeout)
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return ctx.Err()
	}

	chromedp.ListenTarget(tabCtx, s.idle.handleEvent)

	setup := chromedp.Tasks{network.Enable()}
	setup = append(setup, stealth.Apply(s.persona, s.logger)...)
	if w, h := s.browserCfg.Viewport.Width, s.browserCfg.Viewport.Height; w > 0 && h > 0 {
		setup = append(setup, emulation.SetDeviceMetricsOverride(int64(w), int64(h), 1, false))
	}
	setup = append(setup, chromedp.Navigate("about:blank"))

	opCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, launchTimeout)
	defer cancelTimeout()
	if err := chromedp.Run(opCtx, setup); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("failed to prepare browser tab: %w", err)
	}

	s.tabCtx, s.tabCancel, s.allocCancel = tabCtx, tabCancel, allocCancel
	s.logger.Info("Browser launched and responsive.")
	return nil
}

// Close shuts the browser down. Calling it again, or on a session that never
// started, is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.tabCtx == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.tabCtx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(closeTimeout):
		err = fmt.Errorf("browser did not close within %v", closeTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.tabCancel()
	s.allocCancel()
	s.tabCtx = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Browser shutdown was not clean.", zap.Error(err))
		return err
	}
	s.logger.Info("Browser closed.")
	return nil
}

func (s *Session) tab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return nil, ErrClosed
	case s.tabCtx == nil:
		return nil, ErrNotStarted
	}
	return s.tabCtx, nil
}

func (s *Session) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultOpTimeout
}

// run executes actions on the tab, bounded by ctx and timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tabCtx, err := s.tab()
	if err != nil {
		return err
	}
	opCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, s.timeout(timeout))
	defer cancelTimeout()

	err = chromedp.Run(opCtx, actions...)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("timeout after %v: %w", s.timeout(timeout), err)
	}
	return err
}

// requireNode fails fast with ErrElementNotFound instead of letting the
// visibility wait of the following action run into its timeout.
func (s *Session) requireNode(ctx context.Context, locator string) error {
	var nodes []*cdp.Node
	err := s.run(ctx, s.netCfg.Timeout,
		chromedp.Nodes(locator, &nodes, queryOption(locator), chromedp.AtLeast(0)),
	)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no node matches %q: %w", locator, schemas.ErrElementNotFound)
	}
	return nil
}

// -- Navigation --

// Goto loads url and then waits for the network to go quiet. A page that
// keeps polling never goes quiet, so the idle wait is best effort.
func (s *Session) Goto(ctx context.Context, url string) error {
	s.idle.reset()
	if err := s.run(ctx, s.netCfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.timeout(s.netCfg.NavigationTimeout))
	defer cancel()
	if err := s.idle.wait(waitCtx, s.netCfg.IdleQuietPeriod); err != nil {
		s.logger.Debug("Network did not go idle after navigation.",
			zap.String("url", url),
			zap.Int("inflight", s.idle.active()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, s.netCfg.Timeout, chromedp.Location(&url))
	return url, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, s.netCfg.Timeout, chromedp.Title(&title))
	return title, err
}

// -- Interaction --

func (s *Session) Click(ctx context.Context, locator string) error {
	if err := s.requireNode(ctx, locator); err != nil {
		return err
	}
	return s.run(ctx, s.netCfg.Timeout,
		chromedp.Click(locator, queryOption(locator), chromedp.NodeVisible),
	)
}

func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	return s.run(ctx, s.netCfg.Timeout, chromedp.MouseClickXY(x, y))
}

// Fill clears the input and types text into it with real key events.
func (s *Session) Fill(ctx context.Context, locator, text string) error {
	if err := s.requireNode(ctx, locator); err != nil {
		return err
	}
	by := queryOption(locator)
	return s.run(ctx, s.netCfg.Timeout,
		chromedp.ScrollIntoView(locator, by),
		chromedp.WaitVisible(locator, by),
		chromedp.Clear(locator, by),
		chromedp.SendKeys(locator, text, by),
	)
}

func (s *Session) PressKey(ctx context.Context, key string) error {
	k, mods, err := parseKey(key)
	if err != nil {
		return err
	}
	var opts []chromedp.KeyOption
	if mods != 0 {
		opts = append(opts, chromedp.KeyModifiers(mods))
	}
	return s.run(ctx, s.netCfg.Timeout, chromedp.KeyEvent(k, opts...))
}

func (s *Session) ScrollBy(ctx context.Context, dx, dy int) error {
	return s.run(ctx, s.netCfg.Timeout,
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy), nil),
	)
}

// -- Inspection --

// EvaluateScript runs script in the page and decodes its JSON result into res.
func (s *Session) EvaluateScript(ctx context.Context, script string, res any) error {
	return s.run(ctx, s.netCfg.Timeout, chromedp.Evaluate(script, res))
}

func (s *Session) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.netCfg.Timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(opts.Quality))
		if opts.Width > 0 && opts.Height > 0 {
			params = params.WithClip(&page.Viewport{
				X:      opts.ClipX,
				Y:      opts.ClipY,
				Width:  opts.Width,
				Height: opts.Height,
				Scale:  1,
			})
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	return buf, err
}
