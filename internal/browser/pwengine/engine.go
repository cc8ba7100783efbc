// Package pwengine implements the browser primitives on top of Playwright.
package pwengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/session"
	"github.com/xkilldash9x/webpilot/internal/browser/stealth"
	"github.com/xkilldash9x/webpilot/internal/config"
)

var (
	ErrNotStarted     = errors.New("playwright engine not started")
	ErrAlreadyStarted = errors.New("playwright engine already started")
	ErrClosed         = errors.New("playwright engine closed")
)

const (
	playwrightInstallTimeout = 5 * time.Minute
	defaultTimeout           = 30 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Engine owns a Playwright driver, one Chromium instance, one context and
// one page.
type Engine struct {
	browserCfg config.BrowserConfig
	netCfg     config.NetworkConfig
	persona    stealth.Persona
	logger     *zap.Logger

	// Install is called before the driver starts. Tests replace it.
	Install func(*playwright.RunOptions) error

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	closed  bool
}

var _ schemas.Browser = (*Engine)(nil)

func New(browserCfg config.BrowserConfig, netCfg config.NetworkConfig, logger *zap.Logger) *Engine {
	return &Engine{
		browserCfg: browserCfg,
		netCfg:     netCfg,
		persona:    stealth.DefaultPersona.WithUserAgent(browserCfg.UserAgent),
		logger:     logger.Named("playwright"),
		Install:    func(o *playwright.RunOptions) error { return playwright.Install(o) },
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return ErrClosed
	case e.page != nil:
		return ErrAlreadyStarted
	}

	e.logger.Info("Initializing Playwright and launching browser...")
	runOpts := &playwright.RunOptions{Browsers: []string{"chromium"}, Verbose: false}
	if err := e.ensureInstallation(ctx, runOpts); err != nil {
		return err
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(e.launchOptions())
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser instance: %w", err)
	}

	bctx, err := browser.NewContext(e.contextOptions())
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(e.persona.Script())}); err != nil {
		e.logger.Warn("Failed to install evasions script.", zap.Error(err))
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(millis(e.timeout(e.netCfg.Timeout)))
	page.SetDefaultNavigationTimeout(millis(e.timeout(e.netCfg.NavigationTimeout)))

	e.pw, e.browser, e.bctx, e.page = pw, browser, bctx, page
	e.logger.Info("Browser launched.", zap.String("browser_version", browser.Version()))
	return nil
}

// ensureInstallation runs the blocking driver install under ctx.
func (e *Engine) ensureInstallation(ctx context.Context, opts *playwright.RunOptions) error {
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- e.Install(opts) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func (e *Engine) launchOptions() playwright.BrowserTypeLaunchOptions {
	args := []string{"--disable-blink-features=AutomationControlled", "--disable-extensions"}
	if e.browserCfg.Headless {
		args = append(args, "--disable-gpu")
	}
	args = append(args, "--no-sandbox", "--disable-dev-shm-usage")
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.browserCfg.Headless),
		Args:     append(args, e.browserCfg.Args...),
		Timeout:  playwright.Float(millis(e.timeout(e.netCfg.NavigationTimeout))),
	}
}

func (e *Engine) contextOptions() playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(e.persona.UserAgent),
		IgnoreHttpsErrors: playwright.Bool(e.browserCfg.IgnoreTLSErrors),
	}
	if w, h := e.browserCfg.Viewport.Width, e.browserCfg.Viewport.Height; w > 0 && h > 0 {
		opts.Viewport = &playwright.Size{Width: w, Height: h}
	}
	if e.persona.Locale != "" {
		opts.Locale = playwright.String(e.persona.Locale)
	}
	if e.persona.Timezone != "" {
		opts.TimezoneId = playwright.String(e.persona.Timezone)
	}
	return opts
}

// Close tears down page, context, browser and driver in that order.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.pw == nil {
		return nil
	}

	var errs []error
	if err := e.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.bctx.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright driver: %w", err))
	}
	e.pw, e.browser, e.bctx, e.page = nil, nil, nil, nil

	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("Browser shutdown was not clean.", zap.Error(err))
		return err
	}
	e.logger.Info("Browser closed.")
	return nil
}

func (e *Engine) current(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return nil, ErrClosed
	case e.page == nil:
		return nil, ErrNotStarted
	}
	return e.page, nil
}

func (e *Engine) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultTimeout
}

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}

// Selector turns a CSS or XPath locator into a Playwright selector.
func Selector(locator string) string {
	locator = strings.TrimSpace(locator)
	if session.IsXPath(locator) {
		return "xpath=" + locator
	}
	return locator
}

// locate returns the locator for sel, or ErrElementNotFound when nothing
// matches right now.
func (e *Engine) locate(ctx context.Context, locator string) (playwright.Locator, error) {
	page, err := e.current(ctx)
	if err != nil {
		return nil, err
	}
	loc := page.Locator(Selector(locator)).First()
	n, err := page.Locator(Selector(locator)).Count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no node matches %q: %w", locator, schemas.ErrElementNotFound)
	}
	return loc, nil
}

// -- Navigation --

func (e *Engine) Goto(ctx context.Context, url string) error {
	page, err := e.current(ctx)
	if err != nil {
		return err
	}
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (e *Engine) CurrentURL(ctx context.Context) (string, error) {
	page, err := e.current(ctx)
	if err != nil {
		return "", err
	}
	return page.URL(), nil
}

func (e *Engine) Title(ctx context.Context) (string, error) {
	page, err := e.current(ctx)
	if err != nil {
		return "", err
	}
	return page.Title()
}

// -- Interaction --

func (e *Engine) Click(ctx context.Context, locator string) error {
	loc, err := e.locate(ctx, locator)
	if err != nil {
		return err
	}
	return loc.Click()
}

func (e *Engine) ClickAt(ctx context.Context, x, y float64) error {
	page, err := e.current(ctx)
	if err != nil {
		return err
	}
	return page.Mouse().Click(x, y)
}

func (e *Engine) Fill(ctx context.Context, locator, text string) error {
	loc, err := e.locate(ctx, locator)
	if err != nil {
		return err
	}
	return loc.Fill(text)
}

// PressKey passes key through; Playwright understands "Enter" and
// "Control+A" natively.
func (e *Engine) PressKey(ctx context.Context, key string) error {
	page, err := e.current(ctx)
	if err != nil {
		return err
	}
	return page.Keyboard().Press(strings.TrimSpace(key))
}

func (e *Engine) ScrollBy(ctx context.Context, dx, dy int) error {
	page, err := e.current(ctx)
	if err != nil {
		return err
	}
	_, err = page.Evaluate(fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy))
	return err
}

// -- Inspection --

// EvaluateScript runs script and round-trips the result through JSON into res.
func (e *Engine) EvaluateScript(ctx context.Context, script string, res any) error {
	page, err := e.current(ctx)
	if err != nil {
		return err
	}
	out, err := page.Evaluate(script)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	return decodeResult(out, res)
}

func decodeResult(out interface{}, res any) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode script result: %w", err)
	}
	if err := json.Unmarshal(data, res); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

func (e *Engine) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	page, err := e.current(ctx)
	if err != nil {
		return nil, err
	}
	return page.Screenshot(screenshotOptions(opts))
}

func screenshotOptions(opts schemas.ScreenshotOptions) playwright.PageScreenshotOptions {
	out := playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: playwright.Int(opts.Quality),
	}
	if opts.Width > 0 && opts.Height > 0 {
		out.Clip = &playwright.Rect{X: opts.ClipX, Y: opts.ClipY, Width: opts.Width, Height: opts.Height}
	}
	return out
}
