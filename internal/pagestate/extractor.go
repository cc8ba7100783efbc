// Package pagestate captures bounded, planner-sized snapshots of a live page.
package pagestate

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// MinimalScreenshot is the capture used when screenshots are enabled.
var MinimalScreenshot = schemas.ScreenshotOptions{Quality: 30, Width: 800, Height: 600}

// Options tunes a capture.
type Options struct {
	CaptureScreenshot bool
}

// Extractor reads page state through the browser primitives.
type Extractor struct {
	browser schemas.Browser
	opts    Options
	logger  *zap.Logger
}

func NewExtractor(browser schemas.Browser, opts Options, logger *zap.Logger) *Extractor {
	return &Extractor{
		browser: browser,
		opts:    opts,
		logger:  logger.Named("pagestate"),
	}
}

// Capture never fails. Each part of the snapshot is read independently and
// a part that cannot be read is left empty. When the scripted text or
// outline capture fails, the static HTML is used to fill the gaps.
func (e *Extractor) Capture(ctx context.Context) schemas.PageState {
	var state schemas.PageState

	url, err := e.browser.CurrentURL(ctx)
	if err != nil {
		e.warn("url", err)
	}
	state.URL = url

	title, err := e.browser.Title(ctx)
	if err != nil {
		e.warn("title", err)
	}
	state.Title = title

	var text string
	textErr := e.browser.EvaluateScript(ctx, visibleTextScript, &text)
	if textErr != nil {
		e.warn("visible_text", textErr)
	}
	state.VisibleText = schemas.TruncateRunes(text, schemas.MaxVisibleTextRunes)

	var elements []schemas.InteractiveElement
	elementsErr := e.browser.EvaluateScript(ctx, interactiveElementsScript, &elements)
	if elementsErr != nil {
		e.warn("interactive_elements", elementsErr)
	}
	state.InteractiveElements = boundElements(elements)

	var entries []schemas.OutlineEntry
	outlineErr := e.browser.EvaluateScript(ctx, outlineScript, &entries)
	if outlineErr != nil {
		e.warn("outline", outlineErr)
	}
	state.Outline = boundOutline(entries)

	if textErr != nil || outlineErr != nil || elementsErr != nil {
		e.fillFromHTML(ctx, &state, textErr != nil, elementsErr != nil, outlineErr != nil)
	}

	if e.opts.CaptureScreenshot {
		state.Screenshot = e.screenshot(ctx)
	}

	e.logger.Debug("Captured page state.",
		zap.String("url", state.URL),
		zap.Int("text_runes", len([]rune(state.VisibleText))),
		zap.Int("elements", len(state.InteractiveElements)),
		zap.Int("outline", len(state.Outline)),
	)
	return state
}

func (e *Extractor) warn(part string, err error) {
	e.logger.Warn("Page state capture degraded.", zap.String("part", part), zap.Error(err))
}

func (e *Extractor) fillFromHTML(ctx context.Context, state *schemas.PageState, text, elements, outline bool) {
	var doc string
	if err := e.browser.EvaluateScript(ctx, outerHTMLScript, &doc); err != nil || doc == "" {
		if err != nil {
			e.warn("html_fallback", err)
		}
		return
	}
	fallback, err := FromHTML(doc, state.URL)
	if err != nil {
		e.warn("html_fallback", err)
		return
	}

	if text {
		state.VisibleText = fallback.VisibleText
	}
	if elements {
		state.InteractiveElements = fallback.InteractiveElements
	}
	if outline {
		state.Outline = fallback.Outline
	}
	if state.Title == "" {
		state.Title = fallback.Title
	}
	e.logger.Info("Filled page state from static HTML.", zap.String("url", state.URL))
}

func (e *Extractor) screenshot(ctx context.Context) string {
	buf, err := e.browser.Screenshot(ctx, MinimalScreenshot)
	if err != nil {
		e.warn("screenshot", err)
		return ""
	}
	if len(buf) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf)
}

func boundElements(in []schemas.InteractiveElement) []schemas.InteractiveElement {
	if len(in) > schemas.MaxInteractiveItems {
		in = in[:schemas.MaxInteractiveItems]
	}
	for i := range in {
		in[i].Text = schemas.TruncateRunes(in[i].Text, schemas.MaxElementTextRunes)
	}
	return in
}

func boundOutline(in []schemas.OutlineEntry) []schemas.OutlineEntry {
	for i := range in {
		in[i].Text = schemas.TruncateRunes(in[i].Text, schemas.MaxOutlineTextRunes)
	}
	return in
}
