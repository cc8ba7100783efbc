package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
}

// DefaultPersona is a current desktop Chrome on Windows.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/Los_Angeles",
	Locale:    "en-US",
}

// WithUserAgent returns p with ua applied when ua is not empty.
func (p Persona) WithUserAgent(ua string) Persona {
	if ua != "" {
		p.UserAgent = ua
	}
	return p
}

// AcceptLanguage renders the persona's languages as an Accept-Language value.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	parts := []string{p.Languages[0]}
	q := 9
	for _, lang := range p.Languages[1:] {
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", lang, q))
		if q > 1 {
			q--
		}
	}
	return strings.Join(parts, ",")
}

// Script returns the evasion script prefixed with the persona it should report.
func (p Persona) Script() string {
	data, err := jsoniter.Marshal(map[string]interface{}{
		"platform":  p.Platform,
		"languages": p.Languages,
	})
	if err != nil {
		data = []byte("{}")
	}
	return fmt.Sprintf("window.__webpilotPersona = %s;\n%s", data, evasionsScript)
}

// Apply returns the CDP actions that make an automated tab look like a
// regular user's browser. Run them before the first navigation.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("user_agent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform).WithAcceptLanguage(p.AcceptLanguage()),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(p.Script()).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if lang := p.AcceptLanguage(); lang != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": lang}))
	}
	return tasks
}
