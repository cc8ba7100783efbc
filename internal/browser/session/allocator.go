package session

import (
	"runtime"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// launchFlags assembles the Chrome command line for cfg. Flags from
// cfg.Args are applied last and win over the built-in ones.
func launchFlags(cfg config.BrowserConfig, goos string) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                  cfg.Headless,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
		"enable-automation":         false,
	}

	// Containers need these on Linux.
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions translates the browser config into exec allocator options
// layered over chromedp's defaults. A false boolean flag removes the default.
func AllocatorOptions(cfg config.BrowserConfig, userAgent string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := launchFlags(cfg, runtime.GOOS)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	return opts
}
