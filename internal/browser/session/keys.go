package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// namedKeys maps DOM key names, as planners write them, onto chromedp's
// key table. Lookups are case-insensitive.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"insert":     kb.Insert,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
	"f1":         kb.F1,
	"f2":         kb.F2,
	"f3":         kb.F3,
	"f4":         kb.F4,
	"f5":         kb.F5,
	"f6":         kb.F6,
	"f7":         kb.F7,
	"f8":         kb.F8,
	"f9":         kb.F9,
	"f10":        kb.F10,
	"f11":        kb.F11,
	"f12":        kb.F12,
}

var modifierKeys = map[string]input.Modifier{
	"alt":     input.ModifierAlt,
	"control": input.ModifierCtrl,
	"ctrl":    input.ModifierCtrl,
	"meta":    input.ModifierMeta,
	"cmd":     input.ModifierMeta,
	"shift":   input.ModifierShift,
}

// parseKey resolves a key description such as "Enter", "a" or "Control+A"
// into the value chromedp.KeyEvent expects plus a modifier mask.
func parseKey(key string) (string, input.Modifier, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", 0, fmt.Errorf("empty key")
	}
	if key == "+" {
		return key, 0, nil
	}

	parts := strings.Split(key, "+")
	var mods input.Modifier
	for _, part := range parts[:len(parts)-1] {
		mod, ok := modifierKeys[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return "", 0, fmt.Errorf("unknown modifier %q in key %q", part, key)
		}
		mods |= mod
	}

	main := strings.TrimSpace(parts[len(parts)-1])
	if v, ok := namedKeys[strings.ToLower(main)]; ok {
		return v, mods, nil
	}
	if utf8.RuneCountInString(main) == 1 {
		return main, mods, nil
	}
	return "", 0, fmt.Errorf("unknown key %q", main)
}
