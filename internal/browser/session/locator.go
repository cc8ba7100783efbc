package session

import (
	"strings"

	"github.com/chromedp/chromedp"
)

// IsXPath reports whether locator should be evaluated as XPath rather than as
// a CSS selector. Extracted element locators always start with "/".
func IsXPath(locator string) bool {
	l := strings.TrimSpace(locator)
	return strings.HasPrefix(l, "/") || strings.HasPrefix(l, "(")
}

func queryOption(locator string) chromedp.QueryOption {
	if IsXPath(locator) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
