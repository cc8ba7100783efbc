package pagestate

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// FromHTML derives a snapshot from static markup, for pages whose scripted
// extraction failed. Without layout there are no center coordinates, and
// visibility is judged from markup alone.
func FromHTML(doc, pageURL string) (schemas.PageState, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return schemas.PageState{}, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	var base *url.URL
	if pageURL != "" {
		base, _ = url.Parse(pageURL)
	}

	return schemas.PageState{
		URL:                 pageURL,
		Title:               documentTitle(root),
		VisibleText:         schemas.TruncateRunes(visibleText(root), schemas.MaxVisibleTextRunes),
		InteractiveElements: interactiveElements(root, base),
		Outline:             outline(root),
	}, nil
}

// -- Visibility --

var hiddenContainers = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hiddenByStyle(style string) bool {
	s := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}

// hidden reports whether n itself hides its subtree.
func hidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if hiddenContainers[n.DataAtom] {
		return true
	}
	if hasAttr(n, "hidden") || hiddenByStyle(attr(n, "style")) {
		return true
	}
	return n.DataAtom == atom.Input && strings.EqualFold(attr(n, "type"), "hidden")
}

// walkVisible visits element nodes in document order, skipping hidden subtrees.
func walkVisible(n *html.Node, visit func(*html.Node)) {
	if hidden(n) {
		return
	}
	if n.Type == html.ElementNode || n.Type == html.TextNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkVisible(c, visit)
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// -- Sections --

func documentTitle(root *html.Node) string {
	if t := findFirst(root, atom.Title); t != nil {
		return strings.TrimSpace(textContent(t))
	}
	return ""
}

func visibleText(root *html.Node) string {
	body := findFirst(root, atom.Body)
	if body == nil {
		return ""
	}
	var texts []string
	walkVisible(body, func(n *html.Node) {
		if n.Type != html.TextNode {
			return
		}
		if t := strings.TrimSpace(n.Data); t != "" {
			texts = append(texts, t)
		}
	})
	return strings.Join(texts, "\n")
}

// interactivePredicates mirror the live selector list, in the same order.
var interactivePredicates = []func(*html.Node) bool{
	func(n *html.Node) bool { return n.DataAtom == atom.A },
	func(n *html.Node) bool { return n.DataAtom == atom.Button },
	func(n *html.Node) bool { return n.DataAtom == atom.Input },
	func(n *html.Node) bool { return n.DataAtom == atom.Textarea },
	func(n *html.Node) bool { return n.DataAtom == atom.Select },
	func(n *html.Node) bool { return attr(n, "role") == "button" },
	func(n *html.Node) bool { return attr(n, "role") == "link" },
	func(n *html.Node) bool { return attr(n, "role") == "textbox" },
	func(n *html.Node) bool { return hasAttr(n, "onclick") },
	func(n *html.Node) bool { return hasAttr(n, "href") },
	func(n *html.Node) bool { return attr(n, "type") == "submit" },
	func(n *html.Node) bool { return attr(n, "type") == "button" },
}

func interactiveElements(root *html.Node, base *url.URL) []schemas.InteractiveElement {
	body := findFirst(root, atom.Body)
	if body == nil {
		return nil
	}

	var candidates []*html.Node
	walkVisible(body, func(n *html.Node) {
		if n.Type == html.ElementNode {
			candidates = append(candidates, n)
		}
	})

	seen := make(map[*html.Node]bool)
	var out []schemas.InteractiveElement
	for _, match := range interactivePredicates {
		for _, n := range candidates {
			if seen[n] || !match(n) {
				continue
			}
			seen[n] = true
			out = append(out, describe(n, base))
			if len(out) == schemas.MaxInteractiveItems {
				return out
			}
		}
	}
	return out
}

// elementType reproduces the DOM's reflected type property.
func elementType(n *html.Node) string {
	t := strings.ToLower(attr(n, "type"))
	switch n.DataAtom {
	case atom.Input:
		if t == "" {
			return "text"
		}
		return t
	case atom.Button:
		if t == "" {
			return "submit"
		}
		return t
	case atom.Textarea:
		return "textarea"
	case atom.Select:
		if hasAttr(n, "multiple") {
			return "select-multiple"
		}
		return "select-one"
	}
	return ""
}

func resolveHref(n *html.Node, base *url.URL) string {
	if n.DataAtom != atom.A && n.DataAtom != atom.Area {
		return ""
	}
	href := attr(n, "href")
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func describe(n *html.Node, base *url.URL) schemas.InteractiveElement {
	return schemas.InteractiveElement{
		Tag:         n.Data,
		Text:        schemas.TruncateRunes(textContent(n), schemas.MaxElementTextRunes),
		Placeholder: attr(n, "placeholder"),
		ElementType: elementType(n),
		Href:        resolveHref(n, base),
		ID:          attr(n, "id"),
		ClassNames:  attr(n, "class"),
		Role:        attr(n, "role"),
		Locator:     XPath(n),
	}
}

var outlineTags = []atom.Atom{
	atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
	atom.Nav, atom.Header, atom.Footer, atom.Main, atom.Section, atom.Article,
}

func outline(root *html.Node) []schemas.OutlineEntry {
	body := findFirst(root, atom.Body)
	if body == nil {
		return nil
	}
	var visible []*html.Node
	walkVisible(body, func(n *html.Node) {
		if n.Type == html.ElementNode {
			visible = append(visible, n)
		}
	})

	var out []schemas.OutlineEntry
	for _, tag := range outlineTags {
		for _, n := range visible {
			if n.DataAtom != tag {
				continue
			}
			out = append(out, schemas.OutlineEntry{
				Tag:  n.Data,
				Text: schemas.TruncateRunes(textContent(n), schemas.MaxOutlineTextRunes),
				ID:   attr(n, "id"),
			})
		}
	}
	return out
}
