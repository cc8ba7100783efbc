package schemas

// Bounds applied while capturing and rendering page state.
const (
	MaxVisibleTextRunes = 5000
	MaxContextTextRunes = 2000
	MaxInteractiveItems = 20
	MaxElementTextRunes = 100
	MaxOutlineTextRunes = 200
)

// InteractiveElement describes one visible, interactable node at capture time.
type InteractiveElement struct {
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	Placeholder string `json:"placeholder,omitempty"`
	ElementType string `json:"type,omitempty"`
	Href        string `json:"href,omitempty"`
	ID          string `json:"id,omitempty"`
	ClassNames  string `json:"class,omitempty"`
	Role        string `json:"role,omitempty"`
	// Locator is an XPath, id based when the node has an id and positional
	// through same-tag siblings otherwise.
	Locator string `json:"xpath"`
	CenterX int    `json:"center_x"`
	CenterY int    `json:"center_y"`
}

// OutlineEntry is one landmark or heading of the page structure.
type OutlineEntry struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
	ID   string `json:"id"`
}

// PageState is an immutable snapshot of the page taken once per step.
type PageState struct {
	URL                 string               `json:"url"`
	Title               string               `json:"title"`
	VisibleText         string               `json:"visible_text"`
	InteractiveElements []InteractiveElement `json:"interactive_elements"`
	Outline             []OutlineEntry       `json:"page_structure"`
	// Screenshot is an optional data URI; it never enters the planner context.
	Screenshot string `json:"screenshot,omitempty"`
}

// IsEmpty reports whether capture produced nothing usable.
func (p PageState) IsEmpty() bool {
	return p.URL == "" && p.Title == "" && p.VisibleText == "" &&
		len(p.InteractiveElements) == 0 && len(p.Outline) == 0
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
