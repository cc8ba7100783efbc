// Package planner turns agent state into a planner prompt and turns the
// planner's free form answer back into a validated schemas.Plan.
package planner

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// HistoryWindow is how many recent history entries enter the context.
const HistoryWindow = 5

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format renders the bounded planner context. It is a pure function: equal
// inputs always give byte identical output.
func Format(task string, recent []schemas.HistoryEntry, state schemas.PageState) string {
	if len(recent) > HistoryWindow {
		recent = recent[len(recent)-HistoryWindow:]
	}
	elements := state.InteractiveElements
	if len(elements) > schemas.MaxInteractiveItems {
		elements = elements[:schemas.MaxInteractiveItems]
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "CURRENT TASK: %s\n\n", task)

	fmt.Fprintf(&b, "ACTION HISTORY (last %d):\n", len(recent))
	writeHistory(&b, recent)
	b.WriteString("\n")

	b.WriteString("CURRENT PAGE STATE:\n")
	fmt.Fprintf(&b, "- URL: %s\n", orUnknown(state.URL))
	fmt.Fprintf(&b, "- Title: %s\n\n", orUnknown(state.Title))

	fmt.Fprintf(&b, "VISIBLE TEXT (first %d characters):\n", schemas.MaxContextTextRunes)
	b.WriteString(schemas.TruncateRunes(state.VisibleText, schemas.MaxContextTextRunes))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "INTERACTIVE ELEMENTS (first %d):\n", schemas.MaxInteractiveItems)
	writeElements(&b, elements)
	b.WriteString("\n")

	b.WriteString("PAGE STRUCTURE:\n")
	writeOutline(&b, state.Outline)
	b.WriteString("\n")

	b.WriteString(closingQuestion)
	b.WriteString("\n")
	return b.String()
}

func writeHistory(b *strings.Builder, entries []schemas.HistoryEntry) {
	if len(entries) == 0 {
		b.WriteString("No actions yet\n")
		return
	}
	for i, e := range entries {
		outcome := "ok"
		if !e.Success {
			outcome = "failed"
		}
		fmt.Fprintf(b, "%d. %s %s -> %s: %s\n", i+1, kindOrUnknown(e.Action.Kind), canonicalDetails(e.Action.Details), outcome, e.Result.Text())
	}
}

// canonicalDetails renders details as compact JSON with a fixed field order.
func canonicalDetails(d schemas.ActionDetails) string {
	data, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func writeElements(b *strings.Builder, elements []schemas.InteractiveElement) {
	if len(elements) == 0 {
		b.WriteString("No interactive elements\n")
		return
	}
	for i, el := range elements {
		fmt.Fprintf(b, "%d. %s", i+1, el.Tag)
		if el.Text != "" {
			fmt.Fprintf(b, " text: '%s'", schemas.TruncateRunes(el.Text, schemas.MaxElementTextRunes))
		}
		if el.Placeholder != "" {
			fmt.Fprintf(b, " placeholder: '%s'", el.Placeholder)
		}
		if el.ElementType != "" {
			fmt.Fprintf(b, " type: %s", el.ElementType)
		}
		if el.Role != "" {
			fmt.Fprintf(b, " role: %s", el.Role)
		}
		if el.Locator != "" {
			fmt.Fprintf(b, " xpath: %s", el.Locator)
		}
		b.WriteString("\n")
	}
}

func writeOutline(b *strings.Builder, outline []schemas.OutlineEntry) {
	if len(outline) == 0 {
		b.WriteString("No structure available\n")
		return
	}
	for _, o := range outline {
		fmt.Fprintf(b, "%s: %s\n", o.Tag, schemas.TruncateRunes(o.Text, schemas.MaxOutlineTextRunes))
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func kindOrUnknown(k schemas.ActionKind) string {
	if k == "" {
		return "unknown"
	}
	return string(k)
}
