package planner

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func sampleState() schemas.PageState {
	return schemas.PageState{
		URL:         "https://example.com/search",
		Title:       "Example Search",
		VisibleText: "Welcome to Example. Type a query below.",
		InteractiveElements: []schemas.InteractiveElement{
			{Tag: "input", Placeholder: "Search...", ElementType: "text", Locator: `//*[@id="q"]`},
			{Tag: "button", Text: "Go", ElementType: "submit", Role: "button", Locator: "/html/body/form[1]/button[1]"},
		},
		Outline: []schemas.OutlineEntry{
			{Tag: "h1", Text: "Example"},
			{Tag: "nav", Text: "Home About"},
		},
	}
}

func historyEntry(a schemas.Action, r schemas.ActionResult) schemas.HistoryEntry {
	return schemas.HistoryEntry{Timestamp: time.Unix(1700000000, 0), Action: a, Result: r, Success: r.Success}
}

func TestFormatSections(t *testing.T) {
	history := []schemas.HistoryEntry{
		historyEntry(schemas.NavigateTo("https://example.com"), schemas.Succeeded("Navigated to https://example.com")),
		historyEntry(schemas.ClickOn("#missing"), schemas.Failed(schemas.ErrCodeElementNotFound, "no node matched")),
	}

	out := Format("find the docs", history, sampleState())

	assert.True(t, strings.HasPrefix(out, "You are an autonomous web agent"))
	assert.Contains(t, out, "CURRENT TASK: find the docs\n")
	assert.Contains(t, out, "ACTION HISTORY (last 2):\n")
	assert.Contains(t, out, `1. navigate {"url":"https://example.com"} -> ok: Navigated to https://example.com`)
	assert.Contains(t, out, `2. click {"selector":"#missing"} -> failed: no node matched`)
	assert.Contains(t, out, "- URL: https://example.com/search\n")
	assert.Contains(t, out, "- Title: Example Search\n")
	assert.Contains(t, out, "Welcome to Example.")
	assert.Contains(t, out, `1. input placeholder: 'Search...' type: text xpath: //*[@id="q"]`)
	assert.Contains(t, out, "2. button text: 'Go' type: submit role: button xpath: /html/body/form[1]/button[1]")
	assert.Contains(t, out, "h1: Example\nnav: Home About\n")
	assert.True(t, strings.HasSuffix(out, closingQuestion+"\n"))
}

func TestFormatEmptyInputs(t *testing.T) {
	out := Format("task", nil, schemas.PageState{})

	assert.Contains(t, out, "ACTION HISTORY (last 0):\nNo actions yet\n")
	assert.Contains(t, out, "- URL: Unknown\n")
	assert.Contains(t, out, "- Title: Unknown\n")
	assert.Contains(t, out, "No interactive elements\n")
	assert.Contains(t, out, "No structure available\n")
}

func TestFormatBounds(t *testing.T) {
	var history []schemas.HistoryEntry
	for i := 0; i < 9; i++ {
		history = append(history, historyEntry(schemas.PressKey(fmt.Sprintf("Key%d", i)), schemas.Succeeded("ok")))
	}
	state := sampleState()
	state.VisibleText = strings.Repeat("ж", 3000)
	state.InteractiveElements = nil
	for i := 0; i < 30; i++ {
		state.InteractiveElements = append(state.InteractiveElements, schemas.InteractiveElement{Tag: "a", Text: fmt.Sprintf("link-%02d", i)})
	}

	out := Format("bounded", history, state)

	// Only the five most recent entries, renumbered from one.
	assert.Contains(t, out, "ACTION HISTORY (last 5):")
	assert.NotContains(t, out, `"Key3"`)
	assert.Contains(t, out, `1. press {"key":"Key4"}`)
	assert.Contains(t, out, `5. press {"key":"Key8"}`)

	assert.Equal(t, 2000, strings.Count(out, "ж"))
	assert.Contains(t, out, "link-19")
	assert.NotContains(t, out, "link-20")
}

func TestFormatExcludesScreenshot(t *testing.T) {
	state := sampleState()
	state.Screenshot = "data:image/jpeg;base64,AAAA"
	assert.NotContains(t, Format("t", nil, state), "data:image/jpeg")
}

func TestFormatIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String()
		task := text.Draw(rt, "task")
		state := schemas.PageState{
			URL:         text.Draw(rt, "url"),
			Title:       text.Draw(rt, "title"),
			VisibleText: text.Draw(rt, "visible"),
			Outline:     []schemas.OutlineEntry{{Tag: "h2", Text: text.Draw(rt, "heading")}},
		}
		n := rapid.IntRange(0, 8).Draw(rt, "history")
		var history []schemas.HistoryEntry
		for i := 0; i < n; i++ {
			history = append(history, historyEntry(schemas.WaitFor(float64(i)), schemas.Succeeded(text.Draw(rt, "result"))))
		}

		first := Format(task, history, state)
		second := Format(task, history, state)
		if first != second {
			rt.Fatalf("Format is not deterministic")
		}
	})
}
