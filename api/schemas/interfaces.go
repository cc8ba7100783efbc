package schemas

import (
	"context"
)

// -- Browser Capability --

// ScreenshotOptions narrows a capture to a cheap, low fidelity image.
type ScreenshotOptions struct {
	Quality int     `json:"quality"` // JPEG quality, 0-100.
	ClipX   float64 `json:"clip_x"`
	ClipY   float64 `json:"clip_y"`
	Width   float64 `json:"width"`  // Zero disables clipping.
	Height  float64 `json:"height"` // Zero disables clipping.
}

// Browser is the primitive set the agent core depends on. Implementations own
// a single page (tab) and are not required to be safe for concurrent use; the
// control loop never has two operations in flight at once.
type Browser interface {
	Start(ctx context.Context) error                                  // Launches the engine and opens the page.
	Close(ctx context.Context) error                                  // Releases every resource. Idempotent.
	CurrentURL(ctx context.Context) (string, error)                   // URL of the active page.
	Title(ctx context.Context) (string, error)                        // Document title of the active page.
	EvaluateScript(ctx context.Context, script string, res any) error // Runs JS and decodes the result into res.
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Goto(ctx context.Context, url string) error           // Loads url and waits for network idle.
	Click(ctx context.Context, locator string) error      // Clicks the element addressed by a CSS or XPath locator.
	ClickAt(ctx context.Context, x, y float64) error      // Clicks raw viewport coordinates.
	Fill(ctx context.Context, locator, text string) error // Clears the located input and types text.
	PressKey(ctx context.Context, key string) error       // Simulates a single named key press.
	ScrollBy(ctx context.Context, dx, dy int) error       // Scrolls the viewport relative to its position.
}

// -- Planner Capability --

// GenerationOptions controls sampling for a single completion.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest is one planner invocation. The agent sends its whole
// context as UserPrompt; SystemPrompt is optional.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient is the planner capability: given a context string, return a text
// completion or fail.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
