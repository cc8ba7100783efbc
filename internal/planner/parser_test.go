package planner

import (
	"fmt"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestParseWithReason(t *testing.T) {
	fallback := schemas.FallbackPlan()

	testCases := []struct {
		name    string
		raw     string
		want    schemas.Plan
		wantErr error
	}{
		{
			name: "plain navigate",
			raw:  `{"thoughts":"open it","action":{"type":"navigate","details":{"url":"https://example.com"}},"confidence":0.9}`,
			want: schemas.Plan{Thoughts: "open it", Action: schemas.NavigateTo("https://example.com"), Confidence: 0.9},
		},
		{
			name: "fenced with prose",
			raw:  "Let me think.\n```json\n{\"thoughts\":\"search\",\"action\":{\"type\":\"type\",\"details\":{\"selector\":\"#q\",\"text\":\"go\"}},\"confidence\":0.7}\n```\nGood luck!",
			want: schemas.Plan{Thoughts: "search", Action: schemas.TypeInto("#q", "go"), Confidence: 0.7},
		},
		{
			name: "missing confidence defaults",
			raw:  `{"thoughts":"done","action":{"type":"complete","details":{"result":"found it"}}}`,
			want: schemas.Plan{Thoughts: "done", Action: schemas.Complete("found it"), Confidence: DefaultConfidence},
		},
		{
			name: "confidence above range clamps",
			raw:  `{"action":{"type":"press","details":{"key":"Enter"}},"confidence":7}`,
			want: schemas.Plan{Action: schemas.PressKey("Enter"), Confidence: 1},
		},
		{
			name: "confidence below range clamps",
			raw:  `{"action":{"type":"wait","details":{"seconds":0}},"confidence":-0.3}`,
			want: schemas.Plan{Action: schemas.WaitFor(0), Confidence: 0},
		},
		{
			name: "camel case ask user alias",
			raw:  `{"action":{"type":"askUser","details":{"question":"Which account?"}},"confidence":0.4}`,
			want: schemas.Plan{Action: schemas.AskUser("Which account?"), Confidence: 0.4},
		},
		{
			name: "first valid object wins over later ones",
			raw:  `{"action":{"type":"scroll","details":{"direction":"up","amount":100}}} {"action":{"type":"complete"}}`,
			want: schemas.Plan{Action: schemas.Scroll(schemas.ScrollUp, 100), Confidence: DefaultConfidence},
		},
		{
			name: "object without action skipped for a later plan",
			raw:  `Context: {"note":"ignore"} Plan: {"action":{"type":"click","details":{"x":10,"y":20}}}`,
			want: schemas.Plan{Action: schemas.ClickAt(10, 20), Confidence: DefaultConfidence},
		},
		{name: "no json", raw: "I am not sure what to do.", want: fallback, wantErr: ErrNoJSONObject},
		{name: "empty", raw: "", want: fallback, wantErr: ErrNoJSONObject},
		{name: "broken json", raw: `{"thoughts": "x", "action": {`, want: fallback, wantErr: ErrNoJSONObject},
		{name: "no action", raw: `{"thoughts":"hmm","confidence":0.3}`, want: fallback, wantErr: ErrMissingAction},
		{name: "null action", raw: `{"thoughts":"hmm","action":null}`, want: fallback, wantErr: ErrMissingAction},
		{name: "unknown type", raw: `{"action":{"type":"hover","details":{}}}`, want: fallback, wantErr: ErrInvalidAction},
		{name: "action not an object", raw: `{"action":"navigate"}`, want: fallback, wantErr: ErrInvalidAction},
		{name: "click without target", raw: `{"action":{"type":"click","details":{}}}`, want: fallback, wantErr: ErrInvalidAction},
		{
			name:    "malformed plan hides a nested alternative",
			raw:     `{"thoughts":"x","alternatives":[{"action":{"type":"navigate","details":{"url":"https://other.example"}}}],"action":{"type":"wait","details":{"seconds":1}},}`,
			want:    fallback,
			wantErr: ErrNoJSONObject,
		},
		{
			name:    "action wrapped under another key",
			raw:     `{"plan":{"action":{"type":"click","details":{"selector":"#delete-account"}}}}`,
			want:    fallback,
			wantErr: ErrMissingAction,
		},
		{name: "wait above ceiling", raw: `{"action":{"type":"wait","details":{"seconds":1e10}}}`, want: fallback, wantErr: ErrInvalidAction},
		{name: "navigate without url", raw: `{"action":{"type":"navigate"}}`, want: fallback, wantErr: ErrInvalidAction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseWithReason(tc.raw)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseUnknownTypeWrapsUnknownAction(t *testing.T) {
	_, err := ParseWithReason(`{"action":{"type":"teleport"}}`)
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.ErrorIs(t, err, schemas.ErrUnknownAction)
}

func TestFallbackReason(t *testing.T) {
	assert.Equal(t, "", FallbackReason(nil))
	assert.Equal(t, "no_json_object", FallbackReason(fmt.Errorf("wrapped: %w", ErrNoJSONObject)))
	assert.Equal(t, "missing_action", FallbackReason(ErrMissingAction))
	assert.Equal(t, "invalid_action", FallbackReason(ErrInvalidAction))
	assert.Equal(t, "other", FallbackReason(assert.AnError))
}

// -- Property Tests --

var proseGen = rapid.StringMatching(`[a-zA-Z0-9 .,:;!?\n-]{0,80}`)

func TestParseWithoutJSONAlwaysFallsBack(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.StringMatching(`[^{}]{0,200}`).Draw(rt, "raw")

		plan := Parse(raw)

		assert.Equal(rt, schemas.FallbackPlan(), plan)
		assert.Equal(rt, 0.1, plan.Confidence)
		assert.Equal(rt, schemas.ActionWait, plan.Action.Kind)
	})
}

func actionGen() *rapid.Generator[schemas.Action] {
	word := rapid.StringMatching(`[a-zA-Z0-9#.\-_/]{1,24}`)
	return rapid.Custom(func(rt *rapid.T) schemas.Action {
		switch rapid.IntRange(0, 7).Draw(rt, "kind") {
		case 0:
			return schemas.NavigateTo("https://" + word.Draw(rt, "host"))
		case 1:
			if rapid.Bool().Draw(rt, "by_selector") {
				return schemas.ClickOn(word.Draw(rt, "selector"))
			}
			return schemas.ClickAt(
				float64(rapid.IntRange(0, 2000).Draw(rt, "x")),
				float64(rapid.IntRange(0, 2000).Draw(rt, "y")),
			)
		case 2:
			return schemas.TypeInto(word.Draw(rt, "selector"), word.Draw(rt, "text"))
		case 3:
			return schemas.PressKey(rapid.SampledFrom([]string{"Enter", "Tab", "Escape", "ArrowDown"}).Draw(rt, "key"))
		case 4:
			dir := rapid.SampledFrom([]schemas.ScrollDirection{schemas.ScrollUp, schemas.ScrollDown}).Draw(rt, "dir")
			return schemas.Scroll(dir, float64(rapid.IntRange(0, 5000).Draw(rt, "amount")))
		case 5:
			return schemas.WaitFor(float64(rapid.IntRange(0, 30).Draw(rt, "seconds")))
		case 6:
			return schemas.AskUser(proseGen.Draw(rt, "question"))
		default:
			return schemas.Complete(proseGen.Draw(rt, "result"))
		}
	})
}

func TestParseReturnsEmbeddedPayloadUnchanged(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		want := schemas.Plan{
			Thoughts:   proseGen.Draw(rt, "thoughts"),
			Action:     actionGen().Draw(rt, "action"),
			Confidence: rapid.Float64Range(0, 1).Draw(rt, "confidence"),
		}
		payload, err := json.Marshal(want)
		require.NoError(rt, err)

		raw := proseGen.Draw(rt, "before") + string(payload) + proseGen.Draw(rt, "after")
		if rapid.Bool().Draw(rt, "fenced") {
			raw = "```json\n" + string(payload) + "\n```"
		}

		got, err := ParseWithReason(raw)
		require.NoError(rt, err)
		if diff := cmp.Diff(want, got); diff != "" {
			rt.Fatalf("plan changed by parsing (-want +got):\n%s", diff)
		}
	})
}

// -- Fuzz Testing --

// FuzzParse feeds structured plans and arbitrary text through the parser. The
// result must always be a plan whose action validates.
func FuzzParse(f *testing.F) {
	f.Add([]byte(`{"action":{"type":"wait"}}`))
	f.Add([]byte("```json\n{\"action\":{\"type\":\"navigate\",\"details\":{\"url\":\"x\"}}}\n```"))
	f.Add([]byte(`{"a":"}{","action":{"type":"click","details":{"x":1}}}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var details schemas.ActionDetails
		_ = consumer.GenerateStruct(&details)
		kind, _ := consumer.GetString()
		prose, _ := consumer.GetString()

		payload, err := json.Marshal(map[string]any{
			"thoughts": prose,
			"action":   map[string]any{"type": kind, "details": details},
		})
		if err != nil {
			return
		}

		for _, raw := range []string{string(data), prose + string(payload), strings.Repeat("{", 3) + string(payload)} {
			plan := Parse(raw)
			if err := plan.Action.Validate(); err != nil {
				t.Fatalf("parsed plan does not validate: %v (raw %q)", err, raw)
			}
			if plan.Confidence < 0 || plan.Confidence > 1 {
				t.Fatalf("confidence %v out of range", plan.Confidence)
			}
		}
	})
}
