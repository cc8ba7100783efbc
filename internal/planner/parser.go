package planner

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// DefaultConfidence is assumed when the planner omits a confidence.
const DefaultConfidence = 0.5

var (
	ErrNoJSONObject  = llmutil.ErrNoJSONObject
	ErrMissingAction = errors.New("planner response has no action")
	ErrInvalidAction = errors.New("planner response has an invalid action")
)

// wirePlan mirrors the planner's JSON. Action stays raw so a malformed action
// is reported as invalid rather than hiding the whole object.
type wirePlan struct {
	Thoughts   string              `json:"thoughts"`
	Action     jsoniter.RawMessage `json:"action"`
	Confidence *float64            `json:"confidence"`
}

type wireAction struct {
	Type    string                `json:"type"`
	Details schemas.ActionDetails `json:"details"`
}

func hasAction(p *wirePlan) bool {
	raw := bytes.TrimSpace(p.Action)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// Parse returns the plan in raw, or the fallback plan when raw holds none.
func Parse(raw string) schemas.Plan {
	plan, _ := ParseWithReason(raw)
	return plan
}

// ParseWithReason is Parse that also reports why the fallback was used. The
// error wraps ErrNoJSONObject, ErrMissingAction or ErrInvalidAction; the plan
// is always usable.
func ParseWithReason(raw string) (schemas.Plan, error) {
	wp, err := llmutil.DecodeFirstObject(raw, hasAction)
	switch {
	case errors.Is(err, llmutil.ErrRejected):
		return schemas.FallbackPlan(), ErrMissingAction
	case err != nil:
		return schemas.FallbackPlan(), err
	}

	var wa wireAction
	if err := json.Unmarshal(wp.Action, &wa); err != nil {
		return schemas.FallbackPlan(), fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	kind, ok := schemas.ParseActionKind(wa.Type)
	if !ok {
		return schemas.FallbackPlan(), fmt.Errorf("%w: %w", ErrInvalidAction, schemas.Action{Kind: schemas.ActionKind(wa.Type)}.Validate())
	}
	action := schemas.Action{Kind: kind, Details: wa.Details}
	if err := action.Validate(); err != nil {
		return schemas.FallbackPlan(), fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}

	return schemas.Plan{
		Thoughts:   wp.Thoughts,
		Action:     action,
		Confidence: clampConfidence(wp.Confidence),
	}, nil
}

func clampConfidence(c *float64) float64 {
	switch {
	case c == nil:
		return DefaultConfidence
	case *c < 0:
		return 0
	case *c > 1:
		return 1
	}
	return *c
}

// FallbackReason maps a ParseWithReason error onto a short metric label.
func FallbackReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAction):
		return "missing_action"
	case errors.Is(err, ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, ErrNoJSONObject):
		return "no_json_object"
	}
	return "other"
}
