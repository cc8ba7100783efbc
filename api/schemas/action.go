package schemas

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ActionKind enumerates the closed set of actions a planner may request.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionPress    ActionKind = "press"
	ActionScroll   ActionKind = "scroll"
	ActionWait     ActionKind = "wait"
	ActionAskUser  ActionKind = "ask_user"
	ActionComplete ActionKind = "complete"
)

// ScrollDirection is the sign of a vertical scroll.
type ScrollDirection string

const (
	ScrollDown ScrollDirection = "down"
	ScrollUp   ScrollDirection = "up"
)

// Defaults applied at dispatch time when the planner omits optional details.
const (
	DefaultScrollAmount = 300
	DefaultWaitSeconds  = 2.0
	DefaultCompletion   = "task completed"
)

// Upper bounds on planner supplied magnitudes.
const (
	MaxWaitSeconds  = 300.0
	MaxScrollAmount = 100000.0
)

var (
	ErrUnknownAction = errors.New("unknown action type")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidField  = errors.New("invalid field")
)

// ParseActionKind maps a planner supplied type string onto a known kind.
// It accepts the camelCase alias "askUser".
func ParseActionKind(s string) (ActionKind, bool) {
	switch strings.TrimSpace(s) {
	case "navigate":
		return ActionNavigate, true
	case "click":
		return ActionClick, true
	case "type":
		return ActionType, true
	case "press":
		return ActionPress, true
	case "scroll":
		return ActionScroll, true
	case "wait":
		return ActionWait, true
	case "ask_user", "askUser":
		return ActionAskUser, true
	case "complete":
		return ActionComplete, true
	}
	return "", false
}

// IsPhysical reports whether the kind is dispatched to the browser executor.
// ask_user and complete are control signals handled by the loop.
func (k ActionKind) IsPhysical() bool {
	switch k {
	case ActionNavigate, ActionClick, ActionType, ActionPress, ActionScroll, ActionWait:
		return true
	}
	return false
}

// ActionDetails carries the per-kind payload. Optional numerics are pointers so
// an omitted value can be told apart from an explicit zero.
type ActionDetails struct {
	URL       string          `json:"url,omitempty"`
	Selector  string          `json:"selector,omitempty"`
	X         *float64        `json:"x,omitempty"`
	Y         *float64        `json:"y,omitempty"`
	Text      string          `json:"text,omitempty"`
	Key       string          `json:"key,omitempty"`
	Direction ScrollDirection `json:"direction,omitempty"`
	Amount    *float64        `json:"amount,omitempty"`
	Seconds   *float64        `json:"seconds,omitempty"`
	Question  string          `json:"question,omitempty"`
	Result    string          `json:"result,omitempty"`
}

// Action is a tagged variant: Kind selects which Details fields are meaningful.
type Action struct {
	Kind    ActionKind    `json:"type"`
	Details ActionDetails `json:"details"`
}

// Validate enforces the required field set of the action's kind. The returned
// error wraps ErrUnknownAction, ErrMissingField or ErrInvalidField.
func (a Action) Validate() error {
	d := a.Details
	switch a.Kind {
	case ActionNavigate:
		if strings.TrimSpace(d.URL) == "" {
			return fmt.Errorf("navigate: url: %w", ErrMissingField)
		}
	case ActionClick:
		hasSelector := strings.TrimSpace(d.Selector) != ""
		hasX, hasY := d.X != nil, d.Y != nil
		switch {
		case hasSelector && (hasX || hasY):
			return fmt.Errorf("click: both selector and coordinates given: %w", ErrInvalidField)
		case hasSelector:
		case hasX && hasY:
		case hasX || hasY:
			return fmt.Errorf("click: coordinates need both x and y: %w", ErrMissingField)
		default:
			return fmt.Errorf("click: selector or x/y: %w", ErrMissingField)
		}
	case ActionType:
		if strings.TrimSpace(d.Selector) == "" {
			return fmt.Errorf("type: selector: %w", ErrMissingField)
		}
		if d.Text == "" {
			return fmt.Errorf("type: text: %w", ErrMissingField)
		}
	case ActionPress:
		if strings.TrimSpace(d.Key) == "" {
			return fmt.Errorf("press: key: %w", ErrMissingField)
		}
	case ActionScroll:
		if d.Direction != "" && d.Direction != ScrollDown && d.Direction != ScrollUp {
			return fmt.Errorf("scroll: direction %q: %w", d.Direction, ErrInvalidField)
		}
		if d.Amount != nil && !inRange(*d.Amount, MaxScrollAmount) {
			return fmt.Errorf("scroll: amount %g outside [0, %g]: %w", *d.Amount, float64(MaxScrollAmount), ErrInvalidField)
		}
	case ActionWait:
		if d.Seconds != nil && !inRange(*d.Seconds, MaxWaitSeconds) {
			return fmt.Errorf("wait: seconds %g outside [0, %g]: %w", *d.Seconds, float64(MaxWaitSeconds), ErrInvalidField)
		}
	case ActionAskUser, ActionComplete:
	default:
		return fmt.Errorf("%q: %w", a.Kind, ErrUnknownAction)
	}
	return nil
}

// inRange is false for NaN.
func inRange(v, limit float64) bool {
	return v >= 0 && v <= limit
}

// clamp pins v into [0, limit], mapping NaN to 0.
func clamp(v, limit float64) float64 {
	switch {
	case !(v > 0):
		return 0
	case v > limit:
		return limit
	}
	return v
}

// ScrollAmount resolves the scroll distance, applying the default and the
// MaxScrollAmount bound.
func (d ActionDetails) ScrollAmount() int {
	if d.Amount == nil {
		return DefaultScrollAmount
	}
	return int(math.Round(clamp(*d.Amount, MaxScrollAmount)))
}

// ResolvedDirection resolves the scroll direction, applying the default.
func (d ActionDetails) ResolvedDirection() ScrollDirection {
	if d.Direction == "" {
		return ScrollDown
	}
	return d.Direction
}

// WaitSeconds resolves the delay, applying the default and the
// MaxWaitSeconds bound.
func (d ActionDetails) WaitSeconds() float64 {
	if d.Seconds == nil {
		return DefaultWaitSeconds
	}
	return clamp(*d.Seconds, MaxWaitSeconds)
}

// WaitDuration is WaitSeconds as a Duration.
func (d ActionDetails) WaitDuration() time.Duration {
	return time.Duration(d.WaitSeconds() * float64(time.Second))
}

// Float returns a pointer to v, for building optional details.
func Float(v float64) *float64 { return &v }

// NavigateTo, ClickOn and friends build well formed actions.

func NavigateTo(url string) Action {
	return Action{Kind: ActionNavigate, Details: ActionDetails{URL: url}}
}

func ClickOn(selector string) Action {
	return Action{Kind: ActionClick, Details: ActionDetails{Selector: selector}}
}

func ClickAt(x, y float64) Action {
	return Action{Kind: ActionClick, Details: ActionDetails{X: Float(x), Y: Float(y)}}
}

func TypeInto(selector, text string) Action {
	return Action{Kind: ActionType, Details: ActionDetails{Selector: selector, Text: text}}
}

func PressKey(key string) Action {
	return Action{Kind: ActionPress, Details: ActionDetails{Key: key}}
}

func Scroll(direction ScrollDirection, amount float64) Action {
	return Action{Kind: ActionScroll, Details: ActionDetails{Direction: direction, Amount: Float(amount)}}
}

func WaitFor(seconds float64) Action {
	return Action{Kind: ActionWait, Details: ActionDetails{Seconds: Float(seconds)}}
}

func AskUser(question string) Action {
	return Action{Kind: ActionAskUser, Details: ActionDetails{Question: question}}
}

func Complete(result string) Action {
	return Action{Kind: ActionComplete, Details: ActionDetails{Result: result}}
}

// Plan is a validated planner response.
type Plan struct {
	Thoughts   string  `json:"thoughts"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// FallbackPlan is the safe substitute for untrustworthy planner output. Its
// action never mutates page state.
func FallbackPlan() Plan {
	return Plan{
		Thoughts:   "could not parse planner output",
		Action:     WaitFor(DefaultWaitSeconds),
		Confidence: 0.1,
	}
}
