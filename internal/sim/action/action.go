// Package action defines the canonical action alphabet and normalizes loosely
// structured decisions into it.
package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Verb string

const (
	Say      Verb = "SAY"
	Move     Verb = "MOVE"
	Interact Verb = "INTERACT"
	Think    Verb = "THINK"
	Plan     Verb = "PLAN"
	Sleep    Verb = "SLEEP"
	Eat      Verb = "EAT"
	Work     Verb = "WORK"
	Continue Verb = "CONTINUE"

	// Invalid carries input that could not be normalized.
	Invalid Verb = "INVALID"
)

var Verbs = []Verb{Say, Move, Interact, Think, Plan, Sleep, Eat, Work, Continue}

func ParseVerb(s string) (Verb, bool) {
	v := Verb(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range Verbs {
		if v == k {
			return v, true
		}
	}
	return "", false
}

// Canonical parameter keys.
const (
	KeyText   = "text"
	KeyTo     = "to"
	KeyVerb   = "verb"
	KeyItem   = "item"
	KeyQty    = "qty"
	KeyTarget = "target"
	KeySteps  = "steps"
)

var ErrInvalidAction = errors.New("invalid action")

type InvalidError struct {
	Raw    string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%v: %s: %q", ErrInvalidAction, e.Reason, e.Raw)
}

func (e *InvalidError) Unwrap() error { return ErrInvalidAction }

// Action is a tagged union over Verb. Params holds only canonical keys with
// string, int or []string values. An Invalid action keeps the raw input.
type Action struct {
	Verb   Verb           `json:"verb"`
	Params map[string]any `json:"params,omitempty"`
	Raw    string         `json:"raw,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

func New(v Verb, params map[string]any) Action {
	if params == nil {
		params = map[string]any{}
	}
	return Action{Verb: v, Params: params}
}

func SayText(text string) Action   { return New(Say, map[string]any{KeyText: text}) }
func MoveTo(place string) Action   { return New(Move, map[string]any{KeyTo: place}) }
func ThinkText(text string) Action { return New(Think, map[string]any{KeyText: text}) }

func invalid(raw, reason string) Action {
	return Action{Verb: Invalid, Raw: raw, Reason: reason}
}

func (a Action) IsInvalid() bool { return a.Verb == Invalid }

// Err is non-nil only for Invalid actions.
func (a Action) Err() error {
	if a.Verb != Invalid {
		return nil
	}
	return &InvalidError{Raw: a.Raw, Reason: a.Reason}
}

func (a Action) Str(key string) string {
	s, _ := a.Params[key].(string)
	return s
}

func (a Action) Int(key string, def int) int {
	if n, ok := a.Params[key].(int); ok {
		return n
	}
	return def
}

func (a Action) Strings(key string) []string {
	ss, _ := a.Params[key].([]string)
	return ss
}

// String renders the canonical VERB(k=v, ...) form with keys sorted.
func (a Action) String() string {
	if a.Verb == Invalid {
		return fmt.Sprintf("INVALID(%q)", a.Raw)
	}
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := a.Params[k].(type) {
		case []string:
			parts = append(parts, fmt.Sprintf("%s=[%s]", k, strings.Join(v, "; ")))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return fmt.Sprintf("%s(%s)", a.Verb, strings.Join(parts, ", "))
}
