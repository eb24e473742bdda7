package oracle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/world"
)

// Reply keys.
const (
	KeyAction         = "action"
	KeyPrivateThought = "private_thought"
	KeyMemoryWrite    = "memory_write"
)

// Decode parses an oracle answer. The outermost {...} object is carved out of
// any surrounding prose.
func Decode(raw string) (world.Decision, error) {
	obj, err := carve(raw)
	if err != nil {
		return world.Decision{}, err
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return world.Decision{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	thought, _ := m[KeyPrivateThought].(string)
	mem := memoryWrites(m[KeyMemoryWrite])
	delete(m, KeyPrivateThought)
	delete(m, KeyMemoryWrite)

	act := action.Normalize(m)
	if act.IsInvalid() {
		return world.Decision{}, fmt.Errorf("%w: %s", ErrMalformed, act.Reason)
	}
	return world.Decision{Action: act, Thought: strings.TrimSpace(thought), Memories: mem}, nil
}

func carve(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object", ErrMalformed)
	}
	return raw[start : end+1], nil
}

// memoryWrites accepts a string (episodic), a list of strings, or an object
// keyed by memory kind.
func memoryWrites(v any) []memory.Item {
	switch x := v.(type) {
	case string:
		return textItem(memory.Episodic, x)
	case []any:
		var out []memory.Item
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, textItem(memory.Episodic, s)...)
			}
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []memory.Item
		for _, k := range keys {
			s, ok := x[k].(string)
			if !ok {
				continue
			}
			kind := memory.Kind(strings.ToLower(k))
			if kind == "text" || !kind.Valid() {
				kind = memory.Episodic
			}
			out = append(out, textItem(kind, s)...)
		}
		return out
	}
	return nil
}

func textItem(kind memory.Kind, s string) []memory.Item {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return []memory.Item{{Kind: kind, Text: s}}
}
