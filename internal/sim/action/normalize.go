package action

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	verbKeys   = []string{"type", "verb", "action", "name", "kind"}
	paramKeys  = []string{"params", "args", "arguments", "payload"}
	textKeys   = []string{"text", "message", "content", "utterance", "thought", "say"}
	toKeys     = []string{"to", "destination", "place", "location", "where", "target"}
	opKeys     = []string{"verb", "op", "interaction", "mode", "kind"}
	itemKeys   = []string{"item", "item_id", "object", "what"}
	qtyKeys    = []string{"qty", "quantity", "count", "amount", "n"}
	targetKeys = []string{"target", "with", "who", "agent"}
	stepKeys   = []string{"steps", "plan", "items"}
)

// Normalize converts a structured decision (decoded JSON), a raw string, or an
// Action into canonical form. Input that cannot be understood yields an Invalid
// action; it is never replaced by a default verb.
func Normalize(v any) Action {
	switch x := v.(type) {
	case nil:
		return invalid("", "empty decision")
	case Action:
		if x.Verb == Invalid {
			return x
		}
		if _, ok := ParseVerb(string(x.Verb)); !ok {
			return invalid(string(x.Verb), "unknown verb")
		}
		return canonical(x.Verb, x.Params, "", raw(x))
	case string:
		return normalizeString(x)
	case map[string]any:
		return normalizeMap(x)
	default:
		return invalid(raw(v), fmt.Sprintf("unsupported decision type %T", v))
	}
}

func normalizeString(s string) Action {
	s = strings.TrimSpace(s)
	if s == "" {
		return invalid(s, "empty decision")
	}
	if strings.HasPrefix(s, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return invalid(s, "malformed json")
		}
		return normalizeMap(m)
	}
	head, payload := splitHead(s)
	verb, ok := ParseVerb(head)
	if !ok {
		return invalid(s, "unknown verb")
	}
	if kv, ok := parseKV(payload); ok {
		return canonical(verb, kv, "", s)
	}
	return canonical(verb, nil, payload, s)
}

// parseKV reads the "k=v, k2=[a; b]" payload produced by Action.String.
func parseKV(payload string) (map[string]any, bool) {
	if !strings.Contains(payload, "=") {
		return nil, false
	}
	var parts []string
	depth, start := 0, 0
	for i, c := range payload {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, payload[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, payload[start:])
	out := make(map[string]any, len(parts))
	for _, p := range parts {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !isKey(k) {
			return nil, false
		}
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
			out[k] = splitSteps(v[1 : len(v)-1])
			continue
		}
		out[k] = v
	}
	return out, true
}

func isKey(k string) bool {
	if k == "" {
		return false
	}
	for _, c := range k {
		if (c < 'a' || c > 'z') && c != '_' {
			return false
		}
	}
	return true
}

// splitHead splits "VERB(payload)", "VERB: payload" and "VERB payload".
func splitHead(s string) (string, string) {
	if i := strings.IndexAny(s, "(: \t"); i > 0 {
		head, rest := s[:i], strings.TrimSpace(s[i:])
		if strings.HasPrefix(rest, "(") {
			rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
		} else {
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		}
		return head, unquote(strings.TrimSpace(rest))
	}
	return s, ""
}

func normalizeMap(m map[string]any) Action {
	r := raw(m)
	if len(m) == 0 {
		return invalid(r, "empty decision")
	}
	// {"MOVE": {...}} or {"SAY": "hello"}
	if len(m) == 1 {
		for k, v := range m {
			if verb, ok := ParseVerb(k); ok {
				switch p := v.(type) {
				case map[string]any:
					return canonical(verb, p, "", r)
				case string:
					return canonical(verb, nil, p, r)
				default:
					return canonical(verb, nil, "", r)
				}
			}
		}
	}
	for _, k := range verbKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case map[string]any:
			return normalizeMap(x)
		case string:
			verb, ok := ParseVerb(x)
			if !ok {
				a := normalizeString(x)
				if a.Verb != Invalid {
					return a
				}
				continue
			}
			params := m
			for _, pk := range paramKeys {
				if p, ok := m[pk].(map[string]any); ok {
					params = merge(m, p)
					break
				}
			}
			return canonical(verb, withoutKey(params, k), "", r)
		}
	}
	return invalid(r, "no action verb")
}

// canonical builds an Action of verb from a parameter map and/or a positional payload.
func canonical(verb Verb, params map[string]any, payload, r string) Action {
	out := map[string]any{}
	switch verb {
	case Say, Think:
		text := firstString(params, textKeys)
		if text == "" {
			text = payload
		}
		if verb == Say && text == "" {
			return invalid(r, "SAY without text")
		}
		out[KeyText] = text
	case Move:
		to := firstString(params, toKeys)
		if to == "" {
			to = payload
		}
		if to == "" {
			return invalid(r, "MOVE without destination")
		}
		out[KeyTo] = to
	case Interact:
		op := strings.ToLower(firstString(params, opKeys))
		item := firstString(params, itemKeys)
		qty, hasQty := firstInt(params, qtyKeys)
		target := firstString(params, targetKeys)
		if op == "" && payload != "" {
			fields := strings.Fields(payload)
			op = strings.ToLower(fields[0])
			for _, f := range fields[1:] {
				if n, err := strconv.Atoi(strings.TrimPrefix(f, "x")); err == nil && !hasQty {
					qty, hasQty = n, true
				} else if item == "" {
					item = f
				}
			}
		}
		if op == "" {
			return invalid(r, "INTERACT without verb")
		}
		if !hasQty {
			qty = 1
		}
		if qty <= 0 {
			return invalid(r, "INTERACT with non-positive qty")
		}
		out[KeyVerb] = op
		out[KeyQty] = qty
		if item != "" {
			out[KeyItem] = item
		}
		if target != "" {
			out[KeyTarget] = target
		}
	case Plan:
		steps := firstSteps(params)
		if steps == nil && payload != "" {
			steps = splitSteps(payload)
		}
		if steps == nil {
			steps = []string{}
		}
		out[KeySteps] = steps
	case Eat:
		item := firstString(params, itemKeys)
		if item == "" {
			item = payload
		}
		if item != "" {
			out[KeyItem] = item
		}
	case Sleep, Work, Continue:
	default:
		return invalid(r, "unknown verb")
	}
	return Action{Verb: verb, Params: out}
}

func firstString(m map[string]any, keys ...[]string) string {
	for _, ks := range keys {
		for _, k := range ks {
			if s, ok := m[k].(string); ok {
				if s = unquote(strings.TrimSpace(s)); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func firstInt(m map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case int:
			return n, true
		case float64:
			if n == math.Trunc(n) {
				return int(n), true
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

func firstSteps(m map[string]any) []string {
	for _, k := range stepKeys {
		switch v := m[k].(type) {
		case []string:
			return append([]string(nil), v...)
		case []any:
			var out []string
			for _, e := range v {
				switch s := e.(type) {
				case string:
					out = append(out, strings.TrimSpace(s))
				case map[string]any:
					if a := normalizeMap(s); a.Verb != Invalid {
						out = append(out, a.String())
					}
				}
			}
			if out == nil {
				out = []string{}
			}
			return out
		case string:
			return splitSteps(v)
		}
	}
	return nil
}

func splitSteps(s string) []string {
	sep := ","
	for _, c := range []string{"\n", ";", "|"} {
		if strings.Contains(s, c) {
			sep = c
			break
		}
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func withoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func merge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func raw(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
