package oracle

import (
	"errors"
	"testing"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/memory"
)

func TestDecode_CarvesObjectFromProse(t *testing.T) {
	raw := "Sure! Here is my answer:\n```json\n{\"action\": {\"MOVE\": {\"to\": \"Cafe\"}}, \"private_thought\": \"coffee time\"}\n```"
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Action.Verb != action.Move || d.Action.Str(action.KeyTo) != "Cafe" {
		t.Fatalf("action=%s", d.Action)
	}
	if d.Thought != "coffee time" {
		t.Fatalf("thought=%q", d.Thought)
	}
}

func TestDecode_ActionShapes(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"action": "EAT"}`, "EAT()"},
		{`{"action": "SAY", "params": {"text": "hi"}}`, "SAY(text=hi)"},
		{`{"action": "MOVE Park"}`, "MOVE(to=Park)"},
		{`{"action": {"type": "INTERACT", "verb": "buy", "item": "coffee", "qty": 2}}`, "INTERACT(item=coffee, qty=2, verb=buy)"},
		{`{"action": {"PLAN": {"steps": ["WORK", "EAT"]}}}`, "PLAN(steps=[WORK; EAT])"},
	}
	for _, tc := range cases {
		d, err := Decode(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if got := d.Action.String(); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.raw, got, tc.want)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"I think I'll go for a walk.",
		`{"action": "MOVE", "private_thought": "somewhere"`,
		`{"action": "DANCE"}`,
		`{"private_thought": "hmm"}`,
	} {
		if _, err := Decode(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: err=%v want ErrMalformed", raw, err)
		}
	}
}

func TestDecode_MemoryWriteCoercion(t *testing.T) {
	d, err := Decode(`{"action": "CONTINUE", "memory_write": "the cafe was busy"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(d.Memories) != 1 || d.Memories[0].Kind != memory.Episodic || d.Memories[0].Text != "the cafe was busy" {
		t.Fatalf("memories=%+v", d.Memories)
	}

	d, err = Decode(`{"action": "CONTINUE", "memory_write": {"semantic": "bob is a painter", "autobio": "I moved here in spring", "mood": "happy", "episodic": ""}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(d.Memories) != 3 {
		t.Fatalf("memories=%+v", d.Memories)
	}
	if d.Memories[0].Kind != memory.Autobio || d.Memories[1].Kind != memory.Episodic || d.Memories[2].Kind != memory.Semantic {
		t.Fatalf("kinds=%+v", d.Memories)
	}

	d, err = Decode(`{"action": "CONTINUE", "memory_write": null}`)
	if err != nil || len(d.Memories) != 0 {
		t.Fatalf("null memory_write: %v %+v", err, d.Memories)
	}
}
