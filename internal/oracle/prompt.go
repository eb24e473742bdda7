package oracle

import (
	"fmt"
	"sort"
	"strings"

	"llmsim.ai/internal/sim/world"
)

const systemPrompt = `You are a person going about your day. You are not in a simulation; your memories are your own.
Choose exactly one next action given who you are, where you are and what you have noticed.
Return ONLY a JSON object with keys: action, private_thought, memory_write (nullable).
action is one of:
  {"SAY": {"text": "..."}}            speak to everyone here
  {"MOVE": {"to": "<place>"}}         go to a known place
  {"INTERACT": {"verb": "buy", "item": "<item>", "qty": 1}}   or sell, or any other verb with a "target"
  {"THINK": {"text": "..."}}
  {"PLAN": {"steps": ["...", "..."]}}
  "SLEEP", "EAT", "WORK" or "CONTINUE"
memory_write is a short sentence worth remembering, or an object with any of the keys episodic, semantic, autobio.
Example: {"action": {"MOVE": {"to": "Cafe"}}, "private_thought": "I could use a coffee.", "memory_write": null}`

const repairPrompt = `Your previous answer could not be used (%s).
Previous answer:
%s
Reply again with ONLY a valid JSON object with keys action, private_thought and memory_write.`

// UserPrompt renders c as plain text for a chat model.
func UserPrompt(c world.AgentContext) string {
	var b strings.Builder
	p := c.Persona
	fmt.Fprintf(&b, "You are %s, %d, %s", p.Name, p.Age, orDash(p.Job))
	if p.City != "" {
		fmt.Fprintf(&b, " in %s", p.City)
	}
	b.WriteString(".\n")
	if p.Bio != "" {
		fmt.Fprintf(&b, "Bio: %s\n", p.Bio)
	}
	if len(p.Values) > 0 {
		fmt.Fprintf(&b, "Values: %s\n", strings.Join(p.Values, ", "))
	}
	if len(p.Goals) > 0 {
		fmt.Fprintf(&b, "Goals: %s\n", strings.Join(p.Goals, ", "))
	}

	fmt.Fprintf(&b, "\nTick %d. You are at %s", c.Tick, c.Location)
	if c.Purpose != "" {
		fmt.Fprintf(&b, " (%s)", c.Purpose)
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "Known places: %s. You work at %s.\n", strings.Join(c.Places, ", "), c.JobSite)

	ph := c.Physio
	fmt.Fprintf(&b, "You feel %s: energy %.2f, hunger %.2f, stress %.2f, social %.2f, fun %.2f.\n",
		orDash(ph.Mood), ph.Energy, ph.Hunger, ph.Stress, ph.Social, ph.Fun)
	if len(c.Moodlets) > 0 {
		fmt.Fprintf(&b, "Right now you are %s.\n", strings.Join(c.Moodlets, ", "))
	}

	if len(c.Present) > 0 {
		names := make([]string, 0, len(c.Present))
		for _, k := range c.Present {
			names = append(names, k.Name)
		}
		fmt.Fprintf(&b, "Here with you: %s.\n", strings.Join(names, ", "))
	}
	if len(c.Observed) > 0 {
		b.WriteString("You noticed:\n")
		for _, e := range c.Observed {
			fmt.Fprintf(&b, "- %s\n", e.Text)
		}
	}
	if len(c.Memories) > 0 {
		b.WriteString("You remember:\n")
		for _, m := range c.Memories {
			fmt.Fprintf(&b, "- %s\n", m.Text)
		}
	}
	if len(c.Inventory) > 0 {
		fmt.Fprintf(&b, "You carry: %s.\n", counts(c.Inventory))
	}
	if len(c.Prices) > 0 {
		ids := make([]string, 0, len(c.Prices))
		for id := range c.Prices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("%s %.2f", id, c.Prices[id]))
		}
		fmt.Fprintf(&b, "For sale here: %s.\n", strings.Join(parts, ", "))
	}
	for _, ap := range c.Calendar {
		fmt.Fprintf(&b, "Appointment: %s at %s, ticks %d-%d.\n", orDash(ap.Label), ap.Location, ap.Start, ap.End)
	}
	if len(c.Plan) > 0 {
		fmt.Fprintf(&b, "Your plan: %s.\n", strings.Join(c.Plan, "; "))
	}
	b.WriteString("\nWhat do you do next?")
	return b.String()
}

func RepairPrompt(r Repair) string {
	return fmt.Sprintf(repairPrompt, r.Problem, r.Previous)
}

func counts(m map[string]int) string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d %s", m[id], id))
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
