// Package worldfile loads persisted world descriptions (yaml or json), validates
// them against the embedded world schema and builds a runnable world.
package worldfile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"llmsim.ai/internal/sim/schedule"
)

var ErrInvalid = errors.New("invalid world file")

//go:embed world.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("world.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

type File struct {
	ID          string   `json:"id,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
	Description string   `json:"description,omitempty"`
	Places      []Place  `json:"places"`
	People      []Person `json:"people"`
}

type Place struct {
	Name      string         `json:"name"`
	Neighbors []string       `json:"neighbors,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Purpose   string         `json:"purpose,omitempty"`
	Inventory map[string]int `json:"inventory,omitempty"`
	Vendor    *Vendor        `json:"vendor,omitempty"`
}

type Vendor struct {
	Prices  map[string]float64 `json:"prices,omitempty"`
	Stock   map[string]int     `json:"stock,omitempty"`
	Buyback map[string]float64 `json:"buyback,omitempty"`
}

type Person struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Age       int                    `json:"age,omitempty"`
	Job       string                 `json:"job,omitempty"`
	City      string                 `json:"city,omitempty"`
	Bio       string                 `json:"bio,omitempty"`
	Values    []string               `json:"values,omitempty"`
	Goals     []string               `json:"goals,omitempty"`
	Traits    map[string]float64     `json:"traits,omitempty"`
	Workplace string                 `json:"workplace,omitempty"`
	Home      string                 `json:"home,omitempty"`
	Money     int                    `json:"money,omitempty"`
	Inventory map[string]int         `json:"inventory,omitempty"`
	Schedule  []schedule.Appointment `json:"schedule,omitempty"`
}

// AgentID is the person's explicit id, or one derived from the name.
func (p Person) AgentID() string {
	if p.ID != "" {
		return p.ID
	}
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(p.Name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Load reads a world file; .yaml and .yml are parsed as yaml, anything else as json.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(raw)
	default:
		return ParseJSON(raw)
	}
}

func ParseYAML(raw []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}
	// Round-trip through json so yaml and json share one validation path.
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}
	return ParseJSON(b)
}

func ParseJSON(raw []byte) (*File, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrInvalid, err)
	}
	s, err := compiled()
	if err != nil {
		return nil, fmt.Errorf("world schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

// check covers the cross references the schema cannot express.
func (f *File) check() error {
	names := map[string]bool{}
	for _, p := range f.Places {
		if names[p.Name] {
			return fmt.Errorf("%w: duplicate place %q", ErrInvalid, p.Name)
		}
		names[p.Name] = true
	}
	for _, p := range f.Places {
		for _, n := range p.Neighbors {
			if !names[n] {
				return fmt.Errorf("%w: place %q: unknown neighbor %q", ErrInvalid, p.Name, n)
			}
		}
	}
	ids := map[string]bool{}
	for _, p := range f.People {
		id := p.AgentID()
		if id == "" {
			return fmt.Errorf("%w: person %q: empty id", ErrInvalid, p.Name)
		}
		if ids[id] {
			return fmt.Errorf("%w: duplicate person id %q", ErrInvalid, id)
		}
		ids[id] = true
		if p.Home != "" && !names[p.Home] {
			return fmt.Errorf("%w: person %q: unknown home %q", ErrInvalid, p.Name, p.Home)
		}
		if p.Workplace != "" && !names[p.Workplace] {
			return fmt.Errorf("%w: person %q: unknown workplace %q", ErrInvalid, p.Name, p.Workplace)
		}
		for _, ap := range p.Schedule {
			if !names[ap.Location] {
				return fmt.Errorf("%w: person %q: appointment at unknown place %q", ErrInvalid, p.Name, ap.Location)
			}
			if ap.End < ap.Start {
				return fmt.Errorf("%w: person %q: appointment %q ends before it starts", ErrInvalid, p.Name, ap.Label)
			}
		}
	}
	return nil
}
