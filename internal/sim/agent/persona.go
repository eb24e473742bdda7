package agent

import "strings"

type LifeStage string

const (
	Infant     LifeStage = "infant"
	Toddler    LifeStage = "toddler"
	Child      LifeStage = "child"
	Teen       LifeStage = "teen"
	YoungAdult LifeStage = "young_adult"
	Adult      LifeStage = "adult"
	Elder      LifeStage = "elder"
)

// MaxAge is the age at which an agent dies of old age.
const MaxAge = 100

func StageForAge(age int) LifeStage {
	switch {
	case age <= 2:
		return Infant
	case age <= 5:
		return Toddler
	case age <= 12:
		return Child
	case age <= 19:
		return Teen
	case age <= 35:
		return YoungAdult
	case age <= 64:
		return Adult
	default:
		return Elder
	}
}

// Persona is an agent's identity. Only aging changes it.
type Persona struct {
	Name      string             `json:"name" msgpack:"name"`
	Age       int                `json:"age" msgpack:"age"`
	Job       string             `json:"job" msgpack:"job"`
	City      string             `json:"city,omitempty" msgpack:"city"`
	Bio       string             `json:"bio,omitempty" msgpack:"bio"`
	Values    []string           `json:"values,omitempty" msgpack:"values"`
	Goals     []string           `json:"goals,omitempty" msgpack:"goals"`
	Traits    map[string]float64 `json:"traits,omitempty" msgpack:"traits"`
	Workplace string             `json:"workplace,omitempty" msgpack:"workplace"`
	Stage     LifeStage          `json:"stage" msgpack:"stage"`
}

// DefaultJobSite is used when a job has no entry in jobSites.
const DefaultJobSite = "Office"

var jobSites = map[string]string{
	"chef":       "Restaurant",
	"teacher":    "School",
	"doctor":     "Hospital",
	"nurse":      "Hospital",
	"engineer":   "Office",
	"programmer": "Office",
	"artist":     "Studio",
	"musician":   "Studio",
	"writer":     "Home",
	"farmer":     "Farm",
	"clerk":      "Store",
	"shopkeeper": "Store",
	"baker":      "Bakery",
	"bartender":  "Bar",
	"librarian":  "Library",
	"mechanic":   "Garage",
}

// JobSite is where the persona works: the explicit workplace if set, otherwise
// the conventional site for the job.
func (p Persona) JobSite() string {
	if p.Workplace != "" {
		return p.Workplace
	}
	if site, ok := jobSites[strings.ToLower(strings.TrimSpace(p.Job))]; ok {
		return site
	}
	return DefaultJobSite
}
