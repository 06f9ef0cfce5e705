// Package capability holds the model capability table and picks the model
// best suited to a given file.
package capability

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/smartfolder/smartfolder/internal/classify"
)

//go:embed models.yaml
var embeddedTable []byte

// Capabilities lists the input kinds a model accepts natively.
type Capabilities struct {
	Text  bool `yaml:"text"`
	Image bool `yaml:"image"`
	PDF   bool `yaml:"pdf"`
	Audio bool `yaml:"audio"`
	Video bool `yaml:"video"`
}

// Model is one entry of the capability table.
type Model struct {
	ID               string       `yaml:"id"`
	Provider         string       `yaml:"provider"`
	MaxInputTokens   int          `yaml:"maxInputTokens"`
	InputCostPerMTok float64      `yaml:"inputCostPerMTok"`
	Strengths        []string     `yaml:"strengths"`
	BestFor          []string     `yaml:"bestFor"`
	Capabilities     Capabilities `yaml:"capabilities"`
}

// Supports reports whether the model accepts the given category natively.
// Text-family categories only need text support.
func (m Model) Supports(cat classify.Category) bool {
	switch cat {
	case classify.Image:
		return m.Capabilities.Image
	case classify.PDF:
		return m.Capabilities.PDF
	case classify.Audio:
		return m.Capabilities.Audio
	case classify.Video:
		return m.Capabilities.Video
	default:
		return m.Capabilities.Text
	}
}

func (m Model) bestFor(cat classify.Category) bool {
	name := cat.String()
	for _, b := range m.BestFor {
		if b == name {
			return true
		}
	}
	return false
}

type tableFile struct {
	Default string  `yaml:"default"`
	Models  []Model `yaml:"models"`
}

// Registry is an ordered model capability table.
type Registry struct {
	models    []Model
	defaultID string
}

// Load parses the embedded capability table.
func Load() (*Registry, error) {
	return Parse(embeddedTable)
}

// LoadFile parses a capability table from disk, for overriding the embedded
// one.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model table: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML capability table.
func Parse(data []byte) (*Registry, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing model table: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("model table has no models")
	}
	r := &Registry{models: f.Models, defaultID: f.Default}
	if _, ok := r.ByID(f.Default); f.Default != "" && !ok {
		return nil, fmt.Errorf("default model %q not in table", f.Default)
	}
	return r, nil
}

// Models returns the table in declaration order.
func (r *Registry) Models() []Model { return r.models }

// ByID looks a model up by its gateway ID.
func (r *Registry) ByID(id string) (Model, bool) {
	for _, m := range r.models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Default returns the table's declared default, or its first entry.
func (r *Registry) Default() Model {
	if m, ok := r.ByID(r.defaultID); ok {
		return m
	}
	return r.models[0]
}

// bigFileBytes and bigContextTokens gate the large-input bonus: files past
// the size threshold prefer models with room to take them whole.
const (
	bigFileBytes     = 50_000
	bigContextTokens = 500_000
)

// Select picks the model for a file. A registered userPref wins verbatim.
// Otherwise candidates are the models declaring the category in bestFor
// (falling back to the default model when none do), scored by native support
// for the heavier media kinds, input cost, and headroom for big files.
// Declaration order breaks ties.
func (r *Registry) Select(cat classify.Category, sizeBytes int64, userPref string) Model {
	if userPref != "" {
		if m, ok := r.ByID(userPref); ok {
			return m
		}
	}

	var best Model
	bestScore := 0.0
	found := false
	for _, m := range r.models {
		if !m.bestFor(cat) {
			continue
		}
		if s := score(m, cat, sizeBytes); !found || s > bestScore {
			best, bestScore, found = m, s, true
		}
	}
	if !found {
		return r.Default()
	}
	return best
}

func score(m Model, cat classify.Category, sizeBytes int64) float64 {
	var s float64
	switch cat {
	case classify.Video:
		if m.Capabilities.Video {
			s += 100
		}
	case classify.Audio:
		if m.Capabilities.Audio {
			s += 100
		}
	case classify.PDF:
		if m.Capabilities.PDF {
			s += 50
		}
	case classify.Image:
		if m.Capabilities.Image {
			s += 50
		}
	}
	if m.InputCostPerMTok > 0 {
		s += 10 / m.InputCostPerMTok
	}
	if sizeBytes > bigFileBytes && m.MaxInputTokens > bigContextTokens {
		s += 20
	}
	return s
}
