// Package persona loads the persona library and classifies jurors against
// the signal-persona weight table.
package persona

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/juror-match/internal/model"
)

//go:embed data/personas.yaml
var defaultLibraryYAML []byte

// Library is a versioned persona corpus.
type Library struct {
	Version  string          `yaml:"version"`
	Personas []model.Persona `yaml:"personas"`
}

// ParseLibrary reads a persona library from YAML.
func ParseLibrary(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, eris.Wrap(err, "persona: parse library")
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// LoadLibrary reads the library at path, or the embedded library when path
// is empty.
func LoadLibrary(path string) (*Library, error) {
	if path == "" {
		return DefaultLibrary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "persona: read library %s", path)
	}
	return ParseLibrary(data)
}

// DefaultLibrary returns the embedded archetype library.
func DefaultLibrary() (*Library, error) {
	return ParseLibrary(defaultLibraryYAML)
}

// Validate checks persona IDs and archetype strengths.
func (l *Library) Validate() error {
	seen := make(map[string]bool, len(l.Personas))
	for i := range l.Personas {
		p := &l.Personas[i]
		if strings.TrimSpace(p.ID) == "" {
			return model.NewValidationError("personas.id", "required")
		}
		if seen[p.ID] {
			return model.NewValidationError("personas."+p.ID, "duplicate persona id")
		}
		seen[p.ID] = true
		if p.ArchetypeStrength < 0 || p.ArchetypeStrength > 1 {
			return model.NewValidationError("personas."+p.ID+".archetype_strength", "must be in [0, 1]")
		}
		if p.Name == "" {
			p.Name = p.ID
		}
	}
	return nil
}
