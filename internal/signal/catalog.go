// Package signal holds the signal catalog and the extractor that turns a
// juror or persona attribute bag into observed signals.
package signal

import (
	_ "embed"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/juror-match/internal/model"
)

//go:embed data/catalog.yaml
var defaultCatalogYAML []byte

// Default dimension thresholds on the 0-5 scale.
const (
	DefaultHighThreshold = 4.0
	DefaultLowThreshold  = 2.0
)

// Pole selects which end of a numeric dimension a rule fires on.
type Pole string

const (
	PoleHigh Pole = "high"
	PoleLow  Pole = "low"
)

// Rule is one catalog entry: the signal definition plus how to detect it.
type Rule struct {
	model.Signal `yaml:",inline"`

	// SourceFields are the free-text fields concatenated for pattern rules.
	SourceFields []string `yaml:"source_fields,omitempty"`
	// Min and Max bound a numeric field, inclusive. Either may be omitted.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
	// Equals is the value a boolean field must hold. Defaults to true.
	Equals *bool `yaml:"equals,omitempty"`
	// Pole makes a numeric rule fire on a dimension threshold.
	Pole Pole `yaml:"pole,omitempty"`
	// Opposes names the signal this one contradicts when it fires.
	Opposes string `yaml:"opposes,omitempty"`
	// Weight is the base weight used when building persona weights.
	Weight float64 `yaml:"weight"`

	re *regexp.Regexp
}

// CatalogFile is the YAML layout of a catalog.
type CatalogFile struct {
	Version    string `yaml:"version"`
	Thresholds struct {
		High float64 `yaml:"high"`
		Low  float64 `yaml:"low"`
	} `yaml:"thresholds"`
	Signals []Rule `yaml:"signals"`
}

// Catalog is a validated, immutable set of rules. It is passed explicitly to
// the extractor and the weight builder.
type Catalog struct {
	version       string
	highThreshold float64
	lowThreshold  float64
	rules         []*Rule
	byID          map[string]*Rule
}

// NewCatalog validates rules and compiles their patterns.
func NewCatalog(version string, rules []Rule) (*Catalog, error) {
	return newCatalog(CatalogFile{Version: version, Signals: rules})
}

// Parse reads a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f CatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "signal: parse catalog")
	}
	return newCatalog(f)
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "signal: read catalog %s", path)
	}
	return Parse(data)
}

// Default returns the embedded production catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// Load reads the catalog at path, or the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

func newCatalog(f CatalogFile) (*Catalog, error) {
	if strings.TrimSpace(f.Version) == "" {
		return nil, model.NewValidationError("catalog.version", "required")
	}
	c := &Catalog{
		version:       f.Version,
		highThreshold: f.Thresholds.High,
		lowThreshold:  f.Thresholds.Low,
		byID:          make(map[string]*Rule, len(f.Signals)),
	}
	if c.highThreshold == 0 {
		c.highThreshold = DefaultHighThreshold
	}
	if c.lowThreshold == 0 {
		c.lowThreshold = DefaultLowThreshold
	}
	if c.lowThreshold >= c.highThreshold {
		return nil, model.NewValidationError("catalog.thresholds", "low must be below high")
	}

	for i := range f.Signals {
		r := f.Signals[i]
		if err := r.compile(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[r.SignalID]; dup {
			return nil, model.NewValidationError("signals."+r.SignalID, "duplicate signal id")
		}
		c.byID[r.SignalID] = &r
		c.rules = append(c.rules, &r)
	}

	for _, r := range c.rules {
		if r.Opposes == "" {
			continue
		}
		if r.Opposes == r.SignalID {
			return nil, model.NewValidationError("signals."+r.SignalID+".opposes", "signal cannot oppose itself")
		}
		if _, ok := c.byID[r.Opposes]; !ok {
			return nil, model.NewValidationError("signals."+r.SignalID+".opposes", "unknown signal "+r.Opposes)
		}
	}

	sort.Slice(c.rules, func(i, j int) bool { return c.rules[i].SignalID < c.rules[j].SignalID })
	return c, nil
}

func (r *Rule) compile() error {
	field := "signals." + r.SignalID
	if strings.TrimSpace(r.SignalID) == "" {
		return model.NewValidationError("signals.id", "required")
	}
	if r.Name == "" {
		r.Name = r.SignalID
	}
	if r.Weight <= 0 || r.Weight > 1 {
		return model.NewValidationError(field+".weight", "must be in (0, 1]")
	}

	switch r.ExtractionMethod {
	case model.MethodFieldMapping:
		if r.SourceField == "" {
			return model.NewValidationError(field+".source_field", "required for FIELD_MAPPING")
		}
		switch r.ValueType {
		case model.ValueNumeric:
			if r.Pole == "" && r.Min == nil && r.Max == nil {
				return model.NewValidationError(field, "numeric rule needs min, max or pole")
			}
			if r.Pole != "" && r.Pole != PoleHigh && r.Pole != PoleLow {
				return model.NewValidationError(field+".pole", "must be high or low")
			}
		case model.ValueBoolean:
		case model.ValueCategorical, model.ValueText:
			if len(r.Patterns) == 0 {
				return model.NewValidationError(field+".patterns", "required for text rules")
			}
		default:
			return model.NewValidationError(field+".value_type", "unknown value type "+string(r.ValueType))
		}
	case model.MethodPatternMatch, model.MethodNLPClassification:
		if len(r.Patterns) == 0 {
			return model.NewValidationError(field+".patterns", "required for pattern rules")
		}
		if len(r.SourceFields) == 0 {
			r.SourceFields = []string{model.FieldPhrases, model.FieldLifeExperiences}
		}
		if r.ValueType == "" {
			r.ValueType = model.ValueText
		}
	case model.MethodManual:
		if r.SourceField == "" {
			r.SourceField = strings.ToLower(r.SignalID)
		}
		if r.ValueType == "" {
			r.ValueType = model.ValueBoolean
		}
	default:
		return model.NewValidationError(field+".method", "unknown extraction method "+string(r.ExtractionMethod))
	}

	if len(r.Patterns) > 0 {
		re, err := regexp.Compile(`(?i)(?:` + strings.Join(r.Patterns, "|") + `)`)
		if err != nil {
			return model.NewValidationError(field+".patterns", err.Error())
		}
		r.re = re
	}
	return nil
}

// Version identifies the catalog contents.
func (c *Catalog) Version() string { return c.version }

// Thresholds returns the low and high dimension thresholds.
func (c *Catalog) Thresholds() (low, high float64) { return c.lowThreshold, c.highThreshold }

// Rules returns the rules ordered by signal ID.
func (c *Catalog) Rules() []*Rule { return c.rules }

// Rule looks up a rule by signal ID.
func (c *Catalog) Rule(id string) (*Rule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Signals returns the catalog's signal definitions ordered by ID.
func (c *Catalog) Signals() []model.Signal {
	out := make([]model.Signal, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Signal
	}
	return out
}

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.rules) }
