package model

// Persona is a predefined psychological archetype.
type Persona struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name" yaml:"name"`
	Archetype         string     `json:"archetype" yaml:"archetype"`
	ArchetypeStrength float64    `json:"archetype_strength" yaml:"archetype_strength"`
	Description       string     `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes        Attributes `json:"attributes" yaml:"attributes"`
}

// Designation marks a classification result as the primary or secondary match.
type Designation string

const (
	DesignationPrimary   Designation = "primary"
	DesignationSecondary Designation = "secondary"
)

// PersonaMatchResult is one ranked persona for a classified juror.
type PersonaMatchResult struct {
	PersonaID     string      `json:"persona_id"`
	PersonaName   string      `json:"persona_name"`
	Confidence    float64     `json:"confidence"`
	Strength      float64     `json:"strength"`
	Reasoning     string      `json:"reasoning"`
	KeyIndicators []string    `json:"key_indicators"`
	Concerns      []string    `json:"concerns"`
	Designation   Designation `json:"designation,omitempty"`
}
