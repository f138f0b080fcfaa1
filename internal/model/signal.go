package model

// SignalCategory groups signals by the kind of fact they describe.
type SignalCategory string

const (
	CategoryDemographic SignalCategory = "DEMOGRAPHIC"
	CategoryBehavioral  SignalCategory = "BEHAVIORAL"
	CategoryAttitudinal SignalCategory = "ATTITUDINAL"
	CategoryLinguistic  SignalCategory = "LINGUISTIC"
	CategorySocial      SignalCategory = "SOCIAL"
)

// ExtractionMethod names how a signal is derived from an attribute bag.
type ExtractionMethod string

const (
	MethodFieldMapping      ExtractionMethod = "FIELD_MAPPING"
	MethodPatternMatch      ExtractionMethod = "PATTERN_MATCH"
	MethodNLPClassification ExtractionMethod = "NLP_CLASSIFICATION"
	MethodManual            ExtractionMethod = "MANUAL"
)

// ValueType is the shape of the value a signal is read from.
type ValueType string

const (
	ValueBoolean     ValueType = "BOOLEAN"
	ValueCategorical ValueType = "CATEGORICAL"
	ValueNumeric     ValueType = "NUMERIC"
	ValueText        ValueType = "TEXT"
)

// Direction says whether a signal supports or contradicts a persona.
type Direction string

const (
	DirectionPositive Direction = "POSITIVE"
	DirectionNegative Direction = "NEGATIVE"
)

// Signal is static catalog reference data.
type Signal struct {
	SignalID         string           `json:"signal_id" yaml:"id"`
	Name             string           `json:"name" yaml:"name"`
	Category         SignalCategory   `json:"category" yaml:"category"`
	ExtractionMethod ExtractionMethod `json:"extraction_method" yaml:"method"`
	SourceField      string           `json:"source_field,omitempty" yaml:"source_field,omitempty"`
	Patterns         []string         `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	ValueType        ValueType        `json:"value_type" yaml:"value_type"`
}

// SignalPersonaWeight links a signal to a persona in one direction.
// The table is unique per (SignalID, PersonaID, Direction).
type SignalPersonaWeight struct {
	SignalID  string    `json:"signal_id"`
	PersonaID string    `json:"persona_id"`
	Direction Direction `json:"direction"`
	Weight    float64   `json:"weight"`
}

// ExtractedSignal is one signal observed in an attribute bag. Extraction only
// ever produces POSITIVE observations.
type ExtractedSignal struct {
	SignalID  string    `json:"signal_id"`
	Direction Direction `json:"direction"`
	Source    string    `json:"source,omitempty"`
	Evidence  string    `json:"evidence,omitempty"`
	Intensity float64   `json:"intensity"`
}
