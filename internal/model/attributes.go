package model

import (
	"strconv"
	"strings"
)

// Attributes is the raw attribute bag of a juror or persona. Every field is
// optional; accessors return a zero value and false when a field is absent.
type Attributes struct {
	Age                  *int               `json:"age,omitempty" yaml:"age,omitempty"`
	Gender               string             `json:"gender,omitempty" yaml:"gender,omitempty"`
	Occupation           string             `json:"occupation,omitempty" yaml:"occupation,omitempty"`
	Employer             string             `json:"employer,omitempty" yaml:"employer,omitempty"`
	Education            string             `json:"education,omitempty" yaml:"education,omitempty"`
	MaritalStatus        string             `json:"marital_status,omitempty" yaml:"marital_status,omitempty"`
	City                 string             `json:"city,omitempty" yaml:"city,omitempty"`
	State                string             `json:"state,omitempty" yaml:"state,omitempty"`
	PoliticalAffiliation string             `json:"political_affiliation,omitempty" yaml:"political_affiliation,omitempty"`
	Religion             string             `json:"religion,omitempty" yaml:"religion,omitempty"`
	HasChildren          *bool              `json:"has_children,omitempty" yaml:"has_children,omitempty"`
	Dimensions           map[string]float64 `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Phrases              []string           `json:"phrases,omitempty" yaml:"phrases,omitempty"`
	LifeExperiences      []string           `json:"life_experiences,omitempty" yaml:"life_experiences,omitempty"`
	Extra                map[string]string  `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Field names understood by Field, Number and Text.
const (
	FieldAge                  = "age"
	FieldGender               = "gender"
	FieldOccupation           = "occupation"
	FieldEmployer             = "employer"
	FieldEducation            = "education"
	FieldMaritalStatus        = "marital_status"
	FieldCity                 = "city"
	FieldState                = "state"
	FieldPoliticalAffiliation = "political_affiliation"
	FieldReligion             = "religion"
	FieldHasChildren          = "has_children"
	FieldPhrases              = "phrases"
	FieldLifeExperiences      = "life_experiences"
)

// dimensionPrefix addresses a dimension score, e.g. "dimensions.authoritarianism".
const dimensionPrefix = "dimensions."

// Field returns the string form of a named field.
func (a *Attributes) Field(name string) (string, bool) {
	if a == nil {
		return "", false
	}
	var v string
	switch name {
	case FieldAge:
		if a.Age == nil {
			return "", false
		}
		return strconv.Itoa(*a.Age), true
	case FieldGender:
		v = a.Gender
	case FieldOccupation:
		v = a.Occupation
	case FieldEmployer:
		v = a.Employer
	case FieldEducation:
		v = a.Education
	case FieldMaritalStatus:
		v = a.MaritalStatus
	case FieldCity:
		v = a.City
	case FieldState:
		v = a.State
	case FieldPoliticalAffiliation:
		v = a.PoliticalAffiliation
	case FieldReligion:
		v = a.Religion
	case FieldHasChildren:
		if a.HasChildren == nil {
			return "", false
		}
		return strconv.FormatBool(*a.HasChildren), true
	case FieldPhrases:
		v = strings.Join(a.Phrases, " ")
	case FieldLifeExperiences:
		v = strings.Join(a.LifeExperiences, " ")
	default:
		if strings.HasPrefix(name, dimensionPrefix) {
			n, ok := a.Number(name)
			if !ok {
				return "", false
			}
			return strconv.FormatFloat(n, 'f', -1, 64), true
		}
		v = a.Extra[name]
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Number returns a numeric field: age, a dimension score ("dimensions.<name>"
// or the bare dimension name) or a numeric extra field.
func (a *Attributes) Number(name string) (float64, bool) {
	if a == nil {
		return 0, false
	}
	if name == FieldAge {
		if a.Age == nil {
			return 0, false
		}
		return float64(*a.Age), true
	}
	key := strings.TrimPrefix(name, dimensionPrefix)
	if v, ok := a.Dimensions[key]; ok {
		return v, true
	}
	if raw, ok := a.Extra[name]; ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

// Bool returns a boolean field: has_children or a boolean extra field.
func (a *Attributes) Bool(name string) (bool, bool) {
	if a == nil {
		return false, false
	}
	if name == FieldHasChildren {
		if a.HasChildren == nil {
			return false, false
		}
		return *a.HasChildren, true
	}
	raw, ok := a.Extra[name]
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}

// Text concatenates the named fields, skipping absent ones.
func (a *Attributes) Text(fields ...string) string {
	var parts []string
	for _, f := range fields {
		if v, ok := a.Field(f); ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " \n ")
}
