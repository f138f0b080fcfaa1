// Package weights builds and serves the signal-persona weight table.
//
// A Table is an immutable snapshot. It is produced offline by Build, saved as
// JSON or to the store, and published to readers through a Holder so that an
// in-flight classification never sees a half-updated table.
package weights

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/juror-match/internal/model"
)

type key struct {
	signal  string
	persona string
	dir     model.Direction
}

// Meta identifies a table snapshot.
type Meta struct {
	ID             string    `json:"id"`
	Version        string    `json:"version"`
	CatalogVersion string    `json:"catalog_version"`
	BuiltAt        time.Time `json:"built_at"`
}

// Table is an immutable signal-persona weight snapshot.
type Table struct {
	meta     Meta
	personas []model.Persona
	weights  []model.SignalPersonaWeight

	personaIdx  map[string]int
	index       map[key]float64
	maxPositive map[string]float64
	positives   map[string]int
}

// Empty returns a table with no personas and no weights.
func Empty() *Table {
	t, _ := New(Meta{}, nil, nil)
	return t
}

// New validates personas and weights and indexes them. Weights must be
// positive, reference known personas and be unique per (signal, persona,
// direction).
func New(meta Meta, personas []model.Persona, weights []model.SignalPersonaWeight) (*Table, error) {
	t := &Table{
		meta:        meta,
		personas:    append([]model.Persona(nil), personas...),
		weights:     append([]model.SignalPersonaWeight(nil), weights...),
		personaIdx:  make(map[string]int, len(personas)),
		index:       make(map[key]float64, len(weights)),
		maxPositive: make(map[string]float64, len(personas)),
		positives:   make(map[string]int, len(personas)),
	}

	sort.Slice(t.personas, func(i, j int) bool { return t.personas[i].ID < t.personas[j].ID })
	for i, p := range t.personas {
		if p.ID == "" {
			return nil, model.NewValidationError("personas.id", "required")
		}
		if _, dup := t.personaIdx[p.ID]; dup {
			return nil, model.NewValidationError("personas."+p.ID, "duplicate persona id")
		}
		t.personaIdx[p.ID] = i
	}

	sortWeights(t.weights)
	for _, w := range t.weights {
		field := "weights." + w.SignalID + "." + w.PersonaID
		if w.SignalID == "" {
			return nil, model.NewValidationError("weights.signal_id", "required")
		}
		if _, ok := t.personaIdx[w.PersonaID]; !ok {
			return nil, model.NewValidationError(field, "unknown persona")
		}
		if w.Direction != model.DirectionPositive && w.Direction != model.DirectionNegative {
			return nil, model.NewValidationError(field+".direction", "must be POSITIVE or NEGATIVE")
		}
		if math.IsNaN(w.Weight) || w.Weight <= 0 || w.Weight > 1 {
			return nil, model.NewValidationError(field+".weight", "must be in (0, 1]")
		}
		k := key{w.SignalID, w.PersonaID, w.Direction}
		if _, dup := t.index[k]; dup {
			return nil, model.NewValidationError(field, "duplicate weight for "+string(w.Direction))
		}
		t.index[k] = w.Weight
		if w.Direction == model.DirectionPositive {
			t.maxPositive[w.PersonaID] += w.Weight
			t.positives[w.PersonaID]++
		}
	}
	return t, nil
}

func sortWeights(ws []model.SignalPersonaWeight) {
	sort.Slice(ws, func(i, j int) bool {
		a, b := ws[i], ws[j]
		if a.PersonaID != b.PersonaID {
			return a.PersonaID < b.PersonaID
		}
		if a.SignalID != b.SignalID {
			return a.SignalID < b.SignalID
		}
		return a.Direction > b.Direction
	})
}

// Meta returns the snapshot identity.
func (t *Table) Meta() Meta { return t.meta }

// ID returns the snapshot ID.
func (t *Table) ID() string { return t.meta.ID }

// Version returns the content hash of the snapshot.
func (t *Table) Version() string { return t.meta.Version }

// Personas returns the personas ordered by ID. Callers must not modify it.
func (t *Table) Personas() []model.Persona { return t.personas }

// Persona looks up a persona by ID.
func (t *Table) Persona(id string) (model.Persona, bool) {
	i, ok := t.personaIdx[id]
	if !ok {
		return model.Persona{}, false
	}
	return t.personas[i], true
}

// Weights returns every weight ordered by persona, signal and direction.
// Callers must not modify it.
func (t *Table) Weights() []model.SignalPersonaWeight { return t.weights }

// Lookup returns the weight for (signal, persona, direction).
func (t *Table) Lookup(signalID, personaID string, dir model.Direction) (float64, bool) {
	w, ok := t.index[key{signalID, personaID, dir}]
	return w, ok
}

// MaxPositive is the sum of every POSITIVE weight of a persona: the fixed
// confidence denominator.
func (t *Table) MaxPositive(personaID string) float64 { return t.maxPositive[personaID] }

// PositiveCount is the number of POSITIVE weights of a persona.
func (t *Table) PositiveCount(personaID string) int { return t.positives[personaID] }

// Len returns the number of weights.
func (t *Table) Len() int { return len(t.weights) }

// IsEmpty reports whether the table can classify anything.
func (t *Table) IsEmpty() bool { return len(t.personas) == 0 || len(t.weights) == 0 }
