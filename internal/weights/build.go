package weights

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/signal"
)

// Build runs the catalog over every persona's attribute bag and derives the
// weight table. Each observed signal becomes a POSITIVE weight (the rule's
// base weight scaled by intensity). Each signal contradicted by an observation
// becomes a NEGATIVE weight, unless the persona also exhibits it.
//
// Build is deterministic: the same catalog and personas always produce the
// same weights and Version. Only ID and BuiltAt vary between runs.
func Build(catalog *signal.Catalog, personas []model.Persona) (*Table, error) {
	if catalog == nil {
		return nil, model.NewValidationError("catalog", "must not be nil")
	}
	ex := signal.NewExtractor(catalog)

	var ws []model.SignalPersonaWeight
	for i := range personas {
		p := &personas[i]
		out, err := ex.Extract(&p.Attributes)
		if err != nil {
			return nil, eris.Wrapf(err, "weights: extract persona %s", p.ID)
		}

		observed := make(map[string]float64, len(out.Signals))
		for _, s := range out.Signals {
			r, _ := catalog.Rule(s.SignalID)
			w := round3(r.Weight * s.Intensity)
			observed[s.SignalID] = s.Intensity
			ws = append(ws, model.SignalPersonaWeight{
				SignalID:  s.SignalID,
				PersonaID: p.ID,
				Direction: model.DirectionPositive,
				Weight:    w,
			})
		}

		for _, id := range out.Contradicts {
			if _, ok := observed[id]; ok {
				continue
			}
			r, _ := catalog.Rule(id)
			ws = append(ws, model.SignalPersonaWeight{
				SignalID:  id,
				PersonaID: p.ID,
				Direction: model.DirectionNegative,
				Weight:    round3(r.Weight * opposingIntensity(catalog, out, id)),
			})
		}
	}

	version, err := contentVersion(catalog.Version(), personas)
	if err != nil {
		return nil, err
	}

	t, err := New(Meta{
		ID:             uuid.New().String(),
		Version:        version,
		CatalogVersion: catalog.Version(),
		BuiltAt:        time.Now().UTC(),
	}, personas, ws)
	if err != nil {
		return nil, eris.Wrap(err, "weights: build table")
	}

	zap.L().Info("weights: built table",
		zap.String("id", t.ID()),
		zap.String("version", t.Version()),
		zap.Int("personas", len(t.Personas())),
		zap.Int("weights", t.Len()),
	)
	return t, nil
}

// opposingIntensity is the strongest intensity among observed signals that
// oppose id.
func opposingIntensity(catalog *signal.Catalog, out signal.Extraction, id string) float64 {
	best := 0.0
	for _, s := range out.Signals {
		r, ok := catalog.Rule(s.SignalID)
		if ok && r.Opposes == id && s.Intensity > best {
			best = s.Intensity
		}
	}
	if best == 0 {
		return 1
	}
	return best
}

// contentVersion hashes the catalog version and the persona corpus.
func contentVersion(catalogVersion string, personas []model.Persona) (string, error) {
	h := sha256.New()
	h.Write([]byte(catalogVersion))
	h.Write([]byte{0})
	for _, p := range sortedPersonas(personas) {
		data, err := json.Marshal(p)
		if err != nil {
			return "", eris.Wrapf(err, "weights: hash persona %s", p.ID)
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sortedPersonas(personas []model.Persona) []model.Persona {
	out := append([]model.Persona(nil), personas...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// round3 rounds to three decimals, never below the smallest storable weight.
func round3(v float64) float64 {
	return math.Max(math.Round(v*1000)/1000, 0.001)
}
