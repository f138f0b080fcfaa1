package signal

import (
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/model"
)

// maxDimension is the top of the 0-5 dimension scale.
const maxDimension = 5.0

// maxEvidenceLen bounds the evidence snippet kept per signal.
const maxEvidenceLen = 80

// Extraction is the result of running the catalog over one attribute bag.
type Extraction struct {
	// Signals are the observed signals ordered by ID. All are POSITIVE.
	Signals []model.ExtractedSignal `json:"signals"`
	// Contradicts lists signals opposed by an observed signal, ordered by ID.
	Contradicts []string `json:"contradicts,omitempty"`
}

// IDs returns the observed signal IDs.
func (e Extraction) IDs() []string {
	ids := make([]string, len(e.Signals))
	for i, s := range e.Signals {
		ids[i] = s.SignalID
	}
	return ids
}

// Has reports whether the signal was observed.
func (e Extraction) Has(id string) bool {
	for _, s := range e.Signals {
		if s.SignalID == id {
			return true
		}
	}
	return false
}

// Extractor applies a catalog to attribute bags. It is stateless beyond its
// catalog and safe for concurrent use.
type Extractor struct {
	catalog *Catalog
}

// NewExtractor creates an Extractor over the given catalog.
func NewExtractor(c *Catalog) *Extractor {
	return &Extractor{catalog: c}
}

// Catalog returns the extractor's catalog.
func (e *Extractor) Catalog() *Catalog { return e.catalog }

// Extract runs every rule over attrs. Missing fields yield no signal; only a
// nil attribute bag is an error.
func (e *Extractor) Extract(attrs *model.Attributes) (Extraction, error) {
	if attrs == nil {
		return Extraction{}, model.NewValidationError("attributes", "must not be nil")
	}

	var out Extraction
	contradicted := map[string]bool{}
	for _, r := range e.catalog.rules {
		sig, ok := e.apply(r, attrs)
		if !ok {
			continue
		}
		out.Signals = append(out.Signals, sig)
		if r.Opposes != "" {
			contradicted[r.Opposes] = true
		}
	}

	for id := range contradicted {
		out.Contradicts = append(out.Contradicts, id)
	}
	sort.Strings(out.Contradicts)

	zap.L().Debug("signal: extracted",
		zap.Int("signals", len(out.Signals)),
		zap.Int("contradicts", len(out.Contradicts)),
		zap.String("catalog_version", e.catalog.version),
	)
	return out, nil
}

func (e *Extractor) apply(r *Rule, a *model.Attributes) (model.ExtractedSignal, bool) {
	sig := model.ExtractedSignal{
		SignalID:  r.SignalID,
		Direction: model.DirectionPositive,
		Source:    r.SourceField,
		Intensity: 1,
	}

	switch r.ExtractionMethod {
	case model.MethodFieldMapping:
		switch r.ValueType {
		case model.ValueNumeric:
			v, ok := a.Number(r.SourceField)
			if !ok {
				return sig, false
			}
			intensity, fired := e.numeric(r, v)
			if !fired {
				return sig, false
			}
			sig.Intensity = intensity
			sig.Evidence = strconv.FormatFloat(v, 'f', -1, 64)
			return sig, true
		case model.ValueBoolean:
			v, ok := a.Bool(r.SourceField)
			want := r.Equals == nil || *r.Equals
			if !ok || v != want {
				return sig, false
			}
			sig.Evidence = strconv.FormatBool(v)
			return sig, true
		default:
			v, ok := a.Field(r.SourceField)
			if !ok {
				return sig, false
			}
			return matchText(sig, r, v)
		}
	case model.MethodPatternMatch, model.MethodNLPClassification:
		text := a.Text(r.SourceFields...)
		if text == "" {
			return sig, false
		}
		sig.Source = ""
		return matchText(sig, r, text)
	case model.MethodManual:
		v, ok := a.Bool(r.SourceField)
		if !ok || !v {
			return sig, false
		}
		sig.Evidence = "flagged"
		return sig, true
	}
	return sig, false
}

// numeric tests a band or a dimension pole. Pole intensity scales from 0.5
// at the threshold to 1.0 at the end of the scale.
func (e *Extractor) numeric(r *Rule, v float64) (float64, bool) {
	switch r.Pole {
	case PoleHigh:
		if v < e.catalog.highThreshold {
			return 0, false
		}
		return poleIntensity(v-e.catalog.highThreshold, maxDimension-e.catalog.highThreshold), true
	case PoleLow:
		if v > e.catalog.lowThreshold {
			return 0, false
		}
		return poleIntensity(e.catalog.lowThreshold-v, e.catalog.lowThreshold), true
	}
	if r.Min != nil && v < *r.Min {
		return 0, false
	}
	if r.Max != nil && v > *r.Max {
		return 0, false
	}
	return 1, true
}

func poleIntensity(distance, span float64) float64 {
	if span <= 0 {
		return 1
	}
	i := 0.5 + 0.5*math.Min(distance/span, 1)
	return math.Round(i*1000) / 1000
}

func matchText(sig model.ExtractedSignal, r *Rule, text string) (model.ExtractedSignal, bool) {
	if r.re == nil {
		return sig, false
	}
	m := r.re.FindString(text)
	if m == "" {
		return sig, false
	}
	sig.Evidence = truncateEvidence(m)
	return sig, true
}

// truncateEvidence cuts s to at most maxEvidenceLen bytes on a rune boundary.
func truncateEvidence(s string) string {
	if len(s) <= maxEvidenceLen {
		return s
	}
	end := maxEvidenceLen
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}
