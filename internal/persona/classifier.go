package persona

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/config"
	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/weights"
)

// DefaultConfig returns the default secondary-match thresholds.
func DefaultConfig() config.ClassifyConfig {
	return config.ClassifyConfig{
		SecondaryMinConfidence: 0.25,
		SecondaryMinRatio:      0.5,
		MaxConcurrent:          8,
	}
}

// Classifier scores observed signals against every persona in a weight
// table. It is stateless and safe for concurrent use.
type Classifier struct {
	cfg config.ClassifyConfig
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg config.ClassifyConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the primary match and, when it clears the secondary
// thresholds, a secondary match. No persona with positive confidence means
// an empty result.
func (c *Classifier) Classify(signals []string, t *weights.Table) []model.PersonaMatchResult {
	ranked := c.Rank(signals, t)
	if len(ranked) == 0 || ranked[0].Confidence <= 0 {
		return []model.PersonaMatchResult{}
	}

	out := []model.PersonaMatchResult{ranked[0]}
	out[0].Designation = model.DesignationPrimary
	if len(ranked) > 1 {
		second := ranked[1]
		if second.Confidence >= c.cfg.SecondaryMinConfidence &&
			second.Confidence >= c.cfg.SecondaryMinRatio*out[0].Confidence {
			second.Designation = model.DesignationSecondary
			out = append(out, second)
		}
	}

	zap.L().Debug("persona: classified",
		zap.Int("signals", len(signals)),
		zap.String("primary", out[0].PersonaID),
		zap.Float64("confidence", out[0].Confidence),
		zap.Int("results", len(out)),
		zap.String("weights_version", t.Version()),
	)
	return out
}

// Rank scores every persona and orders them by confidence, then archetype
// strength, then persona ID. Empty signals or an empty table yield an empty
// ranking.
//
// For each persona the net score is the sum of POSITIVE weights of observed
// signals minus the sum of NEGATIVE weights of observed signals. Confidence
// is the net score over the persona's total POSITIVE weight, clamped to
// [0, 1]. The denominator is fixed at build time, so confidences are
// comparable across runs.
func (c *Classifier) Rank(signals []string, t *weights.Table) []model.PersonaMatchResult {
	if len(signals) == 0 || t == nil || t.IsEmpty() {
		return []model.PersonaMatchResult{}
	}
	observed := dedupe(signals)

	results := make([]model.PersonaMatchResult, 0, len(t.Personas()))
	strength := make(map[string]float64, len(t.Personas()))
	for _, p := range t.Personas() {
		results = append(results, score(p, observed, t))
		strength[p.ID] = p.ArchetypeStrength
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if strength[a.PersonaID] != strength[b.PersonaID] {
			return strength[a.PersonaID] > strength[b.PersonaID]
		}
		return a.PersonaID < b.PersonaID
	})
	return results
}

func score(p model.Persona, observed []string, t *weights.Table) model.PersonaMatchResult {
	res := model.PersonaMatchResult{
		PersonaID:     p.ID,
		PersonaName:   p.Name,
		KeyIndicators: []string{},
		Concerns:      []string{},
	}

	var pos, neg float64
	for _, id := range observed {
		if w, ok := t.Lookup(id, p.ID, model.DirectionPositive); ok {
			pos += w
			res.KeyIndicators = append(res.KeyIndicators, id)
		}
		if w, ok := t.Lookup(id, p.ID, model.DirectionNegative); ok {
			neg += w
			res.Concerns = append(res.Concerns, id)
		}
	}

	maxPos := t.MaxPositive(p.ID)
	net := pos - neg
	if maxPos > 0 {
		res.Confidence = round4(math.Max(0, math.Min(1, net/maxPos)))
	}
	if n := t.PositiveCount(p.ID); n > 0 {
		res.Strength = round4(float64(len(res.KeyIndicators)) / float64(n))
	}

	res.Reasoning = fmt.Sprintf("%d of %d indicators observed; net weight %.2f of %.2f",
		len(res.KeyIndicators), t.PositiveCount(p.ID), net, maxPos)
	if len(res.Concerns) > 0 {
		res.Reasoning += fmt.Sprintf("; %d contradicting signal(s)", len(res.Concerns))
	}
	return res
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
