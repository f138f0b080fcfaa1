package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/config"
	"github.com/sells-group/juror-match/internal/metrics"
	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/persona"
	"github.com/sells-group/juror-match/internal/resolve"
	"github.com/sells-group/juror-match/internal/signal"
	"github.com/sells-group/juror-match/internal/weights"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func intPtr(v int) *int { return &v }

func testConfig() *config.Config {
	return &config.Config{
		Resolve:  resolve.DefaultConfig(),
		Classify: persona.DefaultConfig(),
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *weights.Table) {
	t.Helper()
	catalog, err := signal.Default()
	require.NoError(t, err)
	lib, err := persona.DefaultLibrary()
	require.NoError(t, err)
	tbl, err := weights.Build(catalog, lib.Personas)
	require.NoError(t, err)
	return New(testConfig(), catalog, tbl, opts...), tbl
}

func enforcerAttributes() *model.Attributes {
	return &model.Attributes{
		Age:        intPtr(58),
		Occupation: "Corrections officer",
		Dimensions: map[string]float64{"authoritarianism": 4.8, "institutional_trust": 4.4},
		Phrases:    []string{"Follow the rules and you won't have problems"},
	}
}

func TestParseName(t *testing.T) {
	e, _ := newTestEngine(t)

	p, err := e.ParseName("Smith, John Robert Jr.")
	require.NoError(t, err)
	assert.Equal(t, "JOHN", p.FirstName)
	assert.Equal(t, "SMITH", p.LastName)

	_, err = e.ParseName("")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrEmptyInput))
}

func TestScoreIdentityCandidates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	e, _ := newTestEngine(t, WithMetrics(m))

	ranked, err := e.ScoreIdentityCandidates(
		model.Target{Name: "John Smith", Demographics: model.Demographics{Age: intPtr(45)}},
		[]model.CandidateRecord{
			{ID: "b", FullName: "Mary Baker"},
			{ID: "a", FullName: "John Smith", Demographics: model.Demographics{Age: intPtr(45)}},
		},
	)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].CandidateID)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesScored))

	_, err = e.ScoreIdentityCandidates(model.Target{}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrEmptyInput))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationOutcome.WithLabelValues(metrics.OpScoreCandidate, "error")))
}

func TestRescore(t *testing.T) {
	e, _ := newTestEngine(t)
	c := &model.IdentityCandidate{CandidateID: "a", FullName: "John Smith", Status: model.CandidateRejected}
	err := e.Rescore(model.Target{Name: "John Smith"}, c)
	assert.True(t, eris.Is(err, model.ErrTerminalState))
}

func TestClassifyPersonas(t *testing.T) {
	e, _ := newTestEngine(t)

	results, err := e.ClassifyPersonas(enforcerAttributes())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "enforcer", results[0].PersonaID)
	assert.Equal(t, model.DesignationPrimary, results[0].Designation)
	assert.Contains(t, results[0].KeyIndicators, "AUTHORITY_DEFERENCE_HIGH")
	assert.Contains(t, results[0].KeyIndicators, "OCCUPATION_LAW_ENFORCEMENT")
}

func TestClassify_Detailed(t *testing.T) {
	e, tbl := newTestEngine(t)

	c, err := e.Classify(enforcerAttributes())
	require.NoError(t, err)
	assert.Equal(t, tbl.ID(), c.WeightsID)
	assert.Equal(t, tbl.Version(), c.WeightsVersion)
	assert.Contains(t, c.Contradicts, "AUTHORITY_DEFERENCE_LOW")

	ids := make([]string, 0, len(c.Signals))
	for _, s := range c.Signals {
		ids = append(ids, s.SignalID)
	}
	assert.Equal(t, []string{
		"AGE_RANGE_46_60",
		"AUTHORITY_DEFERENCE_HIGH",
		"INSTITUTIONAL_TRUST_HIGH",
		"OCCUPATION_LAW_ENFORCEMENT",
		"RULES_ORIENTED_LANGUAGE",
	}, ids)
}

func TestClassify_EmptyAndInvalid(t *testing.T) {
	e, _ := newTestEngine(t)

	results, err := e.ClassifyPersonas(&model.Attributes{})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = e.ClassifyPersonas(nil)
	require.Error(t, err)
	var ve *model.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestClassify_NoWeights(t *testing.T) {
	catalog, err := signal.Default()
	require.NoError(t, err)
	e := New(testConfig(), catalog, nil)

	results, err := e.ClassifyPersonas(enforcerAttributes())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.True(t, e.Weights().IsEmpty())
}

func TestClassifyBatch(t *testing.T) {
	e, _ := newTestEngine(t)

	subjects := []Subject{
		{ID: "j1", Attributes: enforcerAttributes()},
		{ID: "j2", Attributes: nil},
		{ID: "j3", Attributes: &model.Attributes{Occupation: "Registered nurse", Dimensions: map[string]float64{"empathy": 4.9}}},
	}
	for i := 0; i < 20; i++ {
		subjects = append(subjects, Subject{ID: fmt.Sprintf("extra-%d", i), Attributes: enforcerAttributes()})
	}

	results, err := e.ClassifyBatch(context.Background(), subjects)
	require.NoError(t, err)
	require.Len(t, results, len(subjects))

	assert.Equal(t, "j1", results[0].SubjectID)
	require.NotNil(t, results[0].Classification)
	assert.Equal(t, "enforcer", results[0].Classification.Results[0].PersonaID)

	assert.Equal(t, "j2", results[1].SubjectID)
	assert.Error(t, results[1].Err)
	assert.NotEmpty(t, results[1].Error)
	assert.Nil(t, results[1].Classification)

	require.NotNil(t, results[2].Classification)
	assert.Equal(t, "caregiver", results[2].Classification.Results[0].PersonaID)

	for _, r := range results[3:] {
		require.NoError(t, r.Err)
		assert.Equal(t, results[0].Classification.Results, r.Classification.Results)
	}
}

func TestClassifyBatch_Cancelled(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := e.ClassifyBatch(ctx, []Subject{{ID: "a", Attributes: enforcerAttributes()}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Classification)
	assert.Error(t, results[0].Err)
}

func TestClassifyBatch_Empty(t *testing.T) {
	e, _ := newTestEngine(t)
	results, err := e.ClassifyBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReloadWeights(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	e, first := newTestEngine(t, WithMetrics(m))

	assert.Error(t, e.ReloadWeights(nil))

	onlyNurse, err := weights.New(weights.Meta{ID: "n", Version: "nurse-only"},
		[]model.Persona{{ID: "nurse"}},
		[]model.SignalPersonaWeight{{SignalID: "OCCUPATION_HEALTHCARE", PersonaID: "nurse", Direction: model.DirectionPositive, Weight: 1}},
	)
	require.NoError(t, err)
	require.NoError(t, e.ReloadWeights(onlyNurse))
	assert.Same(t, onlyNurse, e.Weights())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WeightsReloads))

	results, err := e.ClassifyPersonas(&model.Attributes{Occupation: "Nurse practitioner"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "nurse", results[0].PersonaID)

	require.NoError(t, e.ReloadWeights(first))
	assert.Same(t, first, e.Weights())
}

func TestReloadWeights_ConcurrentClassify(t *testing.T) {
	e, first := newTestEngine(t)
	second, err := weights.New(weights.Meta{ID: "x", Version: "x"}, []model.Persona{{ID: "p"}},
		[]model.SignalPersonaWeight{{SignalID: "AUTHORITY_DEFERENCE_HIGH", PersonaID: "p", Direction: model.DirectionPositive, Weight: 1}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c, err := e.Classify(enforcerAttributes())
				if !assert.NoError(t, err) || !assert.NotEmpty(t, c.Results) {
					return
				}
				switch c.WeightsVersion {
				case first.Version():
					assert.Equal(t, "enforcer", c.Results[0].PersonaID)
				case second.Version():
					assert.Equal(t, "p", c.Results[0].PersonaID)
				default:
					t.Errorf("unexpected weights version %q", c.WeightsVersion)
				}
			}
		}()
	}
	for j := 0; j < 50; j++ {
		tbl := first
		if j%2 == 0 {
			tbl = second
		}
		require.NoError(t, e.ReloadWeights(tbl))
	}
	wg.Wait()
}
