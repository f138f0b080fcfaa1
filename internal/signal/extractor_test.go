package signal

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/juror-match/internal/model"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func defaultExtractor(t *testing.T) *Extractor {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return NewExtractor(c)
}

func findSignal(e Extraction, id string) (model.ExtractedSignal, bool) {
	for _, s := range e.Signals {
		if s.SignalID == id {
			return s, true
		}
	}
	return model.ExtractedSignal{}, false
}

func TestExtract_NilAttributes(t *testing.T) {
	_, err := defaultExtractor(t).Extract(nil)
	require.Error(t, err)
	var ve *model.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestExtract_EmptyAttributes(t *testing.T) {
	out, err := defaultExtractor(t).Extract(&model.Attributes{})
	require.NoError(t, err)
	assert.Empty(t, out.Signals)
	assert.Empty(t, out.Contradicts)
}

func TestExtract_AgeBands(t *testing.T) {
	tests := []struct {
		age  int
		want string
	}{
		{17, ""},
		{18, "AGE_RANGE_18_30"},
		{30, "AGE_RANGE_18_30"},
		{31, "AGE_RANGE_31_45"},
		{45, "AGE_RANGE_31_45"},
		{46, "AGE_RANGE_46_60"},
		{60, "AGE_RANGE_46_60"},
		{61, "AGE_RANGE_61_PLUS"},
		{90, "AGE_RANGE_61_PLUS"},
	}
	e := defaultExtractor(t)
	for _, tt := range tests {
		out, err := e.Extract(&model.Attributes{Age: intPtr(tt.age)})
		require.NoError(t, err)
		if tt.want == "" {
			assert.Empty(t, out.Signals, "age %d", tt.age)
			continue
		}
		assert.Equal(t, []string{tt.want}, out.IDs(), "age %d", tt.age)
	}
}

func TestExtract_Occupation(t *testing.T) {
	tests := []struct {
		occupation string
		want       string
	}{
		{"Registered Nurse", "OCCUPATION_HEALTHCARE"},
		{"retired police officer", "OCCUPATION_LAW_ENFORCEMENT"},
		{"Paralegal", "OCCUPATION_LEGAL"},
		{"high school teacher", "OCCUPATION_EDUCATION"},
		{"Small business owner", "OCCUPATION_BUSINESS_OWNER"},
		{"Electrician", "OCCUPATION_TRADES"},
		{"CPA", "OCCUPATION_FINANCE"},
		{"Software Developer", "OCCUPATION_TECH"},
		{"US Army", "OCCUPATION_MILITARY"},
	}
	e := defaultExtractor(t)
	for _, tt := range tests {
		t.Run(tt.occupation, func(t *testing.T) {
			out, err := e.Extract(&model.Attributes{Occupation: tt.occupation})
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, out.IDs())
			sig := out.Signals[0]
			assert.Equal(t, model.FieldOccupation, sig.Source)
			assert.NotEmpty(t, sig.Evidence)
		})
	}
}

func TestExtract_OccupationEvidenceKeepsInputCase(t *testing.T) {
	out, err := defaultExtractor(t).Extract(&model.Attributes{Occupation: "Registered Nurse"})
	require.NoError(t, err)
	sig, ok := findSignal(out, "OCCUPATION_HEALTHCARE")
	require.True(t, ok)
	assert.Equal(t, "Nurs", sig.Evidence)
	assert.Equal(t, 1.0, sig.Intensity)
}

func TestExtract_DimensionPoles(t *testing.T) {
	tests := []struct {
		name        string
		value       float64
		want        string
		contradicts string
		intensity   float64
	}{
		{"at high threshold", 4.0, "AUTHORITY_DEFERENCE_HIGH", "AUTHORITY_DEFERENCE_LOW", 0.5},
		{"above high threshold", 4.5, "AUTHORITY_DEFERENCE_HIGH", "AUTHORITY_DEFERENCE_LOW", 0.75},
		{"top of scale", 5.0, "AUTHORITY_DEFERENCE_HIGH", "AUTHORITY_DEFERENCE_LOW", 1.0},
		{"at low threshold", 2.0, "AUTHORITY_DEFERENCE_LOW", "AUTHORITY_DEFERENCE_HIGH", 0.5},
		{"below low threshold", 1.0, "AUTHORITY_DEFERENCE_LOW", "AUTHORITY_DEFERENCE_HIGH", 0.75},
		{"bottom of scale", 0, "AUTHORITY_DEFERENCE_LOW", "AUTHORITY_DEFERENCE_HIGH", 1.0},
		{"neutral", 3.0, "", "", 0},
	}
	e := defaultExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Extract(&model.Attributes{Dimensions: map[string]float64{"authoritarianism": tt.value}})
			require.NoError(t, err)
			if tt.want == "" {
				assert.Empty(t, out.Signals)
				assert.Empty(t, out.Contradicts)
				return
			}
			require.Equal(t, []string{tt.want}, out.IDs())
			assert.Equal(t, []string{tt.contradicts}, out.Contradicts)
			assert.InDelta(t, tt.intensity, out.Signals[0].Intensity, 0.0001)
			assert.Equal(t, model.DirectionPositive, out.Signals[0].Direction)
		})
	}
}

func TestExtract_PatternMatch(t *testing.T) {
	e := defaultExtractor(t)

	out, err := e.Extract(&model.Attributes{
		Phrases:         []string{"Corporations only care about profits", "Show me the data"},
		LifeExperiences: []string{"Was rear-ended in a car accident in 2019", "Volunteers at the food bank"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ANALYTICAL_REASONING",
		"COMMUNITY_INVOLVEMENT",
		"CORPORATE_DISTRUST_LANGUAGE",
		"PERSONAL_INJURY_EXPERIENCE",
	}, out.IDs())
	assert.Equal(t, []string{"PERSONAL_RESPONSIBILITY_LANGUAGE"}, out.Contradicts)
}

func TestExtract_PatternMatchReadsOnlyItsFields(t *testing.T) {
	out, err := defaultExtractor(t).Extract(&model.Attributes{
		Phrases: []string{"my brother was injured at work"},
	})
	require.NoError(t, err)
	assert.False(t, out.Has("PERSONAL_INJURY_EXPERIENCE"))
}

func TestExtract_BooleanAndManual(t *testing.T) {
	e := defaultExtractor(t)

	out, err := e.Extract(&model.Attributes{
		HasChildren: boolPtr(true),
		Extra:       map[string]string{"prior_jury_service": "true", "leadership_potential": "false"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"HAS_CHILDREN", "PRIOR_JURY_SERVICE"}, out.IDs())

	out, err = e.Extract(&model.Attributes{
		HasChildren: boolPtr(false),
		Extra:       map[string]string{"prior_jury_service": "maybe"},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Signals)
}

func TestExtract_OpposingCategoricals(t *testing.T) {
	out, err := defaultExtractor(t).Extract(&model.Attributes{
		PoliticalAffiliation: "Republican",
		Religion:             "Catholic",
		Education:            "Master of Science",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"EDUCATION_GRADUATE", "POLITICAL_CONSERVATIVE", "RELIGIOUS_ACTIVE"}, out.IDs())
	assert.Equal(t, []string{"EDUCATION_HIGH_SCHOOL", "POLITICAL_LIBERAL", "RELIGION_NONE"}, out.Contradicts)
}

func TestExtract_Deterministic(t *testing.T) {
	attrs := &model.Attributes{
		Age:             intPtr(52),
		Occupation:      "retired police officer",
		Dimensions:      map[string]float64{"authoritarianism": 4.6, "empathy": 1.5, "corporate_trust": 4.1},
		Phrases:         []string{"rules are rules", "too many frivolous lawsuits"},
		LifeExperiences: []string{"coached little league"},
	}
	e := defaultExtractor(t)
	a, err := e.Extract(attrs)
	require.NoError(t, err)
	b, err := e.Extract(attrs)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	for i := 1; i < len(a.Signals); i++ {
		assert.Less(t, a.Signals[i-1].SignalID, a.Signals[i].SignalID)
	}
	for _, s := range a.Signals {
		assert.Equal(t, model.DirectionPositive, s.Direction)
	}
}

func TestExtract_FixtureCatalog(t *testing.T) {
	c, err := NewCatalog("fixture", []Rule{
		{
			Signal: model.Signal{SignalID: "CHILDLESS", ExtractionMethod: model.MethodFieldMapping, SourceField: model.FieldHasChildren, ValueType: model.ValueBoolean},
			Equals: boolPtr(false),
			Weight: 0.3,
		},
		{
			Signal: model.Signal{SignalID: "HOURS_HIGH", ExtractionMethod: model.MethodFieldMapping, SourceField: "weekly_hours", ValueType: model.ValueNumeric},
			Min:    f64(50),
			Weight: 0.4,
		},
	})
	require.NoError(t, err)

	out, err := NewExtractor(c).Extract(&model.Attributes{
		HasChildren: boolPtr(false),
		Extra:       map[string]string{"weekly_hours": "60"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CHILDLESS", "HOURS_HIGH"}, out.IDs())
}

func TestTruncateEvidence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "nurse", "nurse"},
		{"exact", strings.Repeat("a", maxEvidenceLen), strings.Repeat("a", maxEvidenceLen)},
		{"ascii", strings.Repeat("a", maxEvidenceLen+5), strings.Repeat("a", maxEvidenceLen)},
		{"rune straddles limit", strings.Repeat("a", maxEvidenceLen-1) + "é" + "b", strings.Repeat("a", maxEvidenceLen-1)},
		{"multibyte run", strings.Repeat("漢", 40), strings.Repeat("漢", maxEvidenceLen/3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateEvidence(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), maxEvidenceLen)
		})
	}
}
