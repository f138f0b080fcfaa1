package resolve

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/config"
	"github.com/sells-group/juror-match/internal/model"
)

// Name band allocation. The three parts sum past the 40-point band; middle
// name credit is trimmed so the band never exceeds its maximum.
const (
	lastExactPoints     = 20
	lastPhoneticPoints  = 15
	firstExactPoints    = 15
	firstPhoneticPoints = 11
	firstInitialPoints  = 6
	middleExactPoints   = 10
	middleInitialPoints = 5
)

// Age band allocation.
var ageSteps = []struct {
	within int
	points int
	reason string
}{
	{0, 20, "exact age match"},
	{2, 15, "within 2 years"},
	{5, 10, "within 5 years"},
	{10, 5, "within 10 years"},
}

// Location, occupation and corroboration allocation.
const (
	cityStatePoints     = 20
	zipPoints           = 18
	cityOnlyPoints      = 15
	similarCityPoints   = 15
	stateOnlyPoints     = 8
	occupationExact     = 10
	occupationPartial   = 6
	occupationSimilar   = 5
	extraSourcePoints   = 4
	phoneFragmentPoints = 3
	emailFragmentPoints = 3
)

// DefaultConfig returns a config.ResolveConfig with sensible defaults.
func DefaultConfig() config.ResolveConfig {
	return config.ResolveConfig{
		FuzzyNameThreshold:      0.7,
		FuzzyNameFactor:         0.75,
		CitySimilarityThreshold: 0.92,
		OccupationSimilarity:    0.85,
	}
}

// Scorer ranks identity candidates against a target juror. It holds no
// mutable state and is safe for concurrent use.
type Scorer struct {
	cfg config.ResolveConfig
}

// NewScorer creates a Scorer with the given config.
func NewScorer(cfg config.ResolveConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the itemized score of one candidate for the target.
// The target name must be parseable; an unparseable candidate name simply
// earns no name points.
func (s *Scorer) Score(target model.Target, candidate model.CandidateRecord) (model.ScoreFactors, error) {
	tn, err := targetName(target)
	if err != nil {
		return model.ScoreFactors{}, err
	}
	return s.score(tn, target.Demographics, candidate), nil
}

// ScoreCandidates scores every candidate and ranks them by TotalScore
// descending, breaking ties by candidate ID. Candidates without an ID get a
// generated one.
func (s *Scorer) ScoreCandidates(target model.Target, candidates []model.CandidateRecord) ([]model.IdentityCandidate, error) {
	tn, err := targetName(target)
	if err != nil {
		return nil, err
	}

	results := make([]model.IdentityCandidate, 0, len(candidates))
	for _, c := range candidates {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		factors := s.score(tn, target.Demographics, c)
		if s.cfg.MinScore > 0 && factors.TotalScore < s.cfg.MinScore {
			continue
		}
		results = append(results, model.IdentityCandidate{
			CandidateID:  id,
			FullName:     c.FullName,
			Demographics: c.Demographics,
			SourceType:   c.SourceType,
			Sources:      c.Sources,
			ScoreFactors: factors,
			Status:       model.CandidatePending,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].ScoreFactors.TotalScore != results[j].ScoreFactors.TotalScore {
			return results[i].ScoreFactors.TotalScore > results[j].ScoreFactors.TotalScore
		}
		return results[i].CandidateID < results[j].CandidateID
	})

	if s.cfg.MaxCandidates > 0 && len(results) > s.cfg.MaxCandidates {
		results = results[:s.cfg.MaxCandidates]
	}

	zap.L().Debug("resolve: scored candidates",
		zap.String("target", tn.FullName),
		zap.Int("candidates", len(candidates)),
		zap.Int("ranked", len(results)),
	)
	return results, nil
}

// Rescore recomputes the score of a pending candidate in place. Confirmed and
// rejected candidates are terminal and cannot be rescored.
func (s *Scorer) Rescore(target model.Target, c *model.IdentityCandidate) error {
	if !c.CanRescore() {
		return eris.Wrapf(model.ErrTerminalState, "resolve: rescore candidate %s", c.CandidateID)
	}
	factors, err := s.Score(target, model.CandidateRecord{
		ID:           c.CandidateID,
		FullName:     c.FullName,
		Demographics: c.Demographics,
		SourceType:   c.SourceType,
		Sources:      c.Sources,
	})
	if err != nil {
		return err
	}
	c.ScoreFactors = factors
	return nil
}

func targetName(target model.Target) (model.ParsedName, error) {
	if target.Parsed != nil {
		return NormalizeParsed(*target.Parsed)
	}
	return ParseName(target.Name)
}

// score assembles the five bands. Reasons are appended in band order.
func (s *Scorer) score(tn model.ParsedName, td model.Demographics, c model.CandidateRecord) model.ScoreFactors {
	var f model.ScoreFactors
	add := func(band string, points int, reason string) {
		f.Reasons = append(f.Reasons, model.ScoreReason{Band: band, Points: points, Reason: reason})
	}

	cn, err := ParseName(c.FullName)
	if err != nil {
		add(model.BandName, 0, "candidate name unparseable")
	} else {
		f.NameScore = s.scoreName(tn, cn, add)
	}
	f.AgeScore = scoreAge(td.Age, c.Demographics.Age, add)
	f.LocationScore = s.scoreLocation(td, c.Demographics, add)
	f.OccupationScore = s.scoreOccupation(td.Occupation, c.Demographics.Occupation, add)
	f.CorroborationScore = scoreCorroboration(td, c, add)

	f.TotalScore = clampInt(f.BandSum(), 0, model.MaxTotalScore)
	return f
}

type reasonFunc func(band string, points int, reason string)

func (s *Scorer) scoreName(tn, cn model.ParsedName, add reasonFunc) int {
	remaining := model.MaxNameScore

	last, lastReason := s.compareNamePart(tn.LastName, cn.LastName, lastExactPoints, lastPhoneticPoints, "last name")
	last = min(last, remaining)
	remaining -= last
	if lastReason != "" {
		add(model.BandName, last, lastReason)
	}

	first, firstReason := s.compareFirstName(tn.FirstName, cn.FirstName)
	first = min(first, remaining)
	remaining -= first
	if firstReason != "" {
		add(model.BandName, first, firstReason)
	}

	middle, middleReason := compareMiddleName(tn.MiddleName, cn.MiddleName)
	middle = min(middle, remaining)
	if middleReason != "" {
		add(model.BandName, middle, middleReason)
	}

	return last + first + middle
}

// compareNamePart runs the exact, phonetic, edit-distance cascade.
func (s *Scorer) compareNamePart(a, b string, exact, phonetic int, label string) (int, string) {
	if a == "" || b == "" {
		return 0, ""
	}
	if a == b {
		return exact, label + " exact match"
	}
	if MetaphoneMatch(a, b) {
		return phonetic, label + " phonetic match"
	}
	if sim := Similarity(a, b); sim > s.cfg.FuzzyNameThreshold {
		pts := int(math.Round(float64(exact) * sim * s.cfg.FuzzyNameFactor))
		return pts, fmt.Sprintf("%s similar (%.2f)", label, sim)
	}
	return 0, label + " mismatch"
}

func (s *Scorer) compareFirstName(a, b string) (int, string) {
	if a == "" || b == "" {
		return 0, ""
	}
	if len(a) == 1 || len(b) == 1 {
		if a[0] == b[0] {
			if a == b {
				return firstInitialPoints, "first initial match"
			}
			return firstInitialPoints, "first initial matches name"
		}
		return 0, "first initial mismatch"
	}
	return s.compareNamePart(a, b, firstExactPoints, firstPhoneticPoints, "first name")
}

func compareMiddleName(a, b string) (int, string) {
	if a == "" || b == "" {
		return 0, ""
	}
	if a == b {
		if len(a) == 1 {
			return middleInitialPoints, "middle initial match"
		}
		return middleExactPoints, "middle name exact match"
	}
	if (len(a) == 1 || len(b) == 1) && a[0] == b[0] {
		return middleInitialPoints, "middle initial match"
	}
	return 0, "middle name mismatch"
}

func scoreAge(target, candidate *int, add reasonFunc) int {
	if target == nil || candidate == nil {
		add(model.BandAge, 0, "age unavailable")
		return 0
	}
	diff := *target - *candidate
	if diff < 0 {
		diff = -diff
	}
	for _, step := range ageSteps {
		if diff <= step.within {
			add(model.BandAge, step.points, step.reason)
			return step.points
		}
	}
	add(model.BandAge, 0, fmt.Sprintf("age differs by %d years", diff))
	return 0
}

func (s *Scorer) scoreLocation(t, c model.Demographics, add reasonFunc) int {
	tCity, cCity := normalizePlace(t.City), normalizePlace(c.City)
	tState, cState := normalizeState(t.State), normalizeState(c.State)
	tZip, cZip := zip5(t.ZIP), zip5(c.ZIP)

	if tCity == "" && cCity == "" && tState == "" && tZip == "" {
		add(model.BandLocation, 0, "location unavailable")
		return 0
	}

	stateKnown := tState != "" && cState != ""
	stateMatch := stateKnown && tState == cState

	points, reason := 0, ""
	switch {
	case tCity != "" && tCity == cCity && stateMatch:
		points, reason = cityStatePoints, "city and state match"
	case tZip != "" && tZip == cZip:
		points, reason = zipPoints, "zip code match"
	case tCity != "" && tCity == cCity && !stateKnown:
		points, reason = cityOnlyPoints, "city match"
	case stateMatch && tCity != "" && cCity != "" && JaroWinkler(tCity, cCity) >= s.cfg.CitySimilarityThreshold:
		points, reason = similarCityPoints, "similar city, state match"
	case stateMatch:
		points, reason = stateOnlyPoints, "state match"
	case cCity == "" && cState == "" && cZip == "":
		reason = "location unavailable"
	default:
		reason = "location mismatch"
	}
	add(model.BandLocation, points, reason)
	return points
}

func (s *Scorer) scoreOccupation(target, candidate string, add reasonFunc) int {
	a, b := normalizeOccupation(target), normalizeOccupation(candidate)
	if a == "" || b == "" {
		add(model.BandOccupation, 0, "occupation unavailable")
		return 0
	}
	switch {
	case a == b:
		add(model.BandOccupation, occupationExact, "exact match")
		return occupationExact
	case strings.Contains(a, b) || strings.Contains(b, a) || sharesToken(a, b):
		add(model.BandOccupation, occupationPartial, "partial match")
		return occupationPartial
	case JaroWinkler(a, b) >= s.cfg.OccupationSimilarity:
		add(model.BandOccupation, occupationSimilar, "similar occupation")
		return occupationSimilar
	}
	add(model.BandOccupation, 0, "occupation mismatch")
	return 0
}

// scoreCorroboration rewards independent sources and contact fragments that
// agree with the target.
func scoreCorroboration(t model.Demographics, c model.CandidateRecord, add reasonFunc) int {
	remaining := model.MaxCorroborationScore
	total := 0
	award := func(points int, reason string) {
		points = min(points, remaining)
		remaining -= points
		total += points
		add(model.BandCorroboration, points, reason)
	}

	sourceTypes := map[string]bool{}
	if st := strings.ToLower(strings.TrimSpace(c.SourceType)); st != "" {
		sourceTypes[st] = true
	}
	phones := []string{c.Demographics.Phone}
	emails := []string{c.Demographics.Email}
	for _, src := range c.Sources {
		if st := strings.ToLower(strings.TrimSpace(src.SourceType)); st != "" {
			sourceTypes[st] = true
		}
		phones = append(phones, src.Demographics.Phone)
		emails = append(emails, src.Demographics.Email)
	}

	if extra := len(sourceTypes) - 1; extra > 0 {
		award(extra*extraSourcePoints, fmt.Sprintf("corroborated by %d sources", len(sourceTypes)))
	}
	if phoneFragmentMatches(t.Phone, phones) {
		award(phoneFragmentPoints, "phone fragment match")
	}
	if emailFragmentMatches(t.Email, emails) {
		award(emailFragmentPoints, "email fragment match")
	}
	if total == 0 {
		add(model.BandCorroboration, 0, "no corroboration")
	}
	return total
}

func phoneFragmentMatches(target string, candidates []string) bool {
	td := digits(target)
	if len(td) < 4 {
		return false
	}
	for _, c := range candidates {
		cd := digits(c)
		if len(cd) < 4 {
			continue
		}
		if cd[len(cd)-4:] == td[len(td)-4:] {
			return true
		}
	}
	return false
}

func emailFragmentMatches(target string, candidates []string) bool {
	tl := emailLocal(target)
	if len(tl) < 3 {
		return false
	}
	for _, c := range candidates {
		cl := emailLocal(c)
		if len(cl) < 3 {
			continue
		}
		if tl == cl || strings.Contains(cl, tl) || strings.Contains(tl, cl) {
			return true
		}
	}
	return false
}

func emailLocal(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if at := strings.IndexByte(email, '@'); at >= 0 {
		email = email[:at]
	}
	return email
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func zip5(z string) string {
	d := digits(z)
	if len(d) < 5 {
		return ""
	}
	return d[:5]
}

func normalizePlace(s string) string {
	s = strings.ToUpper(foldAccents(s))
	s = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || r == ' ' {
			return r
		}
		if r == '-' {
			return ' '
		}
		return -1
	}, s)
	fields := strings.Fields(s)
	for i, f := range fields {
		switch f {
		case "ST":
			fields[i] = "SAINT"
		case "FT":
			fields[i] = "FORT"
		case "MT":
			fields[i] = "MOUNT"
		}
	}
	return strings.Join(fields, " ")
}

func normalizeOccupation(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.Trim(s, " .,")
}

// sharesToken reports whether two occupations share a significant word.
func sharesToken(a, b string) bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(a) {
		if len(w) >= 4 {
			words[w] = true
		}
	}
	for _, w := range strings.Fields(b) {
		if words[w] {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
