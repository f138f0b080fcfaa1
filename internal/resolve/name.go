// Package resolve implements juror identity resolution: name parsing,
// phonetic encoding, string similarity and composite candidate scoring.
package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/juror-match/internal/model"
)

// namePrefixes are honorifics dropped from the head of a name.
var namePrefixes = map[string]bool{
	"MR": true, "MRS": true, "MS": true, "MISS": true, "MX": true,
	"DR": true, "PROF": true, "REV": true, "HON": true, "SIR": true,
}

// nameSuffixes are generational and professional suffixes taken from the tail.
var nameSuffixes = map[string]bool{
	"JR": true, "SR": true,
	"II": true, "III": true, "IV": true, "V": true,
	"ESQ": true, "MD": true, "PHD": true, "DDS": true,
}

var (
	disallowedRe = regexp.MustCompile(`[^A-Za-z\s\-'.,]`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// Parse confidences.
const (
	confidenceFull          = 100
	confidenceLongName      = 90
	confidenceAmbiguousList = 80
	confidenceSurnameOnly   = 40
	capFirstInitial         = 70
	capLastInitial          = 60
)

// ParseName parses a free-text name into its parts. Both "First [Middle] Last
// [Suffix]" and "Last, First [Middle] [Suffix]" are understood. Ambiguity is
// reported through Confidence; only empty input is an error.
func ParseName(raw string) (model.ParsedName, error) {
	cleaned := cleanName(raw)
	if strings.Trim(cleaned, " ,-'") == "" {
		return model.ParsedName{}, eris.Wrapf(model.ErrEmptyInput, "resolve: parse name %q", raw)
	}

	var p model.ParsedName
	if strings.Contains(cleaned, ",") {
		p = parseCommaFormat(cleaned)
	} else {
		p = parseNaturalFormat(tokenize(cleaned))
	}

	if len(p.FirstName) == 1 && p.Confidence > capFirstInitial {
		p.Confidence = capFirstInitial
	}
	if len(p.LastName) == 1 && p.Confidence > capLastInitial {
		p.Confidence = capLastInitial
	}

	p.FullName = joinNonEmpty(p.FirstName, p.MiddleName, p.LastName, p.Suffix)
	p.PhoneticFirst = Metaphone(p.FirstName)
	p.PhoneticLast = Metaphone(p.LastName)
	return p, nil
}

// NormalizeParsed brings a caller-supplied ParsedName into the form ParseName
// produces: parts cleaned and uppercased, FullName and phonetic codes derived
// from the parts. Confidence is kept as given.
func NormalizeParsed(p model.ParsedName) (model.ParsedName, error) {
	p.FirstName = cleanPart(p.FirstName)
	p.MiddleName = cleanPart(p.MiddleName)
	p.LastName = cleanPart(p.LastName)
	p.Suffix = cleanPart(p.Suffix)
	if p.FirstName == "" && p.LastName == "" {
		return model.ParsedName{}, eris.Wrap(model.ErrEmptyInput, "resolve: parsed name is empty")
	}

	p.FullName = joinNonEmpty(p.FirstName, p.MiddleName, p.LastName, p.Suffix)
	p.PhoneticFirst = Metaphone(p.FirstName)
	p.PhoneticLast = Metaphone(p.LastName)
	return p, nil
}

// cleanPart normalizes a single name part; commas never survive.
func cleanPart(s string) string {
	return strings.Join(tokenize(strings.ReplaceAll(cleanName(s), ",", " ")), " ")
}

// cleanName folds accents, strips disallowed characters, turns periods into
// spaces, uppercases and collapses whitespace.
func cleanName(raw string) string {
	s := foldAccents(raw)
	s = disallowedRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ToUpper(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// tokenize splits on whitespace and drops tokens made only of punctuation.
func tokenize(s string) []string {
	var tokens []string
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, "-'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func parseNaturalFormat(tokens []string) model.ParsedName {
	tokens = stripPrefixes(tokens)
	tokens, suffix := extractSuffix(tokens)

	p := model.ParsedName{Suffix: suffix}
	switch len(tokens) {
	case 0:
		// Only a lone suffix-like token; keep it as the surname.
		p.LastName = suffix
		p.Suffix = ""
		p.Confidence = confidenceSurnameOnly
	case 1:
		p.LastName = tokens[0]
		p.Confidence = confidenceSurnameOnly
	case 2:
		p.FirstName, p.LastName = tokens[0], tokens[1]
		p.Confidence = confidenceFull
	case 3:
		p.FirstName, p.MiddleName, p.LastName = tokens[0], tokens[1], tokens[2]
		p.Confidence = confidenceFull
	default:
		p.FirstName = tokens[0]
		p.MiddleName = strings.Join(tokens[1:len(tokens)-1], " ")
		p.LastName = tokens[len(tokens)-1]
		p.Confidence = confidenceLongName
	}
	return p
}

func parseCommaFormat(cleaned string) model.ParsedName {
	parts := strings.Split(cleaned, ",")
	surname := tokenize(parts[0])
	given := tokenize(strings.Join(parts[1:], " "))

	// "John Smith, Jr." is natural order with a comma before the suffix.
	if len(given) > 0 && allSuffixes(given) {
		return parseNaturalFormat(append(surname, given...))
	}

	surname = stripPrefixes(surname)
	surname, lastSuffix := extractSuffix(surname)
	given = stripPrefixes(given)
	given, givenSuffix := extractSuffix(given)

	p := model.ParsedName{
		LastName: strings.Join(surname, " "),
		Suffix:   joinNonEmpty(lastSuffix, givenSuffix),
	}
	if p.LastName == "" {
		// ", John" carries no surname; treat the given part as a natural name.
		q := parseNaturalFormat(given)
		if q.Suffix == "" {
			q.Suffix = p.Suffix
		}
		return q
	}

	switch len(given) {
	case 0:
		p.Confidence = confidenceSurnameOnly
	case 1:
		p.FirstName = given[0]
		p.Confidence = confidenceFull
	case 2:
		p.FirstName, p.MiddleName = given[0], given[1]
		p.Confidence = confidenceFull
	default:
		p.FirstName = given[0]
		p.MiddleName = strings.Join(given[1:], " ")
		p.Confidence = confidenceLongName
	}

	if len(parts) > 2 && p.Confidence > confidenceAmbiguousList {
		p.Confidence = confidenceAmbiguousList
	}
	return p
}

// stripPrefixes drops leading honorifics but never empties the token list.
func stripPrefixes(tokens []string) []string {
	for len(tokens) > 1 && namePrefixes[tokens[0]] {
		tokens = tokens[1:]
	}
	return tokens
}

// extractSuffix removes trailing suffix tokens, keeping at least one name token.
func extractSuffix(tokens []string) ([]string, string) {
	var suffixes []string
	for len(tokens) > 1 && nameSuffixes[tokens[len(tokens)-1]] {
		suffixes = append([]string{tokens[len(tokens)-1]}, suffixes...)
		tokens = tokens[:len(tokens)-1]
	}
	return tokens, strings.Join(suffixes, " ")
}

func allSuffixes(tokens []string) bool {
	for _, t := range tokens {
		if !nameSuffixes[t] {
			return false
		}
	}
	return true
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
