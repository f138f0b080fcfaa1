package model

import "github.com/rotisserie/eris"

// Demographics holds the partial facts known about a person.
type Demographics struct {
	Age        *int   `json:"age,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	ZIP        string `json:"zip,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Target is the juror being resolved. Name is the raw name; Parsed, when set,
// is used instead of re-parsing Name.
type Target struct {
	Name         string       `json:"name"`
	Parsed       *ParsedName  `json:"parsed,omitempty"`
	Demographics Demographics `json:"demographics"`
}

// SourceRecord is one public-record hit that supports a candidate.
type SourceRecord struct {
	SourceType   string       `json:"source_type"`
	RecordID     string       `json:"record_id,omitempty"`
	Demographics Demographics `json:"demographics"`
}

// CandidateRecord is a candidate identity produced by an external
// public-records search.
type CandidateRecord struct {
	ID           string         `json:"id"`
	FullName     string         `json:"full_name"`
	Demographics Demographics   `json:"demographics"`
	SourceType   string         `json:"source_type"`
	Sources      []SourceRecord `json:"sources,omitempty"`
}

// Score bands.
const (
	BandName          = "name"
	BandAge           = "age"
	BandLocation      = "location"
	BandOccupation    = "occupation"
	BandCorroboration = "corroboration"
)

// Band maxima. TotalScore is the sum of the five bands and never exceeds 100.
const (
	MaxNameScore          = 40
	MaxAgeScore           = 20
	MaxLocationScore      = 20
	MaxOccupationScore    = 10
	MaxCorroborationScore = 10
	MaxTotalScore         = 100
)

// ScoreReason pairs awarded points with a short machine-generated explanation.
type ScoreReason struct {
	Band   string `json:"band"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// ScoreFactors is the itemized score of one candidate.
type ScoreFactors struct {
	NameScore          int           `json:"name_score"`
	AgeScore           int           `json:"age_score"`
	LocationScore      int           `json:"location_score"`
	OccupationScore    int           `json:"occupation_score"`
	CorroborationScore int           `json:"corroboration_score"`
	TotalScore         int           `json:"total_score"`
	Reasons            []ScoreReason `json:"reasons"`
}

// BandSum returns the raw sum of the five bands.
func (f ScoreFactors) BandSum() int {
	return f.NameScore + f.AgeScore + f.LocationScore + f.OccupationScore + f.CorroborationScore
}

// CandidateStatus is the review state of an identity candidate.
type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateConfirmed CandidateStatus = "confirmed"
	CandidateRejected  CandidateStatus = "rejected"
)

// IdentityCandidate is a scored candidate. Confirmed and rejected are terminal.
type IdentityCandidate struct {
	CandidateID  string          `json:"candidate_id"`
	FullName     string          `json:"full_name"`
	Demographics Demographics    `json:"demographics"`
	SourceType   string          `json:"source_type"`
	Sources      []SourceRecord  `json:"sources,omitempty"`
	ScoreFactors ScoreFactors    `json:"score_factors"`
	Status       CandidateStatus `json:"status"`
}

// IsConfirmed reports whether a user confirmed the candidate.
func (c *IdentityCandidate) IsConfirmed() bool { return c.Status == CandidateConfirmed }

// IsRejected reports whether a user rejected the candidate.
func (c *IdentityCandidate) IsRejected() bool { return c.Status == CandidateRejected }

// CanRescore reports whether the candidate may still be scored.
func (c *IdentityCandidate) CanRescore() bool {
	return !c.IsConfirmed() && !c.IsRejected()
}

// Confirm marks the candidate as the juror's identity.
func (c *IdentityCandidate) Confirm() error {
	return c.transition(CandidateConfirmed)
}

// Reject marks the candidate as not the juror.
func (c *IdentityCandidate) Reject() error {
	return c.transition(CandidateRejected)
}

func (c *IdentityCandidate) transition(to CandidateStatus) error {
	if !c.CanRescore() {
		return eris.Wrapf(ErrTerminalState, "candidate %s is %s", c.CandidateID, c.Status)
	}
	c.Status = to
	return nil
}
