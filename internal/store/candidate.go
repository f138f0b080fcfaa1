package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/juror-match/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

// scanCandidate reads candidate_id, full_name, source_type, demographics,
// sources, score_factors and status. Scan errors are returned unwrapped so
// callers can test for their driver's no-rows error.
func scanCandidate(row scannable) (*model.IdentityCandidate, error) {
	var c model.IdentityCandidate
	var demo, sources, factors []byte
	var status string

	if err := row.Scan(&c.CandidateID, &c.FullName, &c.SourceType, &demo, &sources, &factors, &status); err != nil {
		return nil, err
	}
	c.Status = model.CandidateStatus(status)

	if err := json.Unmarshal(demo, &c.Demographics); err != nil {
		return nil, eris.Wrap(err, "unmarshal demographics")
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &c.Sources); err != nil {
			return nil, eris.Wrap(err, "unmarshal sources")
		}
		if len(c.Sources) == 0 {
			c.Sources = nil
		}
	}
	if err := json.Unmarshal(factors, &c.ScoreFactors); err != nil {
		return nil, eris.Wrap(err, "unmarshal score factors")
	}
	return &c, nil
}

func marshalCandidate(c model.IdentityCandidate) (demo, sources, factors []byte, err error) {
	if demo, err = json.Marshal(c.Demographics); err != nil {
		return nil, nil, nil, err
	}
	src := c.Sources
	if src == nil {
		src = []model.SourceRecord{}
	}
	if sources, err = json.Marshal(src); err != nil {
		return nil, nil, nil, err
	}
	if factors, err = json.Marshal(c.ScoreFactors); err != nil {
		return nil, nil, nil, err
	}
	return demo, sources, factors, nil
}
