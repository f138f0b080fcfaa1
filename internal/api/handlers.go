package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/engine"
	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/weights"
)

// maxBatchSubjects caps the size of a classify batch.
const maxBatchSubjects = 1000

type parseNameRequest struct {
	Name string `json:"name"`
}

type scoreRequest struct {
	JurorID    string                  `json:"juror_id,omitempty"`
	Target     model.Target            `json:"target"`
	Candidates []model.CandidateRecord `json:"candidates"`
}

type candidatesResponse struct {
	JurorID    string                    `json:"juror_id,omitempty"`
	Candidates []model.IdentityCandidate `json:"candidates"`
}

type classifyRequest struct {
	Attributes *model.Attributes `json:"attributes"`
}

type classifyBatchRequest struct {
	Subjects []engine.Subject `json:"subjects"`
}

type classifyBatchResponse struct {
	Results []engine.BatchResult `json:"results"`
}

type weightsResponse struct {
	weights.Meta
	Personas       int    `json:"personas"`
	Weights        int    `json:"weights"`
	CurrentCatalog string `json:"current_catalog_version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"weights_version": s.engine.Weights().Version(),
	})
}

func (s *Server) handleParseName(w http.ResponseWriter, r *http.Request) {
	var req parseNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	parsed, err := s.engine.ParseName(req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, parsed)
}

func (s *Server) handleScoreCandidates(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ranked, err := s.engine.ScoreIdentityCandidates(req.Target, req.Candidates)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.JurorID != "" && s.store != nil {
		ctx := r.Context()
		if err := s.store.SaveCandidates(ctx, req.JurorID, ranked); err != nil {
			writeError(w, r, err)
			return
		}
		// Confirmed and rejected candidates keep their stored record.
		stored, err := s.store.ListCandidates(ctx, req.JurorID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ranked = mergeTerminal(ranked, stored)
	}

	writeJSON(w, http.StatusOK, candidatesResponse{JurorID: req.JurorID, Candidates: ranked})
}

// mergeTerminal replaces scored candidates that are terminal in stored and
// restores TotalScore order.
func mergeTerminal(scored, stored []model.IdentityCandidate) []model.IdentityCandidate {
	terminal := make(map[string]model.IdentityCandidate)
	for _, c := range stored {
		if !c.CanRescore() {
			terminal[c.CandidateID] = c
		}
	}
	if len(terminal) == 0 {
		return scored
	}
	out := make([]model.IdentityCandidate, len(scored))
	for i, c := range scored {
		if t, ok := terminal[c.CandidateID]; ok {
			c = t
		}
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScoreFactors.TotalScore != out[j].ScoreFactors.TotalScore {
			return out[i].ScoreFactors.TotalScore > out[j].ScoreFactors.TotalScore
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errStoreDisabled)
		return
	}
	jurorID := chi.URLParam(r, "jurorID")
	list, err := s.store.ListCandidates(r.Context(), jurorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidatesResponse{JurorID: jurorID, Candidates: list})
}

func (s *Server) handleConfirmCandidate(w http.ResponseWriter, r *http.Request) {
	s.updateCandidateStatus(w, r, model.CandidateConfirmed)
}

func (s *Server) handleRejectCandidate(w http.ResponseWriter, r *http.Request) {
	s.updateCandidateStatus(w, r, model.CandidateRejected)
}

func (s *Server) updateCandidateStatus(w http.ResponseWriter, r *http.Request, status model.CandidateStatus) {
	if s.store == nil {
		writeError(w, r, errStoreDisabled)
		return
	}
	id := chi.URLParam(r, "candidateID")
	c, err := s.store.UpdateCandidateStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zap.L().Info("api: candidate status changed",
		zap.String("candidate_id", id),
		zap.String("status", string(c.Status)),
	)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.engine.Classify(req.Attributes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req classifyBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Subjects) > maxBatchSubjects {
		writeError(w, r, model.NewValidationError("subjects", fmt.Sprintf("at most %d subjects per batch", maxBatchSubjects)))
		return
	}
	results, err := s.engine.ClassifyBatch(r.Context(), req.Subjects)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyBatchResponse{Results: results})
}

func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.weightsSummary(s.engine.Weights()))
}

// handleReloadWeights publishes the latest stored table, or the one named by
// the id query parameter.
func (s *Server) handleReloadWeights(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errStoreDisabled)
		return
	}

	var (
		t   *weights.Table
		err error
	)
	if id := r.URL.Query().Get("id"); id != "" {
		t, err = s.store.GetWeights(r.Context(), id)
	} else {
		t, err = s.store.LatestWeights(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.engine.ReloadWeights(t); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.weightsSummary(t))
}

func (s *Server) weightsSummary(t *weights.Table) weightsResponse {
	return weightsResponse{
		Meta:           t.Meta(),
		Personas:       len(t.Personas()),
		Weights:        t.Len(),
		CurrentCatalog: s.engine.Catalog().Version(),
	}
}
