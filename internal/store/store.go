// Package store persists weight table snapshots and scored identity
// candidates. SQLite is the local default; Postgres backs shared deployments.
package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/juror-match/internal/config"
	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/resilience"
	"github.com/sells-group/juror-match/internal/weights"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the engine.
type Store interface {
	// Weight tables
	SaveWeights(ctx context.Context, t *weights.Table) error
	GetWeights(ctx context.Context, id string) (*weights.Table, error)
	LatestWeights(ctx context.Context) (*weights.Table, error)
	ListWeights(ctx context.Context, limit int) ([]weights.Meta, error)

	// Identity candidates
	SaveCandidates(ctx context.Context, jurorID string, candidates []model.IdentityCandidate) error
	GetCandidate(ctx context.Context, candidateID string) (*model.IdentityCandidate, error)
	ListCandidates(ctx context.Context, jurorID string) ([]model.IdentityCandidate, error)
	UpdateCandidateStatus(ctx context.Context, candidateID string, status model.CandidateStatus) (*model.IdentityCandidate, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "juror-match.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.ConnectAttempts
		retry.OnRetry = resilience.RetryLogger("store: connect postgres")
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (Store, error) {
			pg, err := NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
			if err != nil {
				return nil, err
			}
			return pg, nil
		})
	default:
		return nil, eris.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}

// applyStatus moves c to status, refusing to leave a terminal state.
func applyStatus(c *model.IdentityCandidate, status model.CandidateStatus) error {
	switch status {
	case model.CandidateConfirmed:
		return c.Confirm()
	case model.CandidateRejected:
		return c.Reject()
	default:
		return model.NewValidationError("status", fmt.Sprintf("cannot set candidate status to %q", status))
	}
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func validateTable(t *weights.Table) error {
	if t == nil || t.ID() == "" {
		return model.NewValidationError("weights.id", "required")
	}
	return nil
}

func validateCandidates(jurorID string, candidates []model.IdentityCandidate) error {
	if jurorID == "" {
		return model.NewValidationError("juror_id", "required")
	}
	for _, c := range candidates {
		if c.CandidateID == "" {
			return model.NewValidationError("candidate_id", "required")
		}
	}
	return nil
}

func candidateStatus(c model.IdentityCandidate) model.CandidateStatus {
	if c.Status == "" {
		return model.CandidatePending
	}
	return c.Status
}
