package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/juror-match/internal/db"
	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/weights"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_weight_table":    `SELECT id, version, catalog_version, personas, built_at FROM weight_tables WHERE id = $1`,
	"latest_weight_table": `SELECT id, version, catalog_version, personas, built_at FROM weight_tables ORDER BY built_at DESC, id DESC LIMIT 1`,
	"get_signal_weights":  `SELECT signal_id, persona_id, direction, weight FROM signal_weights WHERE table_id = $1`,
	"get_candidate":       `SELECT candidate_id, full_name, source_type, demographics, sources, score_factors, status FROM identity_candidates WHERE candidate_id = $1`,
}

var weightColumns = []string{"table_id", "signal_id", "persona_id", "direction", "weight"}

var candidateColumns = []string{
	"candidate_id", "juror_id", "full_name", "source_type", "demographics", "sources",
	"score_factors", "total_score", "status", "created_at", "updated_at",
}

// Rescoring a pending candidate refreshes everything but its status and
// creation time. Terminal candidates are left untouched.
var candidateUpdateColumns = []string{
	"juror_id", "full_name", "source_type", "demographics", "sources",
	"score_factors", "total_score", "updated_at",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS weight_tables (
	id              TEXT PRIMARY KEY,
	version         TEXT NOT NULL,
	catalog_version TEXT NOT NULL,
	personas        JSONB NOT NULL,
	built_at        TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_weight_tables_built_at ON weight_tables(built_at DESC);

CREATE TABLE IF NOT EXISTS signal_weights (
	table_id   TEXT NOT NULL REFERENCES weight_tables(id) ON DELETE CASCADE,
	signal_id  TEXT NOT NULL,
	persona_id TEXT NOT NULL,
	direction  TEXT NOT NULL CHECK (direction IN ('POSITIVE', 'NEGATIVE')),
	weight     DOUBLE PRECISION NOT NULL CHECK (weight > 0),
	PRIMARY KEY (table_id, signal_id, persona_id, direction)
);

CREATE TABLE IF NOT EXISTS identity_candidates (
	candidate_id  TEXT PRIMARY KEY,
	juror_id      TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	source_type   TEXT NOT NULL DEFAULT '',
	demographics  JSONB NOT NULL,
	sources       JSONB NOT NULL DEFAULT '[]',
	score_factors JSONB NOT NULL,
	total_score   INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_identity_candidates_juror ON identity_candidates(juror_id, total_score DESC);
CREATE INDEX IF NOT EXISTS idx_identity_candidates_status ON identity_candidates(status);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveWeights(ctx context.Context, t *weights.Table) error {
	if err := validateTable(t); err != nil {
		return err
	}
	meta := t.Meta()

	personasJSON, err := json.Marshal(t.Personas())
	if err != nil {
		return eris.Wrap(err, "postgres: marshal personas")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save weights")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO weight_tables (id, version, catalog_version, personas, built_at) VALUES ($1, $2, $3, $4, $5)`,
		meta.ID, meta.Version, meta.CatalogVersion, personasJSON, meta.BuiltAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert weight table %s", meta.ID)
	}

	rows := make([][]any, 0, t.Len())
	for _, w := range t.Weights() {
		rows = append(rows, []any{meta.ID, w.SignalID, w.PersonaID, string(w.Direction), w.Weight})
	}
	if _, err := db.CopyFrom(ctx, tx, "signal_weights", weightColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy weights for %s", meta.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save weights")
	}
	return nil
}

func (s *PostgresStore) GetWeights(ctx context.Context, id string) (*weights.Table, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, version, catalog_version, personas, built_at FROM weight_tables WHERE id = $1`, id)
	return s.loadWeights(ctx, row, id)
}

func (s *PostgresStore) LatestWeights(ctx context.Context) (*weights.Table, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, version, catalog_version, personas, built_at FROM weight_tables ORDER BY built_at DESC, id DESC LIMIT 1`)
	return s.loadWeights(ctx, row, "latest")
}

func (s *PostgresStore) loadWeights(ctx context.Context, row pgx.Row, ref string) (*weights.Table, error) {
	var snap weights.Snapshot
	var personasJSON []byte
	err := row.Scan(&snap.ID, &snap.Version, &snap.CatalogVersion, &personasJSON, &snap.BuiltAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("weight table", ref)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get weight table %s", ref)
	}
	if err := json.Unmarshal(personasJSON, &snap.Personas); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal personas")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT signal_id, persona_id, direction, weight FROM signal_weights WHERE table_id = $1`, snap.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query weights for %s", snap.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var w model.SignalPersonaWeight
		var dir string
		if err := rows.Scan(&w.SignalID, &w.PersonaID, &dir, &w.Weight); err != nil {
			return nil, eris.Wrap(err, "postgres: scan weight")
		}
		w.Direction = model.Direction(dir)
		snap.Weights = append(snap.Weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate weights")
	}

	return weights.FromSnapshot(snap)
}

func (s *PostgresStore) ListWeights(ctx context.Context, limit int) ([]weights.Meta, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, version, catalog_version, built_at FROM weight_tables ORDER BY built_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list weight tables")
	}
	defer rows.Close()

	var metas []weights.Meta
	for rows.Next() {
		var m weights.Meta
		if err := rows.Scan(&m.ID, &m.Version, &m.CatalogVersion, &m.BuiltAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan weight table")
		}
		metas = append(metas, m)
	}
	return metas, eris.Wrap(rows.Err(), "postgres: iterate weight tables")
}

func (s *PostgresStore) SaveCandidates(ctx context.Context, jurorID string, candidates []model.IdentityCandidate) error {
	if err := validateCandidates(jurorID, candidates); err != nil {
		return err
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(candidates))
	for _, c := range candidates {
		demo, sources, factors, err := marshalCandidate(c)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal candidate %s", c.CandidateID)
		}
		rows = append(rows, []any{
			c.CandidateID, jurorID, c.FullName, c.SourceType, demo, sources,
			factors, c.ScoreFactors.TotalScore, string(candidateStatus(c)), now, now,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "identity_candidates",
		Columns:      candidateColumns,
		ConflictKeys: []string{"candidate_id"},
		UpdateCols:   candidateUpdateColumns,
		Where:        `"identity_candidates"."status" = 'pending'`,
	}, rows)
	return eris.Wrapf(err, "postgres: save candidates for %s", jurorID)
}

func (s *PostgresStore) GetCandidate(ctx context.Context, candidateID string) (*model.IdentityCandidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT candidate_id, full_name, source_type, demographics, sources, score_factors, status FROM identity_candidates WHERE candidate_id = $1`,
		candidateID,
	)
	c, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("candidate", candidateID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get candidate %s", candidateID)
	}
	return c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, jurorID string) ([]model.IdentityCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT candidate_id, full_name, source_type, demographics, sources, score_factors, status FROM identity_candidates WHERE juror_id = $1 ORDER BY total_score DESC, candidate_id ASC`,
		jurorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list candidates for %s", jurorID)
	}
	defer rows.Close()

	candidates := []model.IdentityCandidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		candidates = append(candidates, *c)
	}
	return candidates, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (s *PostgresStore) UpdateCandidateStatus(ctx context.Context, candidateID string, status model.CandidateStatus) (*model.IdentityCandidate, error) {
	c, err := s.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if err := applyStatus(c, status); err != nil {
		return nil, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE identity_candidates SET status = $1, updated_at = $2 WHERE candidate_id = $3 AND status = 'pending'`,
		string(c.Status), time.Now().UTC(), candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update candidate status %s", candidateID)
	}
	if tag.RowsAffected() == 0 {
		// Someone else reached a terminal state first.
		return nil, eris.Wrapf(model.ErrTerminalState, "candidate %s", candidateID)
	}
	return c, nil
}
