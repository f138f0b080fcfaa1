package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/weights"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS weight_tables (
	id              TEXT PRIMARY KEY,
	version         TEXT NOT NULL,
	catalog_version TEXT NOT NULL,
	personas        TEXT NOT NULL,
	built_at        DATETIME NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_weight_tables_built_at ON weight_tables(built_at);

CREATE TABLE IF NOT EXISTS signal_weights (
	table_id   TEXT NOT NULL REFERENCES weight_tables(id) ON DELETE CASCADE,
	signal_id  TEXT NOT NULL,
	persona_id TEXT NOT NULL,
	direction  TEXT NOT NULL,
	weight     REAL NOT NULL,
	PRIMARY KEY (table_id, signal_id, persona_id, direction)
);

CREATE TABLE IF NOT EXISTS identity_candidates (
	candidate_id  TEXT PRIMARY KEY,
	juror_id      TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	source_type   TEXT NOT NULL DEFAULT '',
	demographics  TEXT NOT NULL,
	sources       TEXT NOT NULL DEFAULT '[]',
	score_factors TEXT NOT NULL,
	total_score   INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_identity_candidates_juror ON identity_candidates(juror_id, total_score);
CREATE INDEX IF NOT EXISTS idx_identity_candidates_status ON identity_candidates(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveWeights(ctx context.Context, t *weights.Table) error {
	if err := validateTable(t); err != nil {
		return err
	}
	meta := t.Meta()

	personasJSON, err := json.Marshal(t.Personas())
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal personas")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save weights")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO weight_tables (id, version, catalog_version, personas, built_at) VALUES (?, ?, ?, ?, ?)`,
		meta.ID, meta.Version, meta.CatalogVersion, string(personasJSON), meta.BuiltAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert weight table %s", meta.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO signal_weights (table_id, signal_id, persona_id, direction, weight) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare weight insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, w := range t.Weights() {
		if _, err := stmt.ExecContext(ctx, meta.ID, w.SignalID, w.PersonaID, string(w.Direction), w.Weight); err != nil {
			return eris.Wrapf(err, "sqlite: insert weight %s/%s", w.SignalID, w.PersonaID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit save weights")
	}
	return nil
}

func (s *SQLiteStore) GetWeights(ctx context.Context, id string) (*weights.Table, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version, catalog_version, personas, built_at FROM weight_tables WHERE id = ?`, id)
	return s.loadWeights(ctx, row, id)
}

func (s *SQLiteStore) LatestWeights(ctx context.Context) (*weights.Table, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version, catalog_version, personas, built_at FROM weight_tables ORDER BY built_at DESC, id DESC LIMIT 1`)
	return s.loadWeights(ctx, row, "latest")
}

func (s *SQLiteStore) loadWeights(ctx context.Context, row *sql.Row, ref string) (*weights.Table, error) {
	var snap weights.Snapshot
	var personasJSON string
	err := row.Scan(&snap.ID, &snap.Version, &snap.CatalogVersion, &personasJSON, &snap.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("weight table", ref)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get weight table %s", ref)
	}
	if err := json.Unmarshal([]byte(personasJSON), &snap.Personas); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal personas")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT signal_id, persona_id, direction, weight FROM signal_weights WHERE table_id = ?`, snap.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query weights for %s", snap.ID)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var w model.SignalPersonaWeight
		var dir string
		if err := rows.Scan(&w.SignalID, &w.PersonaID, &dir, &w.Weight); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan weight")
		}
		w.Direction = model.Direction(dir)
		snap.Weights = append(snap.Weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate weights")
	}

	return weights.FromSnapshot(snap)
}

func (s *SQLiteStore) ListWeights(ctx context.Context, limit int) ([]weights.Meta, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, catalog_version, built_at FROM weight_tables ORDER BY built_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list weight tables")
	}
	defer rows.Close() //nolint:errcheck

	var metas []weights.Meta
	for rows.Next() {
		var m weights.Meta
		if err := rows.Scan(&m.ID, &m.Version, &m.CatalogVersion, &m.BuiltAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan weight table")
		}
		metas = append(metas, m)
	}
	return metas, eris.Wrap(rows.Err(), "sqlite: iterate weight tables")
}

func (s *SQLiteStore) SaveCandidates(ctx context.Context, jurorID string, candidates []model.IdentityCandidate) error {
	if err := validateCandidates(jurorID, candidates); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save candidates")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO identity_candidates
			(candidate_id, juror_id, full_name, source_type, demographics, sources, score_factors, total_score, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(candidate_id) DO UPDATE SET
			juror_id = excluded.juror_id,
			full_name = excluded.full_name,
			source_type = excluded.source_type,
			demographics = excluded.demographics,
			sources = excluded.sources,
			score_factors = excluded.score_factors,
			total_score = excluded.total_score,
			updated_at = excluded.updated_at
		WHERE identity_candidates.status = 'pending'`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare candidate upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range candidates {
		demo, sources, factors, err := marshalCandidate(c)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal candidate %s", c.CandidateID)
		}
		_, err = stmt.ExecContext(ctx,
			c.CandidateID, jurorID, c.FullName, c.SourceType, string(demo), string(sources), string(factors),
			c.ScoreFactors.TotalScore, string(candidateStatus(c)), now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert candidate %s", c.CandidateID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit save candidates")
	}
	return nil
}

func (s *SQLiteStore) GetCandidate(ctx context.Context, candidateID string) (*model.IdentityCandidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT candidate_id, full_name, source_type, demographics, sources, score_factors, status FROM identity_candidates WHERE candidate_id = ?`,
		candidateID,
	)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("candidate", candidateID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get candidate %s", candidateID)
	}
	return c, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, jurorID string) ([]model.IdentityCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_id, full_name, source_type, demographics, sources, score_factors, status FROM identity_candidates WHERE juror_id = ? ORDER BY total_score DESC, candidate_id ASC`,
		jurorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list candidates for %s", jurorID)
	}
	defer rows.Close() //nolint:errcheck

	candidates := []model.IdentityCandidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		candidates = append(candidates, *c)
	}
	return candidates, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

func (s *SQLiteStore) UpdateCandidateStatus(ctx context.Context, candidateID string, status model.CandidateStatus) (*model.IdentityCandidate, error) {
	c, err := s.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if err := applyStatus(c, status); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE identity_candidates SET status = ?, updated_at = ? WHERE candidate_id = ? AND status = 'pending'`,
		string(c.Status), time.Now().UTC(), candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update candidate status %s", candidateID)
	}
	if err := checkRowsAffected(res, "candidate", candidateID); err != nil {
		// Someone else reached a terminal state first.
		return nil, eris.Wrapf(model.ErrTerminalState, "candidate %s", candidateID)
	}
	return c, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
