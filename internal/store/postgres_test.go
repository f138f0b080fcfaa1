package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/juror-match/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var candidateRowColumns = []string{"candidate_id", "full_name", "source_type", "demographics", "sources", "score_factors", "status"}

func candidateRow(t *testing.T, c model.IdentityCandidate) []any {
	t.Helper()
	demo, sources, factors, err := marshalCandidate(c)
	require.NoError(t, err)
	return []any{c.CandidateID, c.FullName, c.SourceType, demo, sources, factors, string(c.Status)}
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS weight_tables`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnError(fmt.Errorf("connection refused"))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveWeights(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	builtAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tbl := testTable(t, "w1", builtAt)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO weight_tables`).
		WithArgs("w1", "v-w1", "2026.10.1", pgxmock.AnyArg(), builtAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"signal_weights"}, weightColumns).WillReturnResult(3)
	mock.ExpectCommit()

	require.NoError(t, s.SaveWeights(context.Background(), tbl))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveWeights_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	tbl := testTable(t, "w1", time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO weight_tables`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"signal_weights"}, weightColumns).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := s.SaveWeights(context.Background(), tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy weights for w1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestWeights(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	builtAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	want := testTable(t, "w1", builtAt)
	personasJSON, err := json.Marshal(want.Personas())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, version, catalog_version, personas, built_at FROM weight_tables ORDER BY built_at DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "catalog_version", "personas", "built_at"}).
			AddRow("w1", "v-w1", "2026.10.1", personasJSON, builtAt))

	weightRows := pgxmock.NewRows([]string{"signal_id", "persona_id", "direction", "weight"})
	for _, w := range want.Weights() {
		weightRows.AddRow(w.SignalID, w.PersonaID, string(w.Direction), w.Weight)
	}
	mock.ExpectQuery(`SELECT signal_id, persona_id, direction, weight FROM signal_weights WHERE table_id = \$1`).
		WithArgs("w1").
		WillReturnRows(weightRows)

	got, err := s.LatestWeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want.Meta(), got.Meta())
	assert.Equal(t, want.Weights(), got.Weights())
	assert.Equal(t, want.Personas(), got.Personas())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetWeights_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM weight_tables WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetWeights(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListWeights(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, version, catalog_version, built_at FROM weight_tables`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "catalog_version", "built_at"}).
			AddRow("w2", "v2", "c", now).
			AddRow("w1", "v1", "c", now.Add(-time.Hour)))

	metas, err := s.ListWeights(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "w2", metas[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_identity_candidates"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_identity_candidates"}, candidateColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "identity_candidates" .* ON CONFLICT \("candidate_id"\) DO UPDATE SET .* WHERE "identity_candidates"."status" = 'pending'`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.SaveCandidates(context.Background(), "juror-1", []model.IdentityCandidate{
		testCandidate("c1", 80),
		testCandidate("c2", 40),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCandidates_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.SaveCandidates(context.Background(), "juror-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCandidate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	want := testCandidate("c1", 72)

	mock.ExpectQuery(`FROM identity_candidates WHERE candidate_id = \$1`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows(candidateRowColumns).AddRow(candidateRow(t, want)...))

	got, err := s.GetCandidate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCandidate_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM identity_candidates WHERE candidate_id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCandidate(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM identity_candidates WHERE juror_id = \$1 ORDER BY total_score DESC, candidate_id ASC`).
		WithArgs("juror-1").
		WillReturnRows(pgxmock.NewRows(candidateRowColumns).
			AddRow(candidateRow(t, testCandidate("c2", 90))...).
			AddRow(candidateRow(t, testCandidate("c1", 60))...))

	got, err := s.ListCandidates(context.Background(), "juror-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].CandidateID)
	assert.Equal(t, 60, got[1].ScoreFactors.TotalScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCandidateStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM identity_candidates WHERE candidate_id = \$1`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows(candidateRowColumns).AddRow(candidateRow(t, testCandidate("c1", 70))...))
	mock.ExpectExec(`UPDATE identity_candidates SET status = \$1, updated_at = \$2 WHERE candidate_id = \$3 AND status = 'pending'`).
		WithArgs("confirmed", pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	got, err := s.UpdateCandidateStatus(context.Background(), "c1", model.CandidateConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.CandidateConfirmed, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCandidateStatus_AlreadyTerminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	c := testCandidate("c1", 70)
	c.Status = model.CandidateRejected

	mock.ExpectQuery(`FROM identity_candidates WHERE candidate_id = \$1`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows(candidateRowColumns).AddRow(candidateRow(t, c)...))

	_, err := s.UpdateCandidateStatus(context.Background(), "c1", model.CandidateConfirmed)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrTerminalState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCandidateStatus_LostRace(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM identity_candidates WHERE candidate_id = \$1`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows(candidateRowColumns).AddRow(candidateRow(t, testCandidate("c1", 70))...))
	mock.ExpectExec(`UPDATE identity_candidates SET status`).
		WithArgs("rejected", pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := s.UpdateCandidateStatus(context.Background(), "c1", model.CandidateRejected)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrTerminalState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	called := false
	s := &PostgresStore{closeFn: func() { called = true }}
	assert.NoError(t, s.Close())
	assert.True(t, called)
}
