package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/swift/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func score(n int) *int { return &n }

func sampleRun() *model.BatchResult {
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	return &model.BatchResult{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Skipped:    []int{1},
		Digest:     []string{"refill ideas dominate"},
		Items: []model.ItemResult{
			{
				Idea: model.Idea{ID: "A", Row: 0, Problem: "The usage of plastic bottles", Solution: "refill station service"},
				Verdict: model.Verdict{
					Decision:  model.DecisionKeep,
					Score:     score(72),
					Rationale: "specific",
					Analysis:  "1. No - keep idea",
					Citations: []model.Citation{{Quote: "refill cuts waste", URL: "https://a.example", Basis: model.MatchExact, Confidence: 1}},
				},
				DuplicateGroup: 2,
			},
			{
				Idea:    model.Idea{ID: "C", Row: 2, Problem: "E-waste", Solution: "modular phones"},
				Verdict: model.DegradedVerdict(errors.New("inference error: timeout")),
			},
		},
	}
}

func TestOpenMigratesToLatest(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
	assert.Equal(t, 2, version)
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
	assert.Equal(t, path, db2.Path())
}

func TestSaveRun(t *testing.T) {
	db := openTestDB(t)
	cfg := model.EvaluationConfig{Strictness: model.StrictnessStrict, MaxTokens: 300}
	require.NoError(t, db.SaveRun(sampleRun(), cfg))

	var kept, filtered, degraded int
	var digest string
	require.NoError(t, db.conn.QueryRow(
		`SELECT kept, filtered, degraded, digest FROM runs WHERE run_id = ?`, "run-1",
	).Scan(&kept, &filtered, &degraded, &digest))
	assert.Equal(t, 2, kept)
	assert.Equal(t, 0, filtered)
	assert.Equal(t, 1, degraded)
	assert.Equal(t, "refill ideas dominate", digest)

	rows, err := db.conn.Query(`SELECT idea_id, row_index, score, duplicate_group, degraded FROM items WHERE run_id = ? ORDER BY position`, "run-1")
	require.NoError(t, err)
	defer rows.Close()

	type item struct {
		id        string
		row       int
		score     sql.NullInt64
		group     int
		degraded int
	}
	var got []item
	for rows.Next() {
		var it item
		require.NoError(t, rows.Scan(&it.id, &it.row, &it.score, &it.group, &it.degraded))
		got = append(got, it)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].id)
	assert.Equal(t, int64(72), got[0].score.Int64)
	assert.Equal(t, 2, got[0].group)
	assert.Equal(t, 2, got[1].row)
	assert.False(t, got[1].score.Valid)
	assert.Equal(t, 1, got[1].degraded)

	var citations, skipped int
	require.NoError(t, db.conn.QueryRow(`SELECT COUNT(*) FROM citations WHERE run_id = ?`, "run-1").Scan(&citations))
	require.NoError(t, db.conn.QueryRow(`SELECT COUNT(*) FROM skipped_rows WHERE run_id = ?`, "run-1").Scan(&skipped))
	assert.Equal(t, 1, citations)
	assert.Equal(t, 1, skipped)
}

func TestSaveRunTwiceFails(t *testing.T) {
	db := openTestDB(t)
	cfg := model.EvaluationConfig{Strictness: model.StrictnessNormal, MaxTokens: 100}
	require.NoError(t, db.SaveRun(sampleRun(), cfg))
	assert.Error(t, db.SaveRun(sampleRun(), cfg))

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	assert.Equal(t, 2, n)
}
