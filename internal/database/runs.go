package database

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/model"
)

// SaveRun writes one finished run in a single transaction. Saving the same
// run twice is an error.
func (db *DB) SaveRun(result *model.BatchResult, cfg model.EvaluationConfig) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin archive transaction")
	}
	if err := saveRun(tx, result, cfg); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "commit archive transaction")
	}

	zap.L().Info("run archived", zap.String("run_id", result.RunID), zap.String("path", db.path))
	return nil
}

func saveRun(tx *sql.Tx, result *model.BatchResult, cfg model.EvaluationConfig) error {
	kept, filtered, degraded := result.Counts()
	_, err := tx.Exec(`INSERT INTO runs
		(run_id, started_at, finished_at, strictness, criteria, max_tokens, kept, filtered, degraded, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.StartedAt.UTC().Format(time.RFC3339),
		result.FinishedAt.UTC().Format(time.RFC3339),
		string(cfg.Strictness), nullString(cfg.Criteria), cfg.MaxTokens,
		kept, filtered, degraded,
		nullString(strings.Join(result.Digest, "\n")),
	)
	if err != nil {
		return eris.Wrapf(err, "inserting run %s", result.RunID)
	}

	itemStmt, err := tx.Prepare(`INSERT INTO items
		(run_id, position, row_index, idea_id, problem, solution, decision, score,
		 rationale, conclusion, analysis, degraded, duplicate_group, issues)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "preparing item insert")
	}
	defer itemStmt.Close()

	citeStmt, err := tx.Prepare(`INSERT INTO citations
		(run_id, position, quote, url, basis, confidence) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "preparing citation insert")
	}
	defer citeStmt.Close()

	for pos, it := range result.Items {
		v := it.Verdict
		var score sql.NullInt64
		if v.Score != nil {
			score = sql.NullInt64{Int64: int64(*v.Score), Valid: true}
		}
		_, err := itemStmt.Exec(result.RunID, pos, it.Idea.Row, it.Idea.ID, it.Idea.Problem, it.Idea.Solution,
			string(v.Decision), score, nullString(v.Rationale), nullString(v.Conclusion), v.Analysis,
			boolInt(v.Degraded), it.DuplicateGroup, nullString(strings.Join(v.Issues, "\n")))
		if err != nil {
			return eris.Wrapf(err, "inserting item %d", pos)
		}

		for _, c := range v.Citations {
			if _, err := citeStmt.Exec(result.RunID, pos, c.Quote, c.URL, c.Basis, c.Confidence); err != nil {
				return eris.Wrapf(err, "inserting citation for item %d", pos)
			}
		}
	}

	for _, row := range result.Skipped {
		if _, err := tx.Exec(`INSERT INTO skipped_rows (run_id, row_index) VALUES (?, ?)`, result.RunID, row); err != nil {
			return eris.Wrapf(err, "inserting skipped row %d", row)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
