package db

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id            TEXT PRIMARY KEY,
		data          JSONB       NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		last_activity TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_last_activity
		ON chat_sessions (last_activity DESC)`,

	`CREATE TABLE IF NOT EXISTS evaluations (
		id                      TEXT PRIMARY KEY,
		question_group_id       TEXT        NOT NULL,
		folder_path             TEXT        NOT NULL,
		top_k                   INT         NOT NULL,
		use_query_enhancer      BOOLEAN     NOT NULL,
		use_reranking           BOOLEAN     NOT NULL,
		num_questions_per_doc   INT         NOT NULL,
		status                  TEXT        NOT NULL,
		num_documents_processed INT         NOT NULL DEFAULT 0,
		created_at              TIMESTAMPTZ NOT NULL,
		completed_at            TIMESTAMPTZ,
		results_summary         JSONB,
		error_message           TEXT        NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_evaluations_group
		ON evaluations (question_group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_evaluations_created_at
		ON evaluations (created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS questions (
		id                   TEXT PRIMARY KEY,
		question_group_id    TEXT        NOT NULL,
		question             TEXT        NOT NULL,
		ground_truth_text    TEXT        NOT NULL,
		source_document_path TEXT        NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_group
		ON questions (question_group_id)`,

	`CREATE TABLE IF NOT EXISTS evaluation_results (
		id                  TEXT PRIMARY KEY,
		evaluation_id       TEXT        NOT NULL,
		question_id         TEXT        NOT NULL,
		retrieved_documents JSONB       NOT NULL,
		hit                 BOOLEAN     NOT NULL,
		rank                INT,
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_evaluation_results_evaluation
		ON evaluation_results (evaluation_id)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	c.logger.Info("Database schema ensured")
	return nil
}
