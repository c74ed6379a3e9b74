package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/saga-labs/lexrag/internal/evaluation"
)

// EvaluationStore persists evaluations, questions and per-question results.
type EvaluationStore struct {
	client *Client
}

// NewEvaluationStore creates the evaluation store and registers its async
// write handler for per-question results.
func NewEvaluationStore(client *Client) *EvaluationStore {
	s := &EvaluationStore{client: client}
	client.registerHandler(WriteTypeEvaluationResult, func(ctx context.Context, data interface{}) error {
		res, ok := data.(*evaluation.Result)
		if !ok {
			return fmt.Errorf("unexpected payload %T for evaluation result", data)
		}
		return s.insertResult(ctx, res)
	})
	return s
}

// SaveEvaluation inserts a new evaluation record.
func (s *EvaluationStore) SaveEvaluation(ctx context.Context, e *evaluation.Evaluation) error {
	_, err := s.client.db.ExecContext(ctx, `
		INSERT INTO evaluations
			(id, question_group_id, folder_path, top_k, use_query_enhancer,
			 use_reranking, num_questions_per_doc, status,
			 num_documents_processed, created_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.QuestionGroupID, e.FolderPath, e.TopK, e.UseQueryEnhancer,
		e.UseReranking, e.NumQuestionsPerDoc, e.Status,
		e.NumDocumentsProcessed, e.CreatedAt, e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("save evaluation %s: %w", e.ID, err)
	}
	return nil
}

// UpdateEvaluation rewrites the mutable evaluation fields.
func (s *EvaluationStore) UpdateEvaluation(ctx context.Context, e *evaluation.Evaluation) error {
	var summary []byte
	if e.ResultsSummary != nil {
		var err error
		summary, err = json.Marshal(e.ResultsSummary)
		if err != nil {
			return err
		}
	}
	_, err := s.client.db.ExecContext(ctx, `
		UPDATE evaluations
		SET status = $2, num_documents_processed = $3, completed_at = $4,
		    results_summary = $5, error_message = $6
		WHERE id = $1`,
		e.ID, e.Status, e.NumDocumentsProcessed, e.CompletedAt, summary, e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update evaluation %s: %w", e.ID, err)
	}
	return nil
}

// GetEvaluation loads one evaluation, or evaluation.ErrNotFound.
func (s *EvaluationStore) GetEvaluation(ctx context.Context, id string) (*evaluation.Evaluation, error) {
	row := s.client.db.QueryRowContext(ctx, `
		SELECT id, question_group_id, folder_path, top_k, use_query_enhancer,
		       use_reranking, num_questions_per_doc, status,
		       num_documents_processed, created_at, completed_at,
		       results_summary, error_message
		FROM evaluations WHERE id = $1`, id)

	e, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, evaluation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load evaluation %s: %w", id, err)
	}
	return e, nil
}

// ListEvaluations returns evaluations, newest first.
func (s *EvaluationStore) ListEvaluations(ctx context.Context, limit int) ([]*evaluation.Evaluation, error) {
	rows, err := s.client.db.QueryContext(ctx, `
		SELECT id, question_group_id, folder_path, top_k, use_query_enhancer,
		       use_reranking, num_questions_per_doc, status,
		       num_documents_processed, created_at, completed_at,
		       results_summary, error_message
		FROM evaluations ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

// ListEvaluationsByGroup returns all evaluations sharing a question group.
func (s *EvaluationStore) ListEvaluationsByGroup(ctx context.Context, questionGroupID string) ([]*evaluation.Evaluation, error) {
	rows, err := s.client.db.QueryContext(ctx, `
		SELECT id, question_group_id, folder_path, top_k, use_query_enhancer,
		       use_reranking, num_questions_per_doc, status,
		       num_documents_processed, created_at, completed_at,
		       results_summary, error_message
		FROM evaluations WHERE question_group_id = $1 ORDER BY created_at`, questionGroupID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations for group %s: %w", questionGroupID, err)
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

// SaveQuestions inserts a batch of synthesized questions.
func (s *EvaluationStore) SaveQuestions(ctx context.Context, questions []*evaluation.Question) error {
	for _, q := range questions {
		_, err := s.client.db.ExecContext(ctx, `
			INSERT INTO questions
				(id, question_group_id, question, ground_truth_text,
				 source_document_path, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, q.QuestionGroupID, q.Question, q.GroundTruthText,
			q.SourceDocumentPath, q.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save question %s: %w", q.ID, err)
		}
	}
	return nil
}

// ListQuestions returns all questions in a group, oldest first.
func (s *EvaluationStore) ListQuestions(ctx context.Context, questionGroupID string) ([]*evaluation.Question, error) {
	var out []*evaluation.Question
	err := s.client.db.SelectContext(ctx, &out, `
		SELECT id, question_group_id, question, ground_truth_text,
		       source_document_path, created_at
		FROM questions WHERE question_group_id = $1 ORDER BY created_at`, questionGroupID)
	if err != nil {
		return nil, fmt.Errorf("list questions for group %s: %w", questionGroupID, err)
	}
	return out, nil
}

// SaveResult queues the result insert on the async write queue.
func (s *EvaluationStore) SaveResult(_ context.Context, r *evaluation.Result) error {
	s.client.QueueWrite(WriteTypeEvaluationResult, r, nil)
	return nil
}

func (s *EvaluationStore) insertResult(ctx context.Context, r *evaluation.Result) error {
	docs, err := json.Marshal(r.RetrievedDocuments)
	if err != nil {
		return err
	}
	_, err = s.client.db.ExecContext(ctx, `
		INSERT INTO evaluation_results
			(id, evaluation_id, question_id, retrieved_documents, hit, rank, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.EvaluationID, r.QuestionID, docs, r.Hit, r.Rank, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	return nil
}

// ListResults returns all per-question results for an evaluation.
func (s *EvaluationStore) ListResults(ctx context.Context, evaluationID string) ([]*evaluation.Result, error) {
	rows, err := s.client.db.QueryContext(ctx, `
		SELECT id, evaluation_id, question_id, retrieved_documents, hit, rank, created_at
		FROM evaluation_results WHERE evaluation_id = $1 ORDER BY created_at`, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list results for %s: %w", evaluationID, err)
	}
	defer rows.Close()

	var out []*evaluation.Result
	for rows.Next() {
		var r evaluation.Result
		var docs []byte
		if err := rows.Scan(&r.ID, &r.EvaluationID, &r.QuestionID, &docs,
			&r.Hit, &r.Rank, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(docs, &r.RetrievedDocuments); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvaluation(row rowScanner) (*evaluation.Evaluation, error) {
	var e evaluation.Evaluation
	var summary []byte
	err := row.Scan(&e.ID, &e.QuestionGroupID, &e.FolderPath, &e.TopK,
		&e.UseQueryEnhancer, &e.UseReranking, &e.NumQuestionsPerDoc,
		&e.Status, &e.NumDocumentsProcessed, &e.CreatedAt, &e.CompletedAt,
		&summary, &e.ErrorMessage)
	if err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		var s evaluation.Summary
		if err := json.Unmarshal(summary, &s); err == nil {
			e.ResultsSummary = &s
		}
	}
	return &e, nil
}

func scanEvaluations(rows *sql.Rows) ([]*evaluation.Evaluation, error) {
	var out []*evaluation.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
