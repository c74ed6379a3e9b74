// Package evaluation measures retrieval quality: it synthesizes questions
// from ingested documents, replays them through the retrieval engine, and
// aggregates hit-rate and rank metrics.
package evaluation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown evaluation IDs.
var ErrNotFound = errors.New("evaluation not found")

// Evaluation status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Evaluation is one benchmark run over a document folder.
type Evaluation struct {
	ID                    string     `json:"evaluation_id" db:"id"`
	QuestionGroupID       string     `json:"question_group_id" db:"question_group_id"`
	FolderPath            string     `json:"folder_path" db:"folder_path"`
	TopK                  int        `json:"top_k" db:"top_k"`
	UseQueryEnhancer      bool       `json:"use_query_enhancer" db:"use_query_enhancer"`
	UseReranking          bool       `json:"use_reranking" db:"use_reranking"`
	NumQuestionsPerDoc    int        `json:"num_questions_per_doc" db:"num_questions_per_doc"`
	Status                string     `json:"status" db:"status"`
	NumDocumentsProcessed int        `json:"num_documents_processed" db:"num_documents_processed"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ResultsSummary        *Summary   `json:"results_summary,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty" db:"error_message"`

	// Other evaluations sharing the same question group. Populated on read.
	RelatedEvaluationIDs []string `json:"related_evaluation_ids,omitempty"`
}

// Question is one synthesized benchmark question.
type Question struct {
	ID                 string    `json:"question_id" db:"id"`
	QuestionGroupID    string    `json:"question_group_id" db:"question_group_id"`
	Question           string    `json:"question" db:"question"`
	GroundTruthText    string    `json:"ground_truth_text" db:"ground_truth_text"`
	SourceDocumentPath string    `json:"source_document_path" db:"source_document_path"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Result records one question's retrieval outcome. Rank is 1-indexed and
// nil when no retrieved source matched.
type Result struct {
	ID                 string    `json:"result_id" db:"id"`
	EvaluationID       string    `json:"evaluation_id" db:"evaluation_id"`
	QuestionID         string    `json:"question_id" db:"question_id"`
	RetrievedDocuments []string  `json:"retrieved_documents"`
	Hit                bool      `json:"hit" db:"hit"`
	Rank               *int      `json:"rank,omitempty" db:"rank"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Summary aggregates metrics over an evaluation's results.
type Summary struct {
	HitRate        float64            `json:"hit_rate"`
	HitRateAtK     map[string]float64 `json:"hit_rate_at_k"`
	MRR            float64            `json:"mrr"`
	TotalQuestions int                `json:"total_questions"`
	TotalHits      int                `json:"total_hits"`
}

// Store is the durable backend for evaluations, questions and results.
type Store interface {
	SaveEvaluation(ctx context.Context, e *Evaluation) error
	UpdateEvaluation(ctx context.Context, e *Evaluation) error
	GetEvaluation(ctx context.Context, id string) (*Evaluation, error)
	ListEvaluations(ctx context.Context, limit int) ([]*Evaluation, error)
	ListEvaluationsByGroup(ctx context.Context, questionGroupID string) ([]*Evaluation, error)
	SaveQuestions(ctx context.Context, questions []*Question) error
	ListQuestions(ctx context.Context, questionGroupID string) ([]*Question, error)
	SaveResult(ctx context.Context, r *Result) error
	ListResults(ctx context.Context, evaluationID string) ([]*Result, error)
}
