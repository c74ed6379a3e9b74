package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saga-labs/lexrag/internal/metrics"
	"github.com/saga-labs/lexrag/internal/retrieval"
)

// questionGenLimit bounds concurrent per-document LLM calls during
// question synthesis.
const questionGenLimit = 4

const questionGenSystemPrompt = `You are building a retrieval benchmark from legal documents.
From the given document text, extract distinct facts and write one question per fact whose
answer is that fact. Respond with JSON:
{"questions": [{"fact": "the ground truth statement", "question": "the question"}]}.`

// TextExtractor pulls the text out of a document file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Retriever replays benchmark questions through retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int, useEnhancer, useReranking bool) ([]retrieval.Result, error)
}

// StartParams are the client-supplied evaluation parameters.
type StartParams struct {
	FolderPath         string `json:"folder_path"`
	TopK               int    `json:"top_k"`
	UseQueryEnhancer   bool   `json:"use_query_enhancer"`
	UseReranking       bool   `json:"use_reranking"`
	NumQuestionsPerDoc int    `json:"num_questions_per_doc"`
	SourceEvaluationID string `json:"source_evaluation_id,omitempty"`
	QuestionGroupID    string `json:"question_group_id,omitempty"`
}

// Engine creates and runs evaluations.
type Engine struct {
	store     Store
	extractor TextExtractor
	retriever Retriever
	llm       retrieval.JSONCompleter
	logger    *zap.Logger
}

// NewEngine creates an evaluation engine.
func NewEngine(store Store, extractor TextExtractor, retriever Retriever, llm retrieval.JSONCompleter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     store,
		extractor: extractor,
		retriever: retriever,
		llm:       llm,
		logger:    logger,
	}
}

// Start validates the parameters and persists a pending evaluation. The
// actual run happens later via Run, typically on the task queue.
func (e *Engine) Start(ctx context.Context, p StartParams) (*Evaluation, error) {
	if p.SourceEvaluationID != "" && p.QuestionGroupID != "" {
		return nil, fmt.Errorf("source_evaluation_id and question_group_id are mutually exclusive")
	}
	if p.FolderPath == "" {
		return nil, fmt.Errorf("folder_path is required")
	}
	if p.TopK <= 0 {
		p.TopK = 5
	}
	if p.NumQuestionsPerDoc <= 0 {
		p.NumQuestionsPerDoc = 2
	}

	groupID := p.QuestionGroupID
	if groupID == "" && p.SourceEvaluationID != "" {
		source, err := e.store.GetEvaluation(ctx, p.SourceEvaluationID)
		if err != nil {
			return nil, fmt.Errorf("resolve source evaluation %s: %w", p.SourceEvaluationID, err)
		}
		groupID = source.QuestionGroupID
	}
	if groupID == "" {
		groupID = uuid.New().String()
	}

	eval := &Evaluation{
		ID:                 uuid.New().String(),
		QuestionGroupID:    groupID,
		FolderPath:         p.FolderPath,
		TopK:               p.TopK,
		UseQueryEnhancer:   p.UseQueryEnhancer,
		UseReranking:       p.UseReranking,
		NumQuestionsPerDoc: p.NumQuestionsPerDoc,
		Status:             StatusPending,
		CreatedAt:          time.Now().UTC(),
	}
	if err := e.store.SaveEvaluation(ctx, eval); err != nil {
		return nil, err
	}

	metrics.EvaluationsStarted.Inc()
	e.logger.Info("Evaluation created",
		zap.String("evaluation_id", eval.ID),
		zap.String("question_group_id", groupID),
	)
	return eval, nil
}

// Run executes an evaluation end to end. A top-level failure marks the
// evaluation failed with its error message.
func (e *Engine) Run(ctx context.Context, evaluationID string) error {
	eval, err := e.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return err
	}

	eval.Status = StatusRunning
	if err := e.store.UpdateEvaluation(ctx, eval); err != nil {
		return err
	}

	if err := e.run(ctx, eval); err != nil {
		eval.Status = StatusFailed
		eval.ErrorMessage = err.Error()
		if uerr := e.store.UpdateEvaluation(ctx, eval); uerr != nil {
			e.logger.Error("Failed to record evaluation failure",
				zap.String("evaluation_id", eval.ID), zap.Error(uerr))
		}
		metrics.EvaluationsCompleted.WithLabelValues("failed").Inc()
		return err
	}
	metrics.EvaluationsCompleted.WithLabelValues("completed").Inc()
	return nil
}

func (e *Engine) run(ctx context.Context, eval *Evaluation) error {
	questions, err := e.store.ListQuestions(ctx, eval.QuestionGroupID)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		questions, err = e.generateQuestions(ctx, eval)
		if err != nil {
			return err
		}
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions available for group %s", eval.QuestionGroupID)
	}

	results := make([]*Result, 0, len(questions))
	for _, q := range questions {
		res := e.evaluateQuestion(ctx, eval, q)
		if err := e.store.SaveResult(ctx, res); err != nil {
			e.logger.Warn("Failed to persist evaluation result",
				zap.String("question_id", q.ID), zap.Error(err))
		}
		results = append(results, res)
	}

	summary := Summarize(results)
	now := time.Now().UTC()
	eval.Status = StatusCompleted
	eval.CompletedAt = &now
	eval.ResultsSummary = &summary
	if err := e.store.UpdateEvaluation(ctx, eval); err != nil {
		return err
	}

	e.logger.Info("Evaluation completed",
		zap.String("evaluation_id", eval.ID),
		zap.Int("questions", summary.TotalQuestions),
		zap.Float64("hit_rate", summary.HitRate),
		zap.Float64("mrr", summary.MRR),
	)
	return nil
}

// generateQuestions synthesizes the question set for a fresh group.
// Documents whose extraction or generation fails are skipped.
func (e *Engine) generateQuestions(ctx context.Context, eval *Evaluation) ([]*Question, error) {
	files, err := listPDFs(eval.FolderPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no PDF documents in %s", eval.FolderPath)
	}

	var mu sync.Mutex
	var questions []*Question
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(questionGenLimit)
	for _, file := range files {
		file := file
		g.Go(func() error {
			generated, err := e.questionsForDocument(gctx, eval, file)
			if err != nil {
				e.logger.Warn("Skipping document in question generation",
					zap.String("source", file), zap.Error(err))
				return nil
			}
			mu.Lock()
			questions = append(questions, generated...)
			processed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(questions) > 0 {
		if err := e.store.SaveQuestions(ctx, questions); err != nil {
			return nil, err
		}
	}
	eval.NumDocumentsProcessed = processed
	return questions, nil
}

func (e *Engine) questionsForDocument(ctx context.Context, eval *Evaluation, file string) ([]*Question, error) {
	text, err := e.extractor.Extract(ctx, file)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Questions []struct {
			Fact     string `json:"fact"`
			Question string `json:"question"`
		} `json:"questions"`
	}
	user := fmt.Sprintf("Generate %d questions.\n\nDocument:\n%s", eval.NumQuestionsPerDoc, text)
	if err := e.llm.CompleteJSON(ctx, "question_generation", questionGenSystemPrompt, user, 0.7, &parsed); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []*Question
	for _, q := range parsed.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		out = append(out, &Question{
			ID:                 uuid.New().String(),
			QuestionGroupID:    eval.QuestionGroupID,
			Question:           q.Question,
			GroundTruthText:    q.Fact,
			SourceDocumentPath: file,
			CreatedAt:          now,
		})
		if len(out) == eval.NumQuestionsPerDoc {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable questions generated")
	}
	return out, nil
}

// evaluateQuestion runs one question through retrieval and scores the hit.
// Retrieval errors record an empty miss rather than failing the run.
func (e *Engine) evaluateQuestion(ctx context.Context, eval *Evaluation, q *Question) *Result {
	res := &Result{
		ID:                 uuid.New().String(),
		EvaluationID:       eval.ID,
		QuestionID:         q.ID,
		RetrievedDocuments: []string{},
		CreatedAt:          time.Now().UTC(),
	}

	retrieved, err := e.retriever.Retrieve(ctx, q.Question, eval.TopK, eval.UseQueryEnhancer, eval.UseReranking)
	if err != nil {
		e.logger.Warn("Retrieval failed for question",
			zap.String("question_id", q.ID), zap.Error(err))
		return res
	}

	for _, r := range retrieved {
		res.RetrievedDocuments = append(res.RetrievedDocuments, r.Source)
	}
	res.Hit, res.Rank = matchByFilename(q.SourceDocumentPath, res.RetrievedDocuments)
	return res
}

// matchByFilename finds the 1-indexed rank of the first retrieved path
// whose base name equals the ground-truth document's base name.
func matchByFilename(groundTruth string, retrieved []string) (bool, *int) {
	want := filepath.Base(groundTruth)
	for i, path := range retrieved {
		if filepath.Base(path) == want {
			rank := i + 1
			return true, &rank
		}
	}
	return false, nil
}

// Get returns an evaluation with its related runs (same question group).
func (e *Engine) Get(ctx context.Context, id string) (*Evaluation, error) {
	eval, err := e.store.GetEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	group, err := e.store.ListEvaluationsByGroup(ctx, eval.QuestionGroupID)
	if err != nil {
		return nil, err
	}
	for _, other := range group {
		if other.ID != eval.ID {
			eval.RelatedEvaluationIDs = append(eval.RelatedEvaluationIDs, other.ID)
		}
	}
	return eval, nil
}

// List returns recent evaluations.
func (e *Engine) List(ctx context.Context, limit int) ([]*Evaluation, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.ListEvaluations(ctx, limit)
}

// Results returns the per-question results for an evaluation.
func (e *Engine) Results(ctx context.Context, id string) ([]*Result, error) {
	return e.store.ListResults(ctx, id)
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
