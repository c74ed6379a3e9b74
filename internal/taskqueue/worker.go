package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/metrics"
)

// HandlerFunc processes one task.
type HandlerFunc func(ctx context.Context, task Task) error

// WorkerPool pulls tasks off the queue and dispatches them to registered
// handlers.
type WorkerPool struct {
	queue       *Queue
	concurrency int
	handlers    map[string]HandlerFunc
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool of concurrency workers.
func NewWorkerPool(queue *Queue, concurrency int, logger *zap.Logger) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		queue:       queue,
		concurrency: concurrency,
		handlers:    make(map[string]HandlerFunc),
		logger:      logger,
	}
}

// Register binds a handler to a task type. Must be called before Start.
func (p *WorkerPool) Register(taskType string, handler HandlerFunc) {
	p.handlers[taskType] = handler
}

// Start launches the workers. They run until Stop or ctx cancellation.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("Worker pool started", zap.Int("concurrency", p.concurrency))
}

// Stop signals workers to finish their current task and waits for them.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.queue.Dequeue(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("Dequeue failed", zap.Int("worker", id), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}
		p.dispatch(ctx, *task)
	}
}

func (p *WorkerPool) dispatch(ctx context.Context, task Task) {
	handler, ok := p.handlers[task.Type]
	if !ok {
		p.logger.Error("No handler for task type",
			zap.String("type", task.Type),
			zap.String("task_id", task.ID),
		)
		metrics.RecordTaskMetrics(task.Type, "unhandled", 0)
		return
	}

	start := time.Now()
	err := p.safeHandle(ctx, handler, task)
	status := "ok"
	if err != nil {
		status = "error"
		p.logger.Warn("Task failed",
			zap.String("type", task.Type),
			zap.String("task_id", task.ID),
			zap.String("job_id", task.JobID),
			zap.Error(err),
		)
	}
	metrics.RecordTaskMetrics(task.Type, status, time.Since(start).Seconds())
}

func (p *WorkerPool) safeHandle(ctx context.Context, handler HandlerFunc, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", task.Type, r)
		}
	}()
	return handler(ctx, task)
}
