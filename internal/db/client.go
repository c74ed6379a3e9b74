// Package db is the Postgres layer: connection pool, schema bootstrap, and
// the durable stores for sessions, evaluations, questions and results.
// Non-critical writes go through an async write queue with a synchronous
// fallback when the queue is full.
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// WriteType tags async write requests.
type WriteType int

const (
	WriteTypeSessionArchive WriteType = iota
	WriteTypeEvaluationResult
)

// String returns the string representation of WriteType
func (wt WriteType) String() string {
	switch wt {
	case WriteTypeSessionArchive:
		return "SessionArchive"
	case WriteTypeEvaluationResult:
		return "EvaluationResult"
	default:
		return "Unknown"
	}
}

// WriteRequest represents an async write operation
type WriteRequest struct {
	Type     WriteType
	Data     interface{}
	Callback func(error)
}

// Client manages the database connection pool and async write workers.
type Client struct {
	db     *sqlx.DB
	logger *zap.Logger

	writeQueue chan WriteRequest
	workers    int
	stopCh     chan struct{}
	workerWg   sync.WaitGroup

	// set by the stores that own each write type
	handlers   map[WriteType]func(context.Context, interface{}) error
	handlersMu sync.RWMutex
}

// NewClient opens a connection pool and starts the write workers.
func NewClient(dsn string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rawDB, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rawDB.SetMaxOpenConns(25)
	rawDB.SetMaxIdleConns(5)
	rawDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := newClient(rawDB, logger)
	logger.Info("Database client initialized", zap.Int("workers", client.workers))
	return client, nil
}

// NewClientWithDB wraps an existing connection. Used by tests.
func NewClientWithDB(rawDB *sqlx.DB, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newClient(rawDB, logger)
}

func newClient(rawDB *sqlx.DB, logger *zap.Logger) *Client {
	client := &Client{
		db:         rawDB,
		logger:     logger,
		writeQueue: make(chan WriteRequest, 1000),
		workers:    4,
		stopCh:     make(chan struct{}),
		handlers:   make(map[WriteType]func(context.Context, interface{}) error),
	}
	client.startWorkers()
	return client
}

func (c *Client) registerHandler(wt WriteType, fn func(context.Context, interface{}) error) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[wt] = fn
}

func (c *Client) startWorkers() {
	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
}

func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	for {
		select {
		case <-c.stopCh:
			c.drainQueue()
			c.logger.Debug("Write worker stopped", zap.Int("worker_id", id))
			return
		case req := <-c.writeQueue:
			c.processWrite(req)
		}
	}
}

func (c *Client) processWrite(req WriteRequest) {
	c.handlersMu.RLock()
	handler, ok := c.handlers[req.Type]
	c.handlersMu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("no handler for write type %s", req.Type)
	} else {
		err = handler(context.Background(), req.Data)
	}

	if req.Callback != nil {
		req.Callback(err)
	}
	if err != nil {
		c.logger.Error("Failed to process write request",
			zap.String("type", req.Type.String()),
			zap.Error(err),
		)
	}
}

func (c *Client) drainQueue() {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case req := <-c.writeQueue:
			c.processWrite(req)
		case <-timeout:
			c.logger.Warn("Timeout draining write queue")
			return
		default:
			return
		}
	}
}

// QueueWrite adds a write request to the async queue. When the queue is
// full the write runs synchronously instead of being dropped.
func (c *Client) QueueWrite(writeType WriteType, data interface{}, callback func(error)) {
	req := WriteRequest{Type: writeType, Data: data, Callback: callback}
	select {
	case c.writeQueue <- req:
	default:
		c.logger.Warn("Write queue is full, falling back to synchronous write",
			zap.String("type", writeType.String()))
		c.processWrite(req)
	}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB exposes the underlying pool for direct queries.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close drains the write queue and closes the pool.
func (c *Client) Close() error {
	close(c.stopCh)
	c.workerWg.Wait()
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	c.logger.Info("Database client closed")
	return nil
}
