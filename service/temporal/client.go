package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
)

// Processor starts durable transaction processing. The HTTP layer depends on
// this interface so tests can substitute an in-process implementation.
type Processor interface {
	StartProcessing(ctx context.Context, transactionID string) (string, error)
}

// Client is a production Processor that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartProcessing starts the processing workflow for a transaction and
// returns the run ID. The workflow ID is derived from the transaction ID, so
// a duplicate start of the same transaction is rejected by Temporal.
func (c *Client) StartProcessing(ctx context.Context, transactionID string) (string, error) {
	workflowID := workflowID(transactionID)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: c.taskQueue,
	}, "ProcessTransactionWorkflow", ProcessTransactionInput{TransactionID: transactionID})
	if err != nil {
		c.logger.Error("failed to start processing workflow",
			"transaction_id", transactionID,
			"workflow_id", workflowID,
			"error", err,
		)
		return "", fmt.Errorf("failed to start workflow %q: %w", workflowID, err)
	}

	c.logger.Info("started processing workflow",
		"transaction_id", transactionID,
		"workflow_id", workflowID,
		"run_id", run.GetRunID(),
	)
	return run.GetRunID(), nil
}

// AwaitResult blocks until the processing workflow for a transaction
// completes and returns its result.
func (c *Client) AwaitResult(ctx context.Context, transactionID string) (*ProcessTransactionResult, error) {
	run := c.client.GetWorkflow(ctx, workflowID(transactionID), "")

	var result ProcessTransactionResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("workflow %q failed: %w", workflowID(transactionID), err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func workflowID(transactionID string) string {
	return "process-transaction-" + transactionID
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
