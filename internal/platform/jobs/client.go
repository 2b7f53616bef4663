// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Enqueuer is the subset of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client submits jobs to the queue.
type Client struct {
	enqueuer Enqueuer
	close    func() error
}

// NewClient constructs an asynq-backed client.
func NewClient(redisOpt asynq.RedisConnOpt) *Client {
	client := asynq.NewClient(redisOpt)
	return &Client{enqueuer: client, close: client.Close}
}

// NewClientWith wraps an existing [Enqueuer].
func NewClientWith(enqueuer Enqueuer) *Client {
	return &Client{enqueuer: enqueuer}
}

// EnqueuePasswordResetEmail queues delivery of a reset link.
func (c *Client) EnqueuePasswordResetEmail(ctx context.Context, payload PasswordResetEmail) error {
	task, err := NewPasswordResetEmailTask(payload)
	if err != nil {
		return err
	}

	if _, err := c.enqueuer.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("jobs_enqueue_reset_email_failed: %w", err)
	}

	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
