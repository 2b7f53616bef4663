// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package jobs runs the IAM service's background work on asynq.

Two task types exist:

  - auth:password_reset_email delivers a reset link produced by the reset workflow.
  - auth:purge_expired_refresh_tokens deletes refresh tokens past their expiry.
    It is registered on the scheduler from REFRESH_TOKEN_PURGE_CRON.

The API process only enqueues through [Client]; cmd/worker owns the [Worker].
*/
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
)

// # Task Types

const (
	TaskPasswordResetEmail        = "auth:password_reset_email"
	TaskPurgeExpiredRefreshTokens = "auth:purge_expired_refresh_tokens"
)

// PasswordResetEmail is the payload of [TaskPasswordResetEmail].
type PasswordResetEmail struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewPasswordResetEmailTask builds a reset-email task. The task expires with the link.
func NewPasswordResetEmailTask(payload PasswordResetEmail) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs_encode_reset_email_failed: %w", err)
	}

	options := []asynq.Option{
		asynq.Queue(constants.QueueDefault),
		asynq.MaxRetry(constants.JobMaxRetry),
		asynq.Timeout(constants.JobTimeout),
	}
	if !payload.ExpiresAt.IsZero() {
		options = append(options, asynq.Deadline(payload.ExpiresAt))
	}

	return asynq.NewTask(TaskPasswordResetEmail, body, options...), nil
}

// NewPurgeExpiredRefreshTokensTask builds the maintenance task. It carries no payload.
func NewPurgeExpiredRefreshTokensTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeExpiredRefreshTokens, nil,
		asynq.Queue(constants.QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(constants.JobTimeout),
	)
}

// RedisOpt converts REDIS_URL into asynq connection options.
func RedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("jobs_parse_redis_url_failed: %w", err)
	}
	return opt, nil
}
