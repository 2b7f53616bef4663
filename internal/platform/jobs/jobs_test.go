// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package jobs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/platform/jobs"
	"github.com/taibuivan/yomira-iam/internal/platform/metrics"
)

var errBoom = errors.New("boom")

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: constants.QueueDefault}, nil
}

type fakeMailer struct {
	sent []jobs.PasswordResetEmail
	err  error
}

func (f *fakeMailer) SendPasswordReset(_ context.Context, message jobs.PasswordResetEmail) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	return nil
}

type fakePurger struct {
	purged int64
	err    error
	calls  int
}

func (f *fakePurger) PurgeExpiredRefreshTokens(context.Context) (int64, error) {
	f.calls++
	return f.purged, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func samplePayload() jobs.PasswordResetEmail {
	return jobs.PasswordResetEmail{
		UserID:    7,
		Username:  "bob",
		Email:     "bob@x.com",
		ResetURL:  "http://localhost:3000/reset-password?token=abc",
		ExpiresAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestClient_EnqueuePasswordResetEmail(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	client := jobs.NewClientWith(enqueuer)

	require.NoError(t, client.EnqueuePasswordResetEmail(context.Background(), samplePayload()))
	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, jobs.TaskPasswordResetEmail, enqueuer.tasks[0].Type())

	var decoded jobs.PasswordResetEmail
	require.NoError(t, json.Unmarshal(enqueuer.tasks[0].Payload(), &decoded))
	assert.Equal(t, samplePayload(), decoded)

	assert.NoError(t, client.Close())
}

func TestClient_EnqueueFailure(t *testing.T) {
	client := jobs.NewClientWith(&fakeEnqueuer{err: errBoom})

	err := client.EnqueuePasswordResetEmail(context.Background(), samplePayload())
	assert.ErrorIs(t, err, errBoom)
}

func TestHandlers_PasswordResetEmail(t *testing.T) {
	t.Run("delivers", func(t *testing.T) {
		mailer := &fakeMailer{}
		handlers := jobs.NewHandlers(&fakePurger{}, mailer, metrics.New(), discardLogger())

		task, err := jobs.NewPasswordResetEmailTask(samplePayload())
		require.NoError(t, err)

		require.NoError(t, handlers.HandlePasswordResetEmail(context.Background(), task))
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, "bob@x.com", mailer.sent[0].Email)
	})

	t.Run("malformed_payload_skips_retry", func(t *testing.T) {
		handlers := jobs.NewHandlers(&fakePurger{}, &fakeMailer{}, nil, discardLogger())

		err := handlers.HandlePasswordResetEmail(context.Background(), asynq.NewTask(jobs.TaskPasswordResetEmail, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("incomplete_payload_skips_retry", func(t *testing.T) {
		handlers := jobs.NewHandlers(&fakePurger{}, &fakeMailer{}, nil, discardLogger())

		err := handlers.HandlePasswordResetEmail(context.Background(), asynq.NewTask(jobs.TaskPasswordResetEmail, []byte(`{"user_id":7}`)))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("mailer_failure_is_retried", func(t *testing.T) {
		handlers := jobs.NewHandlers(&fakePurger{}, &fakeMailer{err: errBoom}, nil, discardLogger())

		task, err := jobs.NewPasswordResetEmailTask(samplePayload())
		require.NoError(t, err)

		err = handlers.HandlePasswordResetEmail(context.Background(), task)
		assert.ErrorIs(t, err, errBoom)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestHandlers_PurgeExpiredRefreshTokens(t *testing.T) {
	purger := &fakePurger{purged: 3}
	handlers := jobs.NewHandlers(purger, &fakeMailer{}, metrics.New(), discardLogger())

	require.NoError(t, handlers.HandlePurgeExpiredRefreshTokens(context.Background(), jobs.NewPurgeExpiredRefreshTokensTask()))
	assert.Equal(t, 1, purger.calls)

	purger.err = errBoom
	assert.ErrorIs(t, handlers.HandlePurgeExpiredRefreshTokens(context.Background(), jobs.NewPurgeExpiredRefreshTokensTask()), errBoom)
}

func TestLogMailer_HidesLinkOutsideDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		exposeLinks bool
		wantLink    bool
	}{
		{name: "production", exposeLinks: false, wantLink: false},
		{name: "development", exposeLinks: true, wantLink: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buffer bytes.Buffer
			mailer := jobs.NewLogMailer(slog.New(slog.NewJSONHandler(&buffer, nil)), tt.exposeLinks)

			require.NoError(t, mailer.SendPasswordReset(context.Background(), samplePayload()))
			assert.Contains(t, buffer.String(), "password_reset_email_dispatched")
			assert.Equal(t, tt.wantLink, bytes.Contains(buffer.Bytes(), []byte("token=abc")))
		})
	}
}

func TestNewWorker(t *testing.T) {
	redisOpt := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}

	t.Run("requires_handlers", func(t *testing.T) {
		_, err := jobs.NewWorker(jobs.WorkerConfig{RedisOpt: redisOpt})
		assert.Error(t, err)
	})

	t.Run("rejects_bad_cron", func(t *testing.T) {
		_, err := jobs.NewWorker(jobs.WorkerConfig{
			RedisOpt:  redisOpt,
			PurgeCron: "not a cron",
			Handlers:  jobs.NewHandlers(&fakePurger{}, &fakeMailer{}, nil, discardLogger()),
			Logger:    discardLogger(),
		})
		assert.Error(t, err)
	})
}

func TestRedisOpt(t *testing.T) {
	opt, err := jobs.RedisOpt("redis://localhost:6379/2")
	require.NoError(t, err)

	clientOpt, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "localhost:6379", clientOpt.Addr)
	assert.Equal(t, 2, clientOpt.DB)

	_, err = jobs.RedisOpt("ftp://nope")
	assert.Error(t, err)
}
