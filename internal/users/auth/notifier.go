// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"net/url"
	"strings"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/platform/jobs"
)

// ResetEmailQueue is satisfied by [jobs.Client].
type ResetEmailQueue interface {
	EnqueuePasswordResetEmail(ctx context.Context, payload jobs.PasswordResetEmail) error
}

// QueueNotifier hands reset notices to the background worker as email tasks.
type QueueNotifier struct {
	queue       ResetEmailQueue
	frontendURL string
}

// NewQueueNotifier builds reset links under frontendURL.
func NewQueueNotifier(queue ResetEmailQueue, frontendURL string) *QueueNotifier {
	return &QueueNotifier{queue: queue, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// NotifyPasswordReset implements [ResetNotifier].
func (notifier *QueueNotifier) NotifyPasswordReset(context context.Context, notice ResetNotice) error {
	return notifier.queue.EnqueuePasswordResetEmail(context, jobs.PasswordResetEmail{
		UserID:    notice.UserID,
		Username:  notice.Username,
		Email:     notice.Email,
		ResetURL:  notifier.ResetURL(notice.Token),
		ExpiresAt: notice.ExpiresAt,
	})
}

// ResetURL returns the frontend link carrying token.
func (notifier *QueueNotifier) ResetURL(token string) string {
	return notifier.frontendURL + constants.ResetPasswordPath + "?token=" + url.QueryEscape(token)
}
