// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package jobs

import (
	"context"
	"log/slog"
)

// Mailer delivers password-reset messages.
type Mailer interface {
	SendPasswordReset(ctx context.Context, message PasswordResetEmail) error
}

/*
LogMailer records reset messages in the log instead of sending them.

The reset URL is a credential, so it is only written when exposeLinks is set
(development environments).
*/
type LogMailer struct {
	logger      *slog.Logger
	exposeLinks bool
}

// NewLogMailer constructs a [LogMailer].
func NewLogMailer(logger *slog.Logger, exposeLinks bool) *LogMailer {
	return &LogMailer{logger: logger, exposeLinks: exposeLinks}
}

func (mailer *LogMailer) SendPasswordReset(ctx context.Context, message PasswordResetEmail) error {
	attrs := []any{
		slog.Int64("user_id", message.UserID),
		slog.String("email", message.Email),
		slog.Time("expires_at", message.ExpiresAt),
	}
	if mailer.exposeLinks {
		attrs = append(attrs, slog.String("reset_url", message.ResetURL))
	}

	mailer.logger.InfoContext(ctx, "password_reset_email_dispatched", attrs...)
	return nil
}
