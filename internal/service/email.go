package service

import (
	"context"
	"log/slog"
)

// EmailSender hands verification tokens to the platform's outbound mail
// pipeline. Delivery itself happens outside this process.
type EmailSender interface {
	SendVerification(ctx context.Context, email, token string) error
}

type LogEmailSender struct{}

func (LogEmailSender) SendVerification(ctx context.Context, email, _ string) error {
	slog.InfoContext(ctx, "verification email queued", "email", email)
	return nil
}
