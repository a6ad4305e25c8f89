package authgate

import (
	"context"
	"log/slog"
)

// slogCodeSender is the default [CodeSender]. It logs codes instead of
// delivering them, which is only suitable for development.
type slogCodeSender struct{}

func (slogCodeSender) SendVerificationCode(ctx context.Context, email string, code string) error {
	slog.InfoContext(ctx, "email verification code issued",
		"email", email,
		"code", code,
	)
	return nil
}

func (slogCodeSender) SendPasswordResetCode(ctx context.Context, email string, code string) error {
	slog.InfoContext(ctx, "password reset code issued",
		"email", email,
		"code", code,
	)
	return nil
}
