package authgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVerificationRequestCarriesRequestID(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")
	if reg.Verification == nil {
		t.Fatal("registration did not surface the initial verification request")
	}
	if reg.Verification.RequestID == "" {
		t.Error("initial verification request has no ID")
	}
	if reg.Verification.Email != "ada@example.com" {
		t.Errorf("verification email = %q, want ada@example.com", reg.Verification.Email)
	}
	if reg.Verification.ExpiresAt <= time.Now().Unix() {
		t.Error("verification request already expired at issue time")
	}

	// A resend supersedes the old request under a fresh ID.
	next, err := engine.RequestEmailVerification(ctx, reg.User.UserID, "ada@example.com")
	if err != nil {
		t.Fatalf("RequestEmailVerification: %v", err)
	}
	if next.RequestID == "" || next.RequestID == reg.Verification.RequestID {
		t.Errorf("superseding request ID = %q, want a fresh one", next.RequestID)
	}
}

func TestVerifyEmailCodeSuccess(t *testing.T) {
	engine, provider, sender := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")
	code := sender.lastVerificationCode("ada@example.com")
	if code == "" {
		t.Fatal("no verification code sent at registration")
	}

	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, code); err != nil {
		t.Fatalf("VerifyEmailCode: %v", err)
	}

	user, err := provider.GetUserByID(ctx, reg.User.UserID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !user.EmailVerified {
		t.Error("email not marked verified")
	}

	// The request is single-use.
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("reused code: got %v, want ErrCodeExpired", err)
	}
}

func TestVerifyEmailCodeWrongCode(t *testing.T) {
	engine, provider, _ := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")

	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, "WRONG111"); !errors.Is(err, ErrIncorrectCode) {
		t.Fatalf("got %v, want ErrIncorrectCode", err)
	}

	user, _ := provider.GetUserByID(ctx, reg.User.UserID)
	if user.EmailVerified {
		t.Error("email verified despite wrong code")
	}
}

func TestVerifyEmailCodeMissingRequestResends(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")
	first := sender.lastVerificationCode("ada@example.com")

	// Drop the live request, then submit anything.
	if err := engine.verificationStore.Delete(ctx, reg.User.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, first); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("got %v, want ErrCodeExpired", err)
	}

	// A replacement code was issued and delivered.
	second := sender.lastVerificationCode("ada@example.com")
	if second == "" || second == first {
		t.Fatalf("no fresh code issued: first=%q second=%q", first, second)
	}
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, second); err != nil {
		t.Fatalf("fresh code rejected: %v", err)
	}
}

func TestRequestEmailVerificationSupersedesAndRateLimits(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")
	first := sender.lastVerificationCode("ada@example.com")

	// Registration consumed one send token; two more fit in the window.
	if _, err := engine.RequestEmailVerification(ctx, reg.User.UserID, "new@example.com"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if _, err := engine.RequestEmailVerification(ctx, reg.User.UserID, "new@example.com"); err != nil {
		t.Fatalf("third request: %v", err)
	}
	if _, err := engine.RequestEmailVerification(ctx, reg.User.UserID, "new@example.com"); !errors.Is(err, ErrSendRateLimited) {
		t.Fatalf("fourth request: got %v, want ErrSendRateLimited", err)
	}

	// The old code was superseded: only the latest one verifies.
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, first); !errors.Is(err, ErrIncorrectCode) {
		t.Fatalf("superseded code: got %v, want ErrIncorrectCode", err)
	}
	latest := sender.lastVerificationCode("new@example.com")
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, latest); err != nil {
		t.Fatalf("latest code rejected: %v", err)
	}
}

func TestVerifyEmailCodeUpdatesAddress(t *testing.T) {
	engine, provider, sender := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")

	// Verification for a changed address rebinds the account email.
	if _, err := engine.RequestEmailVerification(ctx, reg.User.UserID, "new@example.com"); err != nil {
		t.Fatalf("RequestEmailVerification: %v", err)
	}
	code := sender.lastVerificationCode("new@example.com")
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, code); err != nil {
		t.Fatalf("VerifyEmailCode: %v", err)
	}

	user, _ := provider.GetUserByID(ctx, reg.User.UserID)
	if user.Email != "new@example.com" || !user.EmailVerified {
		t.Fatalf("account not rebound to verified address: %+v", user)
	}
}

func TestVerifyEmailCodeAttemptLimit(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")

	for i := 0; i < 5; i++ {
		if err := engine.VerifyEmailCode(ctx, reg.User.UserID, "WRONG111"); !errors.Is(err, ErrIncorrectCode) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	code := sender.lastVerificationCode("ada@example.com")
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, code); !errors.Is(err, ErrVerifyRateLimited) {
		t.Fatalf("got %v, want ErrVerifyRateLimited", err)
	}
}

func TestVerifyEmailCodeInvalidatesPendingResets(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	ctx := context.Background()

	reg := mustRegister(t, engine, "ada@example.com", "ada", "correct horse")

	_, resetToken, err := engine.CreatePasswordResetSession(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("CreatePasswordResetSession: %v", err)
	}

	code := sender.lastVerificationCode("ada@example.com")
	if err := engine.VerifyEmailCode(ctx, reg.User.UserID, code); err != nil {
		t.Fatalf("VerifyEmailCode: %v", err)
	}

	rs, user, err := engine.ValidatePasswordResetToken(ctx, resetToken)
	if err != nil {
		t.Fatalf("ValidatePasswordResetToken: %v", err)
	}
	if rs != nil || user != nil {
		t.Fatal("pending reset session survived email verification")
	}
}
