package middleware

import (
	"net/http"
	"time"
)

// Cookie names used by the pipeline and the verification flows.
const (
	SessionCookieName           = "session"
	PasswordResetCookieName     = "password_reset_session"
	EmailVerificationCookieName = "email_verification"
)

// CookieManager writes and deletes the auth cookies with a fixed
// attribute set: HttpOnly, Path=/, SameSite=Lax, Secure outside
// development. Deletion uses the same attributes with an empty value so
// browsers match the original cookie.
type CookieManager struct {
	// Secure marks issued cookies Secure. Leave false only in local
	// development over plain HTTP.
	Secure bool
}

func (c CookieManager) SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, c.cookie(SessionCookieName, token, int(time.Until(expiresAt).Seconds())))
}

func (c CookieManager) DeleteSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(SessionCookieName, "", -1))
}

func (c CookieManager) SetPasswordResetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, c.cookie(PasswordResetCookieName, token, int(time.Until(expiresAt).Seconds())))
}

func (c CookieManager) DeletePasswordResetCookie(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(PasswordResetCookieName, "", -1))
}

// SetEmailVerificationCookie stores the request ID of a pending email
// verification so the client can tell a request is in flight. The value
// is only an identifier; the one-time code never reaches a cookie.
func (c CookieManager) SetEmailVerificationCookie(w http.ResponseWriter, requestID string, expiresAt time.Time) {
	http.SetCookie(w, c.cookie(EmailVerificationCookieName, requestID, int(time.Until(expiresAt).Seconds())))
}

func (c CookieManager) DeleteEmailVerificationCookie(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(EmailVerificationCookieName, "", -1))
}

func (c CookieManager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.Secure,
	}
}
