package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	authgate "github.com/atrium-labs/authgate"
	"github.com/atrium-labs/authgate/ratelimit"
	"github.com/atrium-labs/authgate/session"
)

// RequestContext carries the resolved auth state of one request. It is
// always present downstream of [Pipeline]; both fields are nil for
// anonymous requests.
type RequestContext struct {
	User    *authgate.UserRecord
	Session *session.Session
}

type requestContextKey struct{}

// Auth returns the request's auth state. The zero value is returned for
// requests that did not pass through [Pipeline].
func Auth(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{}
}

// Options configures [Pipeline].
type Options struct {
	// Secure marks issued cookies Secure. Leave false only in local
	// development.
	Secure bool

	// Bucket is the shared per-IP request bucket. When nil a bucket of
	// 100 tokens refilling one per second is used.
	Bucket *ratelimit.RefillingTokenBucket
}

// Pipeline returns the standard middleware chain: per-IP rate limiting,
// session cookie resolution, and response post-processing. Requests
// without a resolvable client IP are still charged, keyed by whatever
// RemoteAddr holds.
func Pipeline(engine *authgate.Engine, opts Options) func(http.Handler) http.Handler {
	bucket := opts.Bucket
	if bucket == nil {
		bucket = ratelimit.NewRefillingTokenBucket(100, time.Second)
	}
	cookies := CookieManager{Secure: opts.Secure}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !bucket.Consume(key, requestCost(r.Method)) {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}

			wrapped := &authStateWriter{ResponseWriter: w}
			r = r.WithContext(authgate.WithClientIP(r.Context(), key))

			rc := &RequestContext{}
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				result, err := engine.ValidateSessionToken(r.Context(), cookie.Value)
				if err != nil {
					http.Error(w, "Internal error", http.StatusInternalServerError)
					return
				}
				if result.Session != nil {
					if result.Session.Renewed {
						// The browser only needs a new cookie when the
						// expiry moved.
						cookies.SetSessionCookie(wrapped, cookie.Value, time.Unix(result.Session.ExpiresAt, 0))
					}
					rc.Session = result.Session
					rc.User = result.User
				} else {
					cookies.DeleteSessionCookie(wrapped)
				}
			}

			ctx := context.WithValue(r.Context(), requestContextKey{}, rc)
			next.ServeHTTP(wrapped, r.WithContext(ctx))
		})
	}
}

// clientKey picks the rate-limit key: the first X-Forwarded-For entry
// when present, otherwise the connection's host. Requests are never
// exempted just because the header is missing.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func requestCost(method string) int {
	switch method {
	case http.MethodGet, http.MethodOptions:
		return 1
	default:
		return 3
	}
}

// authStateWriter injects cache-defeating headers before the first write
// when the response changes the session cookie.
type authStateWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *authStateWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if w.sessionCookieTouched() {
			h := w.Header()
			h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
			h.Set("X-Auth-State-Changed", "1")
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *authStateWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *authStateWriter) sessionCookieTouched() bool {
	for _, value := range w.Header().Values("Set-Cookie") {
		if strings.HasPrefix(value, SessionCookieName+"=") {
			return true
		}
	}
	return false
}
