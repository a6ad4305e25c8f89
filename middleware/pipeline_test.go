package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authgate "github.com/atrium-labs/authgate"
	"github.com/atrium-labs/authgate/ratelimit"
)

type memProvider struct {
	mu      sync.Mutex
	byID    map[string]*authgate.UserRecord
	byEmail map[string]*authgate.UserRecord
}

func newMemProvider() *memProvider {
	return &memProvider{
		byID:    make(map[string]*authgate.UserRecord),
		byEmail: make(map[string]*authgate.UserRecord),
	}
}

func (p *memProvider) GetUserByID(_ context.Context, userID string) (*authgate.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", authgate.ErrUserNotFound, userID)
	}
	clone := *u
	return &clone, nil
}

func (p *memProvider) GetUserByEmail(_ context.Context, email string) (*authgate.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: %s", authgate.ErrUserNotFound, email)
	}
	clone := *u
	return &clone, nil
}

func (p *memProvider) CreateUser(_ context.Context, input authgate.CreateUserInput) (*authgate.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[input.Email]; ok {
		return nil, errors.New("duplicate email")
	}
	u := &authgate.UserRecord{
		UserID:       input.UserID,
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		RecoveryCode: input.RecoveryCode,
	}
	p.byID[u.UserID] = u
	p.byEmail[u.Email] = u
	clone := *u
	return &clone, nil
}

func (p *memProvider) UpdatePasswordHash(_ context.Context, userID string, newHash string) error {
	return p.update(userID, func(u *authgate.UserRecord) { u.PasswordHash = newHash })
}

func (p *memProvider) UpdateEmailAndSetVerified(_ context.Context, userID string, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authgate.ErrUserNotFound
	}
	delete(p.byEmail, u.Email)
	u.Email = email
	u.EmailVerified = true
	p.byEmail[email] = u
	return nil
}

func (p *memProvider) UpdateRecoveryCode(_ context.Context, userID string, encrypted []byte) error {
	return p.update(userID, func(u *authgate.UserRecord) { u.RecoveryCode = encrypted })
}

func (p *memProvider) UpdateTOTPKey(_ context.Context, userID string, encrypted []byte) error {
	return p.update(userID, func(u *authgate.UserRecord) { u.TOTPKey = encrypted })
}

func (p *memProvider) ClearTOTPKey(_ context.Context, userID string) error {
	return p.update(userID, func(u *authgate.UserRecord) { u.TOTPKey = nil })
}

func (p *memProvider) update(userID string, fn func(*authgate.UserRecord)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return authgate.ErrUserNotFound
	}
	fn(u)
	return nil
}

func newTestEngine(t *testing.T) *authgate.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	key := make([]byte, 32)
	engine, err := authgate.New().
		WithRedis(client).
		WithUserProvider(newMemProvider()).
		WithEncryptionKey(key).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestPipelineRateLimitPerClient(t *testing.T) {
	engine := newTestEngine(t)
	mw := Pipeline(engine, Options{Bucket: ratelimit.NewRefillingTokenBucket(2, time.Hour)})
	handler := mw(okHandler())

	get := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get("203.0.113.7"); code != http.StatusOK {
		t.Fatalf("first request: got %d", code)
	}
	if code := get("203.0.113.7"); code != http.StatusOK {
		t.Fatalf("second request: got %d", code)
	}
	if code := get("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", code)
	}
	if code := get("203.0.113.8"); code != http.StatusOK {
		t.Fatalf("other client: got %d, want 200", code)
	}
}

func TestPipelineWriteCostsMore(t *testing.T) {
	engine := newTestEngine(t)
	mw := Pipeline(engine, Options{Bucket: ratelimit.NewRefillingTokenBucket(3, time.Hour)})
	handler := mw(okHandler())

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := post(); code != http.StatusOK {
		t.Fatalf("first POST: got %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Fatalf("second POST: got %d, want 429", code)
	}
}

func TestPipelineRemoteAddrFallback(t *testing.T) {
	engine := newTestEngine(t)
	mw := Pipeline(engine, Options{Bucket: ratelimit.NewRefillingTokenBucket(1, time.Hour)})
	handler := mw(okHandler())

	get := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get("10.0.0.1:40001"); code != http.StatusOK {
		t.Fatalf("first request: got %d", code)
	}
	// Same host on a new port, still the same client.
	if code := get("10.0.0.1:40002"); code != http.StatusTooManyRequests {
		t.Fatalf("same host: got %d, want 429", code)
	}
	if code := get("10.0.0.2:40001"); code != http.StatusOK {
		t.Fatalf("other host: got %d, want 200", code)
	}
}

func TestPipelineAnonymousRequest(t *testing.T) {
	engine := newTestEngine(t)
	handler := Pipeline(engine, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := Auth(r.Context())
		if rc.User != nil || rc.Session != nil {
			t.Errorf("anonymous request carries auth state: %+v", rc)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Auth-State-Changed"); got != "" {
		t.Errorf("unexpected X-Auth-State-Changed: %q", got)
	}
}

func TestPipelineValidSession(t *testing.T) {
	engine := newTestEngine(t)
	reg, err := engine.Register(context.Background(), authgate.RegisterInput{
		Email:    "ada@example.com",
		Username: "ada",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	handler := Pipeline(engine, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := Auth(r.Context())
		if rc.User == nil || rc.User.Email != "ada@example.com" {
			t.Errorf("user not resolved: %+v", rc.User)
		}
		if rc.Session == nil || rc.Session.ID != reg.Session.ID {
			t.Errorf("session not resolved: %+v", rc.Session)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: reg.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	// A fresh session is far outside the renewal window, so the response
	// must not touch the cookie or disable caching.
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			t.Errorf("cookie re-issued on a steady-state request: %v", c)
		}
	}
	if got := rec.Header().Get("X-Auth-State-Changed"); got != "" {
		t.Errorf("X-Auth-State-Changed = %q, want unset", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control = %q, want unset", got)
	}
}

func TestPipelineSteadyStateStaysCacheable(t *testing.T) {
	engine := newTestEngine(t)
	reg, err := engine.Register(context.Background(), authgate.RegisterInput{
		Email:    "ada@example.com",
		Username: "ada",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	handler := Pipeline(engine, Options{})(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: reg.Token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i, rec.Code)
		}
		if got := rec.Header().Get("X-Auth-State-Changed"); got != "" {
			t.Errorf("request %d: X-Auth-State-Changed = %q, want unset", i, got)
		}
		if got := rec.Header().Get("Cache-Control"); got != "" {
			t.Errorf("request %d: Cache-Control = %q, want unset", i, got)
		}
	}
}

func TestPipelineRenewalReissuesCookie(t *testing.T) {
	// A renewal window as wide as the TTL makes every validation renew.
	cfg := authgate.DefaultConfig()
	cfg.Session.RenewalWindow = cfg.Session.TTL

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(newMemProvider()).
		WithEncryptionKey(make([]byte, 32)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	reg, err := engine.Register(context.Background(), authgate.RegisterInput{
		Email:    "ada@example.com",
		Username: "ada",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	handler := Pipeline(engine, Options{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: reg.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	cookie := findCookie(t, rec.Result(), SessionCookieName)
	if cookie.Value != reg.Token {
		t.Errorf("re-issued cookie value = %q, want the original token", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie not HttpOnly")
	}
	if cookie.MaxAge <= 0 {
		t.Errorf("re-issued cookie MaxAge = %d, want positive", cookie.MaxAge)
	}
	if got := rec.Header().Get("X-Auth-State-Changed"); got != "1" {
		t.Errorf("X-Auth-State-Changed = %q, want 1", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestPipelineInvalidCookieIsCleared(t *testing.T) {
	engine := newTestEngine(t)
	handler := Pipeline(engine, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc := Auth(r.Context()); rc.Session != nil {
			t.Errorf("stale cookie resolved to a session: %+v", rc.Session)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "nolongervalidtoken"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	cookie := findCookie(t, rec.Result(), SessionCookieName)
	if cookie.Value != "" {
		t.Errorf("deletion cookie value = %q, want empty", cookie.Value)
	}
	if cookie.MaxAge >= 0 {
		t.Errorf("deletion cookie MaxAge = %d, want negative", cookie.MaxAge)
	}
	if got := rec.Header().Get("X-Auth-State-Changed"); got != "1" {
		t.Errorf("X-Auth-State-Changed = %q, want 1", got)
	}
}

func TestPipelineLogoutLeavesStaleCookie(t *testing.T) {
	engine := newTestEngine(t)
	handler := Pipeline(engine, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := Auth(r.Context())
		if rc.User == nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	reg, err := engine.Register(context.Background(), authgate.RegisterInput{
		Email:    "ada@example.com",
		Username: "ada",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: reg.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated request got %d, want 200", rec.Code)
	}

	if err := engine.Logout(context.Background(), reg.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: reg.Token})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale-cookie request got %d, want 401", rec.Code)
	}
	cookie := findCookie(t, rec.Result(), SessionCookieName)
	if cookie.MaxAge >= 0 {
		t.Errorf("stale cookie was not cleared, MaxAge = %d", cookie.MaxAge)
	}
}

func findCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %q cookie in response", name)
	return nil
}
