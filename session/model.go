package session

// Flags carries the per-session booleans fixed at creation time.
type Flags struct {
	TwoFactorVerified bool
}

// Session is a single authenticated browser session. ID is the hex-encoded
// SHA-256 of the bearer token; the raw token never appears here.
type Session struct {
	ID     string
	UserID string

	TwoFactorVerified bool

	CreatedAt int64 // unix seconds
	ExpiresAt int64 // unix seconds

	// Renewed is set by Validate when it extended the expiry. Not
	// persisted.
	Renewed bool
}
