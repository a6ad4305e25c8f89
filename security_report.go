package authgate

import "time"

// SecurityReport is a static summary of the engine's effective security
// posture, suitable for startup logging or an admin endpoint.
type SecurityReport struct {
	ProductionMode     bool
	SessionTTL         time.Duration
	RenewalWindow      time.Duration
	Argon2             PasswordConfigReport
	TOTPDigits         int
	TOTPPeriod         int
	TOTPSkew           int
	LoginThrottleSteps int
	AuditEnabled       bool
	MetricsEnabled     bool
}

// PasswordConfigReport mirrors the active argon2 cost parameters.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport reports the configuration the engine was built with.
// It reads no backend state.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode: e.config.Security.ProductionMode,
		SessionTTL:     e.config.Session.TTL,
		RenewalWindow:  e.config.Session.RenewalWindow,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		TOTPDigits:         e.config.TOTP.Digits,
		TOTPPeriod:         e.config.TOTP.Period,
		TOTPSkew:           e.config.TOTP.Skew,
		LoginThrottleSteps: len(e.config.Login.ThrottleTimeouts),
		AuditEnabled:       e.config.Audit.Enabled,
		MetricsEnabled:     e.config.Metrics.Enabled,
	}
}
