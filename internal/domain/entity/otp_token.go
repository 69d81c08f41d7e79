package entity

import "time"

// OtpPurpose scopes a verification challenge to the flow that created it.
type OtpPurpose string

const (
	PurposeRegister OtpPurpose = "register"
	PurposeReset    OtpPurpose = "reset"
)

// Valid reports whether the purpose is one the engine knows about.
func (p OtpPurpose) Valid() bool {
	return p == PurposeRegister || p == PurposeReset
}

// StagedRegistration holds the not-yet-committed account data for a
// registration challenge. The password is hashed before it is staged;
// plaintext never reaches the store.
type StagedRegistration struct {
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
}

// OtpToken is a short-lived verification challenge, at most one live per
// (email, purpose) scope key. The stored code is a salted hash, never the
// code itself.
type OtpToken struct {
	Email       string     `json:"email"`
	Purpose     OtpPurpose `json:"purpose"`
	CodeHash    string     `json:"code_hash"`
	CodeSalt    string     `json:"code_salt"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`

	// Verified is set by the reset flow once the code checks out; the final
	// password replacement consumes the row. Unused for registration.
	Verified bool `json:"verified"`

	// Staged is present only for purpose=register.
	Staged *StagedRegistration `json:"staged,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the challenge is past its absolute expiry.
// The store reclaims expired rows on its own, but deletion is not
// instantaneous, so callers must still check.
func (t *OtpToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// AttemptsExhausted reports whether the attempt cap has been reached.
func (t *OtpToken) AttemptsExhausted() bool {
	return t.Attempts >= t.MaxAttempts
}
