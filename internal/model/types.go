package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// MFAType is a second-factor verification method.
type MFAType string

const (
	MFATypeUnknown       MFAType = ""
	MFATypeEmail         MFAType = "email"
	MFATypeSMS           MFAType = "sms"
	MFATypeAuthenticator MFAType = "authenticator"
)

// ParseMFAType maps a wire value onto the closed set of factors.
// Anything outside the set yields MFATypeUnknown.
func ParseMFAType(s string) MFAType {
	switch t := MFAType(s); t {
	case MFATypeEmail, MFATypeSMS, MFATypeAuthenticator:
		return t
	default:
		return MFATypeUnknown
	}
}

func (t MFAType) String() string { return string(t) }

// Scope is the aggregate authorization label of an access token.
type Scope string

const (
	ScopeNone     Scope = "none"
	ScopeApproved Scope = "approved"
)

// MFAScopes maps each required factor to 0 (pending) or 1 (satisfied).
type MFAScopes map[MFAType]int

// NewMFAScopes returns a map with every factor pending.
func NewMFAScopes(factors ...MFAType) MFAScopes {
	m := make(MFAScopes, len(factors))
	for _, f := range factors {
		m[f] = 0
	}
	return m
}

// Has reports whether the factor is required for the token.
func (m MFAScopes) Has(t MFAType) bool {
	_, ok := m[t]
	return ok
}

// Approved reports whether every factor is satisfied. An empty map is approved.
func (m MFAScopes) Approved() bool {
	for _, v := range m {
		if v != 1 {
			return false
		}
	}
	return true
}

// Scope derives the aggregate label from the factor flags.
func (m MFAScopes) Scope() Scope {
	if m.Approved() {
		return ScopeApproved
	}
	return ScopeNone
}

// Clone returns an independent copy of the map.
func (m MFAScopes) Clone() MFAScopes {
	c := make(MFAScopes, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Value implements driver.Valuer; scopes are stored as a JSON object.
func (m MFAScopes) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal mfa_scopes: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *MFAScopes) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = MFAScopes{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan mfa_scopes: unsupported type %T", src)
	}
	out := MFAScopes{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("unmarshal mfa_scopes: %w", err)
		}
	}
	*m = out
	return nil
}

// AccessToken represents an authenticated session and its per-factor MFA state
type AccessToken struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	MFAScopes MFAScopes `json:"mfa_scopes"`
	Scopes    Scope     `json:"scopes"`
	// Version increments on every update and guards read-modify-write cycles.
	Version int64 `json:"-"`
}

// RefreshToken represents a long-lived credential used to mint new access tokens
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpireAt  time.Time

	// Token is the raw value handed to the client. It is never persisted and
	// is only set on records returned from create or rotate.
	Token string
}

// OtpChallenge represents a single-use code issued for one factor of one access token
type OtpChallenge struct {
	AccessToken string
	MFAType     MFAType
	// MFAToken is the stored (hashed) form of the code.
	MFAToken  string
	CreatedAt time.Time
	ExpireAt  time.Time
	// AttemptCount is the number of wrong codes submitted against this challenge.
	AttemptCount int

	// Code is the plaintext code, present only on a freshly created challenge.
	Code string
}

// Valid reports whether the challenge is still usable at the given instant.
func (c *OtpChallenge) Valid(now time.Time) bool {
	return now.Before(c.ExpireAt)
}
