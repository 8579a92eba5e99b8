package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenScope is a capability granted by a token
type TokenScope string

const (
	ScopeRead   TokenScope = "read"
	ScopeExport TokenScope = "export"
)

// ValidScope reports whether s is a known scope
func ValidScope(s TokenScope) bool {
	return s == ScopeRead || s == ScopeExport
}

// Token is an opaque bearer credential scoped to one stream.
// Only the SHA-256 of the secret is persisted; Secret is set on the
// value returned from issuance and never again.
type Token struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	StreamID    uuid.UUID    `json:"stream_id" db:"stream_id"`
	Name        string       `json:"name" db:"name"`
	Secret      string       `json:"token,omitempty" db:"-"`
	SecretHash  string       `json:"-" db:"token_hash"`
	Prefix      string       `json:"prefix" db:"token_prefix"`
	Scope       []TokenScope `json:"scope" db:"scope"`
	ExpiresAt   time.Time    `json:"expires_at" db:"expires_at"`
	OneTime     bool         `json:"one_time" db:"one_time"`
	Revoked     bool         `json:"revoked" db:"revoked"`
	AccessCount int64        `json:"access_count" db:"access_count"`
	LastUsed    *time.Time   `json:"last_used,omitempty" db:"last_used"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Token model
func (Token) TableName() string {
	return "tokens"
}

// HasScope reports whether the token grants s
func (t *Token) HasScope(s TokenScope) bool {
	for _, granted := range t.Scope {
		if granted == s {
			return true
		}
	}
	return false
}

// Exhausted reports whether a one-time token has already been used
func (t *Token) Exhausted() bool {
	return t.OneTime && t.AccessCount >= 1
}

// Expired reports whether the token's own expiry has passed
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Redacted returns a copy without the secret
func (t *Token) Redacted() *Token {
	c := *t
	c.Secret = ""
	return &c
}
