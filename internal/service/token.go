package service

import (
	"time"

	"github.com/iliyamo/lane-dispatch/internal/utils"
)

// DefaultTokenTTL bounds how long a dispatched ticket can sit unconfirmed
// before its token lapses.  Expiry is enforced lazily at confirmation
// time; nothing sweeps stale CALLED tickets, operators resolve them.
const DefaultTokenTTL = 15 * time.Minute

// TokenIssuer mints confirmation tokens: 32 random bytes hex-encoded, so
// collisions among live tokens are negligible and values are not
// guessable.  Each issue pairs the token with an absolute expiry instant.
type TokenIssuer struct {
	TTL time.Duration
}

// NewTokenIssuer returns an issuer with the given TTL, falling back to
// DefaultTokenTTL when ttl is not positive.
func NewTokenIssuer(ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{TTL: ttl}
}

// Issue returns a fresh token and its expiry relative to now.
func (i *TokenIssuer) Issue(now time.Time) (string, time.Time, error) {
	token, err := utils.RandomHex(32) // 32 bytes -> 64 hex chars
	if err != nil {
		return "", time.Time{}, err
	}
	return token, now.Add(i.TTL), nil
}
