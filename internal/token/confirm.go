// Package token issues and verifies the signed capability tokens embedded in
// confirmation links. Tokens are stateless: validity is a function of the
// signature and an age window only, so forged or stale links are rejected
// without touching the database. A token is not single-use; redemption
// idempotency is enforced by the resolution ledger's settle step.
package token

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Audience labels the signing context so confirm tokens can never be replayed
// against other token surfaces sharing a secret.
const Audience = "solution-links"

// DefaultMaxAge is the validity window for confirmation links.
const DefaultMaxAge = 7 * 24 * time.Hour

var (
	// ErrExpired marks a structurally valid token past its age window.
	ErrExpired = errors.New("confirmation token expired")
	// ErrBadSignature marks a token that fails signature or shape checks.
	ErrBadSignature = errors.New("confirmation token signature invalid")
)

// Ref is the identity triple a confirmation token binds.
type Ref struct {
	TicketID   string
	SolutionID int64
	AttemptID  int64
}

// Service signs and verifies confirmation tokens.
type Service struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewService builds a token service around a server-held secret.
func NewService(secret string, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

type confirmClaims struct {
	TicketID   string `json:"tid"`
	SolutionID int64  `json:"sid"`
	AttemptID  int64  `json:"aid"`
	jwt.RegisteredClaims
}

// Issue serializes and signs the identity triple plus issuance time.
func (s *Service) Issue(ref Ref) (string, error) {
	now := s.now()
	claims := &confirmClaims{
		TicketID:   ref.TicketID,
		SolutionID: ref.SolutionID,
		AttemptID:  ref.AttemptID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{Audience},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, audience and age, and returns the bound triple.
// Expiry is evaluated at verification time against the issued-at claim, so
// the window can be tightened without reissuing tokens.
func (s *Service) Verify(tokenStr string) (Ref, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &confirmClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return s.secret, nil
	}, jwt.WithAudience(Audience))
	if err != nil {
		return Ref{}, ErrBadSignature
	}

	claims, ok := parsed.Claims.(*confirmClaims)
	if !ok || !parsed.Valid {
		return Ref{}, ErrBadSignature
	}
	if claims.IssuedAt == nil {
		return Ref{}, ErrBadSignature
	}
	if s.now().Sub(claims.IssuedAt.Time) > s.maxAge {
		return Ref{}, ErrExpired
	}
	return Ref{
		TicketID:   claims.TicketID,
		SolutionID: claims.SolutionID,
		AttemptID:  claims.AttemptID,
	}, nil
}
