package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := NewService("test-secret", 0)
	ref := Ref{TicketID: "tck-1", SolutionID: 42, AttemptID: 7}

	tok, err := svc.Issue(ref)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	got, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := NewService("test-secret", 0)
	tok, err := svc.Issue(Ref{TicketID: "tck-1", SolutionID: 1, AttemptID: 1})
	require.NoError(t, err)

	// Flip a character in the payload segment.
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = svc.Verify(tampered)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", 0)
	verifier := NewService("secret-b", 0)

	tok, err := issuer.Issue(Ref{TicketID: "tck-1", SolutionID: 1, AttemptID: 1})
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", 0)
	_, err := svc.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyExpiresAgainstIssuedAt(t *testing.T) {
	svc := NewService("test-secret", 0)
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return issuedAt }
	tok, err := svc.Issue(Ref{TicketID: "tck-1", SolutionID: 1, AttemptID: 1})
	require.NoError(t, err)

	// Just inside the window.
	svc.now = func() time.Time { return issuedAt.Add(DefaultMaxAge - time.Minute) }
	_, err = svc.Verify(tok)
	assert.NoError(t, err)

	// Past the window.
	svc.now = func() time.Time { return issuedAt.Add(DefaultMaxAge + time.Minute) }
	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyWindowTightensWithoutReissue(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	issuer := NewService("test-secret", 0)
	issuer.now = func() time.Time { return issuedAt }
	tok, err := issuer.Issue(Ref{TicketID: "tck-1", SolutionID: 1, AttemptID: 1})
	require.NoError(t, err)

	strict := NewService("test-secret", time.Hour)
	strict.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }
	_, err = strict.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}
