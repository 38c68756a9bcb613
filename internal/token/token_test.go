package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestIssuer(t *testing.T, clock *fakeClock) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(testSecret, time.Hour, WithClock(clock.Now))
	require.NoError(t, err)
	return issuer
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	raw, expiresAt, err := issuer.Issue("alice@example.com", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(15*time.Minute), expiresAt)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Subject)
	assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	raw, _, err := issuer.Issue("alice@example.com", time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = issuer.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestIssueUsesDefaultTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	_, expiresAt, err := issuer.Issue("alice@example.com", 0)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Hour), expiresAt)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	issuer := newTestIssuer(t, clock)
	other, err := NewIssuer(strings.Repeat("z", 40), time.Hour, WithClock(clock.Now))
	require.NoError(t, err)

	raw, _, err := other.Issue("mallory@example.com", time.Minute)
	require.NoError(t, err)

	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{t: time.Now()})

	for _, raw := range []string{"", "not-a-token", "a.b.c", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0."} {
		_, err := issuer.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{t: time.Now()})
	raw, _, err := issuer.Issue("alice@example.com", time.Minute)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	other, _, err := issuer.Issue("bob@example.com", time.Minute)
	require.NoError(t, err)
	parts[1] = strings.Split(other, ".")[1]

	_, err = issuer.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer("short", time.Hour)
	assert.Error(t, err)
}
