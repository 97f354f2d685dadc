package assets

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/inklet/inklet/pkg/types"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a/b.js", "a/b.js"},
		{"./a/b.js", "a/b.js"},
		{"././a.js", "a.js"},
		{"/a.js", "a.js"},
		{"  ./dist/app.js  ", "dist/app.js"},
	}
	for _, tc := range cases {
		got, err := NormalizePath(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "   ", "./", "../secret", "a/../b", `a\b.js`} {
		_, err := NormalizePath(bad)
		require.ErrorIs(t, err, types.ErrInvalidInput, "path %q", bad)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret")

	signed, err := signer.SignURL(GlobalScope(), "p", "1", "./a/b.js", 10*time.Second)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, "/api/plugin-assets?"))

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "global", q.Get("scope"))
	require.Equal(t, "a/b.js", q.Get("path"))
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	require.NoError(t, err)

	require.True(t, signer.VerifyURL(GlobalScope(), "p", "1", "a/b.js", exp, q.Get("sig")))
	// The pre-normalization spelling verifies too.
	require.True(t, signer.VerifyURL(GlobalScope(), "p", "1", "./a/b.js", exp, q.Get("sig")))
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := NewSigner("test-secret")
	owner := uuid.New()
	scope := UserScope(owner, "sharetok")

	signed, err := signer.SignURL(scope, "plugin", "1.2.3", "dist/main.js", time.Minute)
	require.NoError(t, err)
	q, err := url.ParseQuery(strings.SplitN(signed, "?", 2)[1])
	require.NoError(t, err)
	exp, _ := strconv.ParseInt(q.Get("exp"), 10, 64)
	sig := q.Get("sig")

	require.True(t, signer.VerifyURL(scope, "plugin", "1.2.3", "dist/main.js", exp, sig))

	// Every mutated component must fail.
	require.False(t, signer.VerifyURL(scope, "plugin", "2.0.0", "dist/main.js", exp, sig))
	require.False(t, signer.VerifyURL(scope, "other", "1.2.3", "dist/main.js", exp, sig))
	require.False(t, signer.VerifyURL(scope, "plugin", "1.2.3", "dist/other.js", exp, sig))
	require.False(t, signer.VerifyURL(scope, "plugin", "1.2.3", "dist/main.js", exp+1, sig))
	require.False(t, signer.VerifyURL(UserScope(owner, "othertok"), "plugin", "1.2.3", "dist/main.js", exp, sig))
	require.False(t, signer.VerifyURL(UserScope(uuid.New(), "sharetok"), "plugin", "1.2.3", "dist/main.js", exp, sig))
	require.False(t, signer.VerifyURL(GlobalScope(), "plugin", "1.2.3", "dist/main.js", exp, sig))
	require.False(t, signer.VerifyURL(scope, "plugin", "1.2.3", "dist/main.js", exp, "not-base64!!"))

	// A different key never verifies.
	require.False(t, NewSigner("other-secret").VerifyURL(scope, "plugin", "1.2.3", "dist/main.js", exp, sig))
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := NewSigner("test-secret")
	now := time.Now()
	signer.now = func() time.Time { return now }

	signed, err := signer.SignURL(GlobalScope(), "p", "1", "a.js", 10*time.Second)
	require.NoError(t, err)
	q, _ := url.ParseQuery(strings.SplitN(signed, "?", 2)[1])
	exp, _ := strconv.ParseInt(q.Get("exp"), 10, 64)
	sig := q.Get("sig")

	require.True(t, signer.VerifyURL(GlobalScope(), "p", "1", "a.js", exp, sig))

	// Advance the clock past the expiry.
	signer.now = func() time.Time { return now.Add(11 * time.Second) }
	require.False(t, signer.VerifyURL(GlobalScope(), "p", "1", "a.js", exp, sig))

	// exp == now is already expired.
	signer.now = func() time.Time { return time.Unix(exp, 0) }
	require.False(t, signer.VerifyURL(GlobalScope(), "p", "1", "a.js", exp, sig))
}

func TestUserScopeURLCarriesOwnerAndShare(t *testing.T) {
	signer := NewSigner("k")
	owner := uuid.New()

	signed, err := signer.SignURL(UserScope(owner, "tok"), "p", "1", "a.js", time.Minute)
	require.NoError(t, err)
	q, err := url.ParseQuery(strings.SplitN(signed, "?", 2)[1])
	require.NoError(t, err)
	require.Equal(t, "user", q.Get("scope"))
	require.Equal(t, owner.String(), q.Get("owner"))
	require.Equal(t, "tok", q.Get("share"))

	// Empty share token is still part of the canonical payload: a URL
	// minted without one must not verify with one.
	signed2, err := signer.SignURL(UserScope(owner, ""), "p", "1", "a.js", time.Minute)
	require.NoError(t, err)
	q2, _ := url.ParseQuery(strings.SplitN(signed2, "?", 2)[1])
	exp2, _ := strconv.ParseInt(q2.Get("exp"), 10, 64)
	require.True(t, signer.VerifyURL(UserScope(owner, ""), "p", "1", "a.js", exp2, q2.Get("sig")))
	require.False(t, signer.VerifyURL(UserScope(owner, "tok"), "p", "1", "a.js", exp2, q2.Get("sig")))
}

func TestSignRejectsUnsafePath(t *testing.T) {
	signer := NewSigner("k")
	_, err := signer.SignURL(GlobalScope(), "p", "1", "../../etc/passwd", time.Minute)
	require.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
}
