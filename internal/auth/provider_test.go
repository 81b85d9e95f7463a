package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStaticAndEnv(t *testing.T) {
	ctx := context.Background()

	_, err := Static("").Credential(ctx)
	require.True(t, IsUnauthenticated(err))

	tok, err := Static("abc").Credential(ctx)
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	t.Setenv("CHATSYNC_TEST_TOKEN", " xyz \n")
	tok, err = Env{Name: "CHATSYNC_TEST_TOKEN"}.Credential(ctx)
	require.NoError(t, err)
	require.Equal(t, "xyz", tok)

	_, err = Env{Name: "CHATSYNC_TEST_TOKEN_MISSING"}.Credential(ctx)
	require.True(t, IsUnauthenticated(err))
}

func TestFileIsReadOnEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	p := File{Path: path}

	_, err := p.Credential(context.Background())
	require.True(t, IsUnauthenticated(err))

	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))
	tok, err := p.Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", tok)

	require.NoError(t, os.WriteFile(path, []byte("rotated"), 0o600))
	tok, err = p.Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "rotated", tok)
}

func TestCheckedRejectsExpiredJWT(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	expired := signed(t, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})
	_, err := Checked(Static(expired), clock).Credential(context.Background())
	require.True(t, IsUnauthenticated(err))

	valid := signed(t, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	tok, err := Checked(Static(valid), clock).Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, valid, tok)

	tok, err = Checked(Static("opaque-token"), clock).Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "opaque-token", tok)
}

func TestSubject(t *testing.T) {
	sub, err := Subject(signed(t, jwt.RegisteredClaims{Subject: "user-42"}))
	require.NoError(t, err)
	require.Equal(t, "user-42", sub)

	_, err = Subject("opaque")
	require.True(t, IsUnauthenticated(err))

	_, err = Subject(signed(t, jwt.RegisteredClaims{}))
	require.True(t, IsUnauthenticated(err))
}
