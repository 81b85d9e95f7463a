// Package auth supplies credentials for the push channel. Tokens are issued
// elsewhere; this package only reads them and rejects ones that are already
// expired.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated means no usable credential is available. Connection
// attempts that hit it are not retried.
var ErrUnauthenticated = errors.New("unauthenticated")

// Provider returns a fresh credential. It is called before every dial.
type Provider interface {
	Credential(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Credential(ctx context.Context) (string, error) { return f(ctx) }

// Static always returns the same token.
type Static string

func (s Static) Credential(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}
	return string(s), nil
}

// File reads the token from a file on every call, so a rotated token is
// picked up on the next reconnect.
type File struct {
	Path string
}

func (f File) Credential(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("%w: read token file: %v", ErrUnauthenticated, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: token file %s is empty", ErrUnauthenticated, f.Path)
	}
	return token, nil
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Name string
}

func (e Env) Credential(context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(e.Name))
	if token == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrUnauthenticated, e.Name)
	}
	return token, nil
}

// Checked wraps p and rejects JWTs whose exp claim has passed. Opaque tokens
// are passed through untouched.
func Checked(p Provider, now func() time.Time) Provider {
	if now == nil {
		now = time.Now
	}
	return ProviderFunc(func(ctx context.Context) (string, error) {
		token, err := p.Credential(ctx)
		if err != nil {
			return "", err
		}
		if exp, ok := Expiry(token); ok && !now().Before(exp) {
			return "", fmt.Errorf("%w: token expired at %s", ErrUnauthenticated, exp.Format(time.RFC3339))
		}
		return token, nil
	})
}

func parseClaims(token string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// Expiry returns the exp claim of a JWT. ok is false for opaque tokens and
// JWTs without exp.
func Expiry(token string) (time.Time, bool) {
	claims, ok := parseClaims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Subject returns the sub claim of a JWT.
func Subject(token string) (string, error) {
	claims, ok := parseClaims(token)
	if !ok {
		return "", fmt.Errorf("%w: credential is not a JWT", ErrUnauthenticated)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: credential has no subject", ErrUnauthenticated)
	}
	return sub, nil
}

// IsUnauthenticated reports whether err is an authentication failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
