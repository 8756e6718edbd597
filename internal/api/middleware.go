/**
 * @description
 * Auth middleware for the ledger API. Every authenticated route expects a
 * Clerk-issued RS256 bearer token. The middleware verifies the signature
 * against the configured JWKS endpoint, pins audience and issuer when the
 * service is configured with them, and stashes the token subject in the
 * request context for handlers to resolve to a ledger user.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Token parsing and claim validation.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const authSubjectKey contextKey = "authSubject"

// AuthConfig carries the token-verification settings, sourced from the
// service configuration rather than read ad hoc from the environment.
// Audience and Issuer are enforced only when non-empty.
type AuthConfig struct {
	JWKSURL  string
	Audience string
	Issuer   string
}

// RequireAuth validates the bearer token on every request and injects the
// subject claim into the context. Requests without a valid token never reach
// the wrapped handler.
func RequireAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := &jwksKeySet{url: cfg.JWKSURL, client: &http.Client{Timeout: 10 * time.Second}}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, keys.keyFor, opts...)
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, "token has no subject", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

// jwksKeySet resolves token key ids against the identity provider's JWKS
// endpoint.
// TODO: cache the key set between requests; Clerk rotates keys rarely and
// every request currently pays one JWKS fetch.
type jwksKeySet struct {
	url    string
	client *http.Client
}

// keyFor is the jwt.Keyfunc: it looks up the RSA public key matching the
// token's kid header.
func (s *jwksKeySet) keyFor(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header has no kid")
	}

	resp, err := s.client.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch returned status %d", resp.StatusCode)
	}

	var set struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("jwks decode failed: %w", err)
	}

	for _, key := range set.Keys {
		if key.Kid == kid && key.Kty == "RSA" {
			return rsaKeyFromJWK(key.N, key.E)
		}
	}
	return nil, fmt.Errorf("no RSA key with kid %q in jwks", kid)
}

// rsaKeyFromJWK builds an RSA public key from base64url modulus and exponent.
func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("bad exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() <= 1 || exp.Int64() > int64(^uint32(0)>>1) {
		return nil, fmt.Errorf("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp.Int64()),
	}, nil
}

// AuthSubject retrieves the authenticated token subject from the request
// context. Handlers resolve it to an internal user via the service layer.
func AuthSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(authSubjectKey).(string)
	return subject, ok
}
