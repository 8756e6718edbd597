package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwksFixture struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"keys": []map[string]string{{
				"kid": "test-key",
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   "AQAB",
			}},
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	return &jwksFixture{key: key, server: server}
}

func (f *jwksFixture) signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func authProbe(t *testing.T, cfg AuthConfig, authorization string) (int, string) {
	t.Helper()
	var subject string
	handler := RequireAuth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = AuthSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code, subject
}

func TestRequireAuth_RejectsMissingOrMalformedHeader(t *testing.T) {
	cfg := AuthConfig{JWKSURL: "http://127.0.0.1:0/unreachable"}

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"no bearer prefix", "token-without-scheme"},
		{"empty bearer", "Bearer "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := authProbe(t, cfg, tc.header)
			if code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", code)
			}
		})
	}
}

func TestRequireAuth_ValidTokenInjectsSubject(t *testing.T) {
	fixture := newJWKSFixture(t)
	cfg := AuthConfig{JWKSURL: fixture.server.URL}

	token := fixture.signToken(t, jwt.MapClaims{
		"sub": "user_2abc",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	code, subject := authProbe(t, cfg, "Bearer "+token)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if subject != "user_2abc" {
		t.Fatalf("expected subject in context, got %q", subject)
	}
}

func TestRequireAuth_RejectsExpiredToken(t *testing.T) {
	fixture := newJWKSFixture(t)
	cfg := AuthConfig{JWKSURL: fixture.server.URL}

	token := fixture.signToken(t, jwt.MapClaims{
		"sub": "user_2abc",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	code, _ := authProbe(t, cfg, "Bearer "+token)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", code)
	}
}

func TestRequireAuth_EnforcesConfiguredAudienceAndIssuer(t *testing.T) {
	fixture := newJWKSFixture(t)
	cfg := AuthConfig{
		JWKSURL:  fixture.server.URL,
		Audience: "ledger-api",
		Issuer:   "https://id.example.com",
	}

	good := fixture.signToken(t, jwt.MapClaims{
		"sub": "user_2abc",
		"aud": "ledger-api",
		"iss": "https://id.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if code, _ := authProbe(t, cfg, "Bearer "+good); code != http.StatusOK {
		t.Fatalf("expected pinned token accepted, got %d", code)
	}

	wrongAud := fixture.signToken(t, jwt.MapClaims{
		"sub": "user_2abc",
		"aud": "other-api",
		"iss": "https://id.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if code, _ := authProbe(t, cfg, "Bearer "+wrongAud); code != http.StatusUnauthorized {
		t.Fatalf("expected wrong audience rejected, got %d", code)
	}

	wrongIss := fixture.signToken(t, jwt.MapClaims{
		"sub": "user_2abc",
		"aud": "ledger-api",
		"iss": "https://evil.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if code, _ := authProbe(t, cfg, "Bearer "+wrongIss); code != http.StatusUnauthorized {
		t.Fatalf("expected wrong issuer rejected, got %d", code)
	}
}

func TestRequireAuth_RejectsTokenWithoutSubject(t *testing.T) {
	fixture := newJWKSFixture(t)
	cfg := AuthConfig{JWKSURL: fixture.server.URL}

	token := fixture.signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	code, _ := authProbe(t, cfg, "Bearer "+token)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for subject-less token, got %d", code)
	}
}

func TestRSAKeyFromJWK(t *testing.T) {
	// AQAB is the base64url form of 65537, the common RSA exponent.
	nb := base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x02, 0x03, 0x04})
	key, err := rsaKeyFromJWK(nb, "AQAB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.E != 65537 {
		t.Fatalf("expected exponent 65537, got %d", key.E)
	}

	if _, err := rsaKeyFromJWK("!not-base64!", "AQAB"); err == nil {
		t.Fatal("expected error for invalid modulus")
	}
	if _, err := rsaKeyFromJWK(nb, "AA"); err == nil {
		t.Fatal("expected error for zero exponent")
	}
}
