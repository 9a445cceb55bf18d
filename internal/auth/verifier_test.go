package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/train-control/tcc/internal/config"
)

const testSecret = "test-secret-key"

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "operator-1",
		"roles":  []string{RoleController},
		"scopes": []string{ScopeRead, ScopeControl, ScopeTelemetry},
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func generateRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemData)
}

func TestNewVerifier(t *testing.T) {
	_, pemData := generateRSAKey(t)

	tests := []struct {
		name    string
		config  VerifierConfig
		wantErr bool
	}{
		{"valid RS256 config", VerifierConfig{Algorithm: "RS256", PublicKeyPEM: pemData}, false},
		{"RS256 without key", VerifierConfig{Algorithm: "RS256"}, true},
		{"RS256 with garbage key", VerifierConfig{Algorithm: "RS256", PublicKeyPEM: "not pem"}, true},
		{"valid HS256 config", VerifierConfig{Algorithm: "HS256", SecretKey: testSecret}, false},
		{"HS256 without secret", VerifierConfig{Algorithm: "HS256"}, true},
		{"invalid algorithm", VerifierConfig{Algorithm: "ES256"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier, err := NewVerifier(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewVerifier() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && verifier == nil {
				t.Error("NewVerifier() returned nil verifier")
			}
		})
	}
}

func TestVerifyHS256Token(t *testing.T) {
	verifier, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	claims, err := verifier.VerifyToken(signHS256(t, validClaims()))
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Subject != "operator-1" {
		t.Errorf("Subject = %q, want operator-1", claims.Subject)
	}
	if !HasScopes(claims, ScopeControl) {
		t.Errorf("Scopes = %v, want control", claims.Scopes)
	}
}

func TestVerifyRS256Token(t *testing.T) {
	key, pemData := generateRSAKey(t)
	verifier, err := NewVerifier(VerifierConfig{Algorithm: "RS256", PublicKeyPEM: pemData})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	claims, err := verifier.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Subject != "operator-1" {
		t.Errorf("Subject = %q, want operator-1", claims.Subject)
	}

	// An HS256 token must not be accepted by an RS256 verifier.
	if _, err := verifier.VerifyToken(signHS256(t, validClaims())); err == nil {
		t.Error("Expected algorithm mismatch to be rejected")
	}
}

func TestVerifyTokenRejects(t *testing.T) {
	verifier, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	mutate := func(f func(jwt.MapClaims)) string {
		c := validClaims()
		f(c)
		return signHS256(t, c)
	}

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", "  "},
		{"garbage", "not.a.token"},
		{"wrong key", wrongKey},
		{"expired", mutate(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() })},
		{"no expiry", mutate(func(c jwt.MapClaims) { delete(c, "exp") })},
		{"no subject", mutate(func(c jwt.MapClaims) { delete(c, "sub") })},
		{"no roles", mutate(func(c jwt.MapClaims) { delete(c, "roles") })},
		{"unknown role", mutate(func(c jwt.MapClaims) { c["roles"] = []string{"admin"} })},
		{"empty scopes", mutate(func(c jwt.MapClaims) { c["scopes"] = []string{} })},
		{"unknown scope", mutate(func(c jwt.MapClaims) { c["scopes"] = []string{"drive"} })},
		{"scopes not strings", mutate(func(c jwt.MapClaims) { c["scopes"] = []interface{}{1} })},
		{"scopes not a list", mutate(func(c jwt.MapClaims) { c["scopes"] = "read" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := verifier.VerifyToken(tt.token); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestNewVerifierFromConfig(t *testing.T) {
	v, err := NewVerifierFromConfig(config.AuthConfig{Enabled: true, HMACSecret: testSecret})
	if err != nil {
		t.Fatalf("HS256 from config: %v", err)
	}
	if v.config.Algorithm != "HS256" {
		t.Errorf("Algorithm = %s, want HS256", v.config.Algorithm)
	}

	_, pemData := generateRSAKey(t)
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(pemData), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	v, err = NewVerifierFromConfig(config.AuthConfig{Enabled: true, PublicKeyFile: path})
	if err != nil {
		t.Fatalf("RS256 from config: %v", err)
	}
	if v.config.Algorithm != "RS256" {
		t.Errorf("Algorithm = %s, want RS256", v.config.Algorithm)
	}

	if _, err := NewVerifierFromConfig(config.AuthConfig{PublicKeyFile: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Error("Expected missing key file to fail")
	}
}
