package auth

import (
	"testing"

	"reelforge/app/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.ExpireTime = 24
	cfg.JWT.Issuer = "reelforge-test"
	return cfg
}

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewJWTService(testConfig())

	token, err := service.GenerateToken(42, "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := service.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Errorf("claims: got %d/%s, want 42/alice", claims.UserID, claims.Username)
	}
	if claims.Issuer != "reelforge-test" {
		t.Errorf("issuer: got %s", claims.Issuer)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewJWTService(testConfig()).GenerateToken(1, "bob")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	other := testConfig()
	other.JWT.Secret = "different-secret"
	if _, err := NewJWTService(other).ValidateToken(token); err == nil {
		t.Error("token signed with another secret was accepted")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	if _, err := NewJWTService(testConfig()).ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token was accepted")
	}
}

func TestRefreshRejectsFreshToken(t *testing.T) {
	service := NewJWTService(testConfig())
	token, _ := service.GenerateToken(1, "bob")

	// The token has 24h left, refreshing it now must be refused.
	if _, err := service.RefreshToken(token); err == nil {
		t.Error("fresh token was refreshed")
	}
}
