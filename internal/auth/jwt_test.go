package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{UserID: "u1", Role: "claimant"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Subject != "u1" {
		t.Fatalf("expected user id u1, got %q / %q", claims.UserID, claims.Subject)
	}

	actor, err := claims.Actor()
	if err != nil {
		t.Fatalf("Actor: %v", err)
	}
	if actor.ID != "u1" || actor.Role != models.RoleClaimant {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParse_RejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	claims := Claims{
		UserID: "u1",
		Role:   "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "u1",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokenStr, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := Parse(secret, tokenStr); err == nil {
		t.Fatalf("expected parse to reject non-HS256 token")
	}
}

func TestParse_RejectsExpiredAndForeignTokens(t *testing.T) {
	secret := []byte("test-secret")

	expired, err := Issue(secret, Claims{UserID: "u1", Role: "owner"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(secret, expired); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	foreign, err := Issue([]byte("other-secret"), Claims{UserID: "u1", Role: "owner"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(secret, foreign); err == nil {
		t.Fatal("expected token signed with another key to be rejected")
	}
}

func TestClaimsActorRejectsUnknownRole(t *testing.T) {
	c := &Claims{UserID: "u1", Role: "admin"}
	if _, err := c.Actor(); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}

	legacy := &Claims{UserID: "u1", Role: "tenant"}
	actor, err := legacy.Actor()
	if err != nil || actor.Role != models.RoleClaimant {
		t.Fatalf("expected legacy tag to map to claimant, got %+v %v", actor, err)
	}
}
