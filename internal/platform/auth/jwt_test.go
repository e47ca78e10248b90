package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	verifier, err := NewJWTVerifier("s3cret", "storefront")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	raw, err := verifier.IssueToken("user-1", []string{"staff"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	token, err := verifier.VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if token.UID != "user-1" || token.Issuer != "storefront" {
		t.Fatalf("unexpected token %+v", token)
	}
	if roles := rolesFromClaims(token.Claims, defaultRoleClaim); len(roles) != 1 || roles[0] != RoleStaff {
		t.Fatalf("expected staff role, got %v", roles)
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	verifier, _ := NewJWTVerifier("s3cret", "storefront")
	other, _ := NewJWTVerifier("different", "storefront")
	foreignIssuer, _ := NewJWTVerifier("s3cret", "elsewhere")

	expired, _ := verifier.IssueToken("user-1", nil, -time.Minute)
	wrongKey, _ := other.IssueToken("user-1", nil, time.Hour)
	wrongIssuer, _ := foreignIssuer.IssueToken("user-1", nil, time.Hour)
	noSubject, _ := verifier.IssueToken("", nil, time.Hour)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte("s3cret"))

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "expired", raw: expired, want: ErrTokenExpired},
		{name: "wrong key", raw: wrongKey, want: ErrTokenInvalid},
		{name: "wrong issuer", raw: wrongIssuer, want: ErrTokenInvalid},
		{name: "no subject", raw: noSubject, want: ErrTokenInvalid},
		{name: "unexpected alg", raw: hs512, want: ErrTokenInvalid},
		{name: "garbage", raw: "not-a-token", want: ErrTokenInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := verifier.VerifyIDToken(context.Background(), tc.raw); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier("  ", ""); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
