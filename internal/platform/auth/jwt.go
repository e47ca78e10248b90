package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
)

// JWTVerifier verifies HS256 bearer tokens signed with a shared secret. It
// serves deployments that do not front the API with Firebase Auth.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// NewJWTVerifier constructs a verifier. An empty issuer disables the iss check.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		now:    time.Now,
	}, nil
}

// VerifyIDToken validates the signature and standard claims and returns the
// decoded token in the same shape the Firebase verifier produces.
func (v *JWTVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	if v == nil {
		return nil, errors.New("auth: jwt verifier not initialised")
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		var validation *jwt.ValidationError
		if errors.As(err, &validation) && validation.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	token := &firebaseauth.Token{
		UID:    subject,
		Claims: map[string]any(claims),
	}
	if iss, ok := claims["iss"].(string); ok {
		token.Issuer = iss
	}
	if exp, ok := claims["exp"].(float64); ok {
		token.Expires = int64(exp)
	}
	if iat, ok := claims["iat"].(float64); ok {
		token.IssuedAt = int64(iat)
	}
	return token, nil
}

// IssueToken signs a token for subject carrying roles, valid for ttl. It is
// used by operational tooling and tests.
func (v *JWTVerifier) IssueToken(subject string, roles []string, ttl time.Duration) (string, error) {
	if v == nil {
		return "", errors.New("auth: jwt verifier not initialised")
	}
	now := v.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if len(roles) > 0 {
		claims[defaultRoleClaim] = roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
