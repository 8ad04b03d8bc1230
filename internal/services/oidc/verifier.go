package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned for tokens that fail signature or claim validation
var ErrInvalidToken = errors.New("invalid token")

// Verifier checks bearer tokens against the issuer's key set
type Verifier struct {
	jwks    *JWKSManager
	issuer  string
	jwksURL string
	skew    time.Duration
}

// NewVerifier creates a verifier for tokens issued by issuer and signed with keys from jwksURL
func NewVerifier(jwks *JWKSManager, issuer, jwksURL string) *Verifier {
	return &Verifier{
		jwks:    jwks,
		issuer:  issuer,
		jwksURL: jwksURL,
		skew:    30 * time.Second,
	}
}

// Verify validates the token and extracts its identity claims
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	keys, err := v.jwks.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(v.skew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if token.Subject() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &models.JWTClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration().Unix(),
	}
	claims.Email = stringClaim(token, "email")
	claims.Name = stringClaim(token, "name")
	return claims, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
