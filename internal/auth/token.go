package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"ms-payment-verification/internal/config"
)

// Claims is the part of an access token the service cares about.
type Claims struct {
	Subject string
	Roles   []string
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// OIDCVerifier checks tokens against the issuer's published keys (Keycloak realm).
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	// SkipClientIDCheck: access tokens are issued to the frontend client, not to us
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var claims struct {
		Sub         string      `json:"sub"`
		RealmAccess realmAccess `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return &Claims{Subject: claims.Sub, Roles: claims.RealmAccess.Roles}, nil
}

type hmacClaims struct {
	jwt.RegisteredClaims
	RealmAccess realmAccess `json:"realm_access"`
}

// HMACVerifier validates HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	var claims hmacClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("subject claim not found in token")
	}
	return &Claims{Subject: claims.Subject, Roles: claims.RealmAccess.Roles}, nil
}

// NewVerifier prefers OIDC when an issuer is configured and falls back to the shared secret.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (TokenVerifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		return NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	case cfg.JWTSecret != "":
		return NewHMACVerifier(cfg.JWTSecret), nil
	default:
		return nil, errors.New("neither OIDC_ISSUER nor AUTH_JWT_SECRET is set")
	}
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid Authorization header format")
	}
	return parts[1], nil
}
