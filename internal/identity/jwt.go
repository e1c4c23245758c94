package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
)

// Claims are the access-token claims issued by the external auth service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 access tokens. Issuance lives outside this core;
// IssueToken exists for tests and local tooling.
type JWTResolver struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTResolver(signingKey, issuer, audience string) *JWTResolver {
	return &JWTResolver{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "missing token")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	if r.audience != "" {
		opts = append(opts, jwt.WithAudience(r.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return r.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "token has expired")
		}
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token claims")
	}
	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token subject")
	}
	role := Role(claims.Role)
	if !role.IsValid() {
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token role")
	}
	return Identity{ID: userID, Role: role}, nil
}

// IssueToken signs a token for who that expires after ttl.
func (r *JWTResolver) IssueToken(who Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(who.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   who.ID.String(),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if r.audience != "" {
		claims.Audience = jwt.ClaimStrings{r.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.signingKey)
}
