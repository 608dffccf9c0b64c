package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "github.com/Mawilis/legal-doc-system-sub010/pkg/domain-errors"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

// Claims represents the JWT claims for service access tokens. TenantID scopes
// every downstream operation; ActorID identifies who performed it in the
// audit ledger.
type Claims struct {
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey []byte, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
	}
}

func (s *JWTService) GenerateAccessToken(
	tenantID domain.TenantID,
	actorID domain.ActorID,
	expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: tenantID.String(),
		ActorID:  actorID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// Scope parses the tenant and actor out of validated claims.
func (c *Claims) Scope() (domain.TenantID, domain.ActorID, error) {
	tenantID, err := domain.ParseTenantID(c.TenantID)
	if err != nil {
		return domain.TenantID{}, domain.ActorID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid tenant claim")
	}
	actorID, err := domain.ParseActorID(c.ActorID)
	if err != nil {
		return domain.TenantID{}, domain.ActorID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid actor claim")
	}
	return tenantID, actorID, nil
}
