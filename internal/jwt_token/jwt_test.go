package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Mawilis/legal-doc-system-sub010/pkg/domain-errors"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

func newTestService() *JWTService {
	return NewJWTService([]byte("test-signing-key"), "compliance-ledger", "ledger-api")
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestService()
	tenantID := domain.NewTenantID()
	actorID := domain.NewActorID()

	token, err := svc.GenerateAccessToken(tenantID, actorID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	gotTenant, gotActor, err := claims.Scope()
	require.NoError(t, err)
	assert.Equal(t, tenantID, gotTenant)
	assert.Equal(t, actorID, gotActor)
	assert.Equal(t, "compliance-ledger", claims.Issuer)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateAccessToken(domain.NewTenantID(), domain.NewActorID(), -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func TestValidateTokenSignedWithDifferentKey(t *testing.T) {
	token, err := NewJWTService([]byte("other-key"), "compliance-ledger", "ledger-api").
		GenerateAccessToken(domain.NewTenantID(), domain.NewActorID(), time.Hour)
	require.NoError(t, err)

	_, err = newTestService().ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func TestValidateGarbageToken(t *testing.T) {
	_, err := newTestService().ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}
