package auth

import (
	"context"
	"testing"

	"github.com/angelmondragon/tableside-backend/internal/testdb"
	pkgAuth "github.com/angelmondragon/tableside-backend/pkg/auth"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testConfig() (config.JWTConfig, config.PasswordConfig) {
	return config.JWTConfig{Secret: "test-secret", Issuer: "tableside", ExpirationMinutes: 60},
		config.PasswordConfig{ArgonMemoryKB: 8192, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
}

func newTestService(t *testing.T, allowSignup bool) Service {
	t.Helper()
	jwtCfg, pwCfg := testConfig()
	svc, err := NewService(ServiceParams{
		Owners:          NewOwnerRepository(testdb.Open(t)),
		JWTConfig:       jwtCfg,
		PasswordConfig:  pwCfg,
		AllowSelfSignup: allowSignup,
	})
	require.NoError(t, err)
	return svc
}

func TestRegisterThenLogin(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{Name: "Wanjiru", Email: " Owner@Example.com ", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, "owner@example.com", registered.Owner.Email)

	jwtCfg, _ := testConfig()
	claims, err := pkgAuth.ParseAccessToken(jwtCfg, registered.AccessToken)
	require.NoError(t, err)
	require.Equal(t, registered.Owner.ID, claims.OwnerID)

	loggedIn, err := svc.Login(ctx, LoginRequest{Email: "OWNER@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, registered.Owner.ID, loggedIn.Owner.ID)
	require.NotNil(t, loggedIn.Owner.LastLoginAt)

	me, err := svc.Me(ctx, registered.Owner.ID)
	require.NoError(t, err)
	require.Equal(t, "Wanjiru", me.Name)
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "A", Email: "a@example.com", Password: "short"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Register(ctx, RegisterRequest{Name: "A", Email: "a@example.com", Password: "long-enough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterRequest{Name: "B", Email: "A@example.com", Password: "long-enough"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestRegisterDisabled(t *testing.T) {
	svc := newTestService(t, false)
	_, err := svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@example.com", Password: "long-enough"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterRequest{Name: "A", Email: "a@example.com", Password: "long-enough"})
	require.NoError(t, err)

	for _, req := range []LoginRequest{
		{Email: "a@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "long-enough"},
		{Email: "", Password: "long-enough"},
	} {
		_, err := svc.Login(ctx, req)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "request %+v", req)
		require.Equal(t, invalidCredentialsMessage, pkgerrors.As(err).Message())
	}

	_, err = svc.Me(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLoginUpgradesOutdatedHash(t *testing.T) {
	ctx := context.Background()
	owners := NewOwnerRepository(testdb.Open(t))
	jwtCfg, pwCfg := testConfig()

	legacy, err := NewService(ServiceParams{Owners: owners, JWTConfig: jwtCfg, PasswordConfig: pwCfg, AllowSelfSignup: true})
	require.NoError(t, err)
	_, err = legacy.Register(ctx, RegisterRequest{Name: "A", Email: "a@example.com", Password: "long-enough"})
	require.NoError(t, err)

	stronger := pwCfg
	stronger.ArgonTime = 2
	current, err := NewService(ServiceParams{Owners: owners, JWTConfig: jwtCfg, PasswordConfig: stronger})
	require.NoError(t, err)
	_, err = current.Login(ctx, LoginRequest{Email: "a@example.com", Password: "long-enough"})
	require.NoError(t, err)

	owner, err := owners.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.False(t, security.NeedsRehash(owner.PasswordHash, stronger))

	_, err = current.Login(ctx, LoginRequest{Email: "a@example.com", Password: "long-enough"})
	require.NoError(t, err)
}
