// Package auth signs restaurant owners in and out of the dashboard.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	pkgAuth "github.com/angelmondragon/tableside-backend/pkg/auth"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/security"
	"github.com/google/uuid"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Me(ctx context.Context, ownerID uuid.UUID) (*OwnerDTO, error)
}

type service struct {
	owners      OwnerRepository
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	allowSignup bool
	now         func() time.Time
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Owners          OwnerRepository
	JWTConfig       config.JWTConfig
	PasswordConfig  config.PasswordConfig
	AllowSelfSignup bool
}

// NewService constructs the auth service.
func NewService(params ServiceParams) (Service, error) {
	if params.Owners == nil {
		return nil, fmt.Errorf("owner repository is required")
	}
	return &service{
		owners:      params.Owners,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		allowSignup: params.AllowSelfSignup,
		now:         time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	if !s.allowSignup {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "self sign-up is disabled")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and email are required")
	}
	if len(req.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	now := s.now().UTC()
	owner := &models.Owner{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		LastLoginAt:  &now,
	}
	if err := s.owners.Create(ctx, owner); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create owner")
	}
	return s.issue(owner, now)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	owner, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if security.NeedsRehash(owner.PasswordHash, s.passwordCfg) {
		hash, err := security.HashPassword(req.Password, s.passwordCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rehash password")
		}
		if err := s.owners.UpdatePasswordHash(ctx, owner.ID, hash); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store upgraded password hash")
		}
		owner.PasswordHash = hash
	}
	now := s.now().UTC()
	if err := s.owners.UpdateLastLogin(ctx, owner.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	owner.LastLoginAt = &now
	return s.issue(owner, now)
}

func (s *service) Me(ctx context.Context, ownerID uuid.UUID) (*OwnerDTO, error) {
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "owner not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup owner")
	}
	return FromModel(owner), nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.Owner, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	owner, err := s.owners.FindByEmail(ctx, strings.ToLower(input))
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup owner")
	}

	valid, err := security.VerifyPassword(password, owner.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return owner, nil
}

func (s *service) issue(owner *models.Owner, now time.Time) (*LoginResponse, error) {
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{OwnerID: owner.ID, Email: owner.Email})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &LoginResponse{
		AccessToken: token,
		ExpiresAt:   now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute),
		Owner:       FromModel(owner),
	}, nil
}
