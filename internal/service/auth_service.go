package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/agriai/server/internal/auth"
	"github.com/agriai/server/internal/models"
)

// ---- Repository contract ----------------------------------------------------

// UserRepository is the slice of persistence the auth flow needs.
type UserRepository interface {
	Insert(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, req models.UpdateProfileRequest) (models.User, error)
}

// ---- Interface ----------------------------------------------------------------

// AuthService handles registration, login and profile management.
type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.User, auth.TokenPair, error)
	Login(ctx context.Context, req models.LoginRequest) (models.User, auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Profile(ctx context.Context, userID string) (models.User, error)
	UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (models.User, error)
}

// ---- Implementation -----------------------------------------------------------

type authService struct {
	users  UserRepository
	tokens *auth.Manager
}

// NewAuthService wires its dependencies.
func NewAuthService(users UserRepository, tokens *auth.Manager) AuthService {
	return &authService{users: users, tokens: tokens}
}

func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (models.User, auth.TokenPair, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, auth.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := models.User{
		FullName:          strings.TrimSpace(req.FullName),
		Email:             normalizeEmail(req.Email),
		PasswordHash:      string(hash),
		Region:            strings.TrimSpace(req.Region),
		PreferredLanguage: "en",
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.users.Insert(ctx, &user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, auth.TokenPair{}, ErrEmailTaken
		}
		return models.User{}, auth.TokenPair{}, fmt.Errorf("insert user: %w", err)
	}

	pair, err := s.tokens.GeneratePair(user.ID.Hex())
	if err != nil {
		return models.User{}, auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return user, pair, nil
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest) (models.User, auth.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Same error as a bad password so emails cannot be probed.
			return models.User{}, auth.TokenPair{}, ErrInvalidCredentials
		}
		return models.User{}, auth.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return models.User{}, auth.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.tokens.GeneratePair(user.ID.Hex())
	if err != nil {
		return models.User{}, auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return user, pair, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return auth.TokenPair{}, ErrInvalidToken
	}

	// The account may have been deleted since the token was issued.
	if _, err := s.Profile(ctx, claims.UserID); err != nil {
		return auth.TokenPair{}, ErrInvalidToken
	}

	pair, err := s.tokens.GeneratePair(claims.UserID)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}

func (s *authService) Profile(ctx context.Context, userID string) (models.User, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, ErrNotFound
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (models.User, error) {
	if req.FullName == nil && req.Region == nil && req.PreferredLanguage == nil {
		return models.User{}, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, ErrNotFound
	}

	user, err := s.users.UpdateProfile(ctx, id, req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
