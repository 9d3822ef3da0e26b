package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"postboard/internal/config"
	"postboard/internal/model"
	"postboard/internal/repository"
)

// dummyHash is compared against on logins for unknown usernames so both
// failure paths pay for one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("postboard-timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy bcrypt hash: %v", err))
	}
	return h
})

// AuthService handles registration, credential checks and account changes.
type AuthService struct {
	repo   repository.UserRepository
	config *config.Config
}

func NewAuthService(repo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		repo:   repo,
		config: cfg,
	}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	if err := validateCredentials(req.Username, req.Password); err != nil {
		return nil, err
	}

	// Check if username already exists
	exists, err := s.repo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, model.ErrUsernameExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
	}

	// The unique index still arbitrates a race with a concurrent registration.
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrUsernameExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("[AuthService] Register OK: user=%d username=%s", user.ID, user.Username)
	return user, nil
}

// Login authenticates a user with username and password. Unknown users and
// wrong passwords yield the same error.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.User, error) {
	user, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			log.Printf("[AuthService] Login lookup FAILED: username=%s err=%v", req.Username, err)
		}
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(req.Password))
		return nil, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	return user, nil
}

// Logout acknowledges the request. Tokens are stateless; clients drop theirs.
func (s *AuthService) Logout() model.Ack {
	return model.LogoutAck
}

// GetByID retrieves a user by ID.
func (s *AuthService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateAccount replaces the owner's username and password in one write.
func (s *AuthService) UpdateAccount(ctx context.Context, userID int64, req *model.UpdateAccountRequest) (*model.User, error) {
	if err := validateCredentials(req.Username, req.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{ID: userID, Username: req.Username, PasswordHash: string(hashedPassword)}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("[AuthService] UpdateAccount OK: user=%d username=%s", userID, req.Username)
	return user, nil
}

// DeleteAccount removes the user document only. Posts are left to the caller.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	log.Printf("[AuthService] DeleteAccount OK: user=%d", userID)
	return nil
}

// IssueToken signs an access token carrying the user id.
func (s *AuthService) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(time.Duration(s.config.AccessTokenMaxAge) * time.Second).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// TokenMaxAge is the access token lifetime in seconds.
func (s *AuthService) TokenMaxAge() int {
	return s.config.AccessTokenMaxAge
}

func validateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return model.ErrUsernameRequired
	}
	if utf8.RuneCountInString(password) < model.MinPasswordLength {
		return model.ErrPasswordTooShort
	}
	if len(password) > model.MaxPasswordBytes {
		return model.ErrPasswordTooLong
	}
	return nil
}
