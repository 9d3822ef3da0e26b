package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"postboard/internal/config"
	"postboard/internal/model"
)

// =============================================================================
// MOCK REPOSITORY
// =============================================================================

type mockUserRepository struct {
	createFn           func(ctx context.Context, user *model.User) error
	getByIDFn          func(ctx context.Context, id int64) (*model.User, error)
	getByUsernameFn    func(ctx context.Context, username string) (*model.User, error)
	existsByUsernameFn func(ctx context.Context, username string) (bool, error)
	updateFn           func(ctx context.Context, user *model.User) error
	deleteFn           func(ctx context.Context, id int64) error

	// Track calls for assertions
	createCalls []*model.User
	updateCalls []*model.User
}

func (m *mockUserRepository) Create(ctx context.Context, user *model.User) error {
	m.createCalls = append(m.createCalls, user)
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if m.existsByUsernameFn != nil {
		return m.existsByUsernameFn(ctx, username)
	}
	return false, nil
}

func (m *mockUserRepository) Update(ctx context.Context, user *model.User) error {
	m.updateCalls = append(m.updateCalls, user)
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepository) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockUserRepository) UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	return map[int64]string{}, nil
}

func (m *mockUserRepository) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", AccessTokenMaxAge: 3600}
}

// =============================================================================
// REGISTER TESTS
// =============================================================================

func TestAuthService_Register_Success(t *testing.T) {
	// ARRANGE
	mockRepo := &mockUserRepository{
		createFn: func(ctx context.Context, user *model.User) error {
			user.ID = 1
			return nil
		},
	}
	svc := NewAuthService(mockRepo, testConfig())

	req := &model.RegisterRequest{Username: "alice", Password: "pw123456"}

	// ACT
	user, err := svc.Register(context.Background(), req)

	// ASSERT
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if user.ID != 1 || user.Username != "alice" {
		t.Errorf("user = %+v", user)
	}

	// Verify password was hashed (not stored in plain text!)
	if user.PasswordHash == req.Password {
		t.Error("password should be hashed, not stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		t.Error("password hash should be valid bcrypt hash")
	}

	if len(mockRepo.createCalls) != 1 {
		t.Errorf("Create called %d times, want 1", len(mockRepo.createCalls))
	}
}

func TestAuthService_Register_UsernameExists(t *testing.T) {
	mockRepo := &mockUserRepository{
		existsByUsernameFn: func(ctx context.Context, username string) (bool, error) {
			return true, nil
		},
	}
	svc := NewAuthService(mockRepo, testConfig())

	user, err := svc.Register(context.Background(), &model.RegisterRequest{Username: "alice", Password: "pw123456"})

	if !errors.Is(err, model.ErrUsernameExists) {
		t.Errorf("error = %v, want %v", err, model.ErrUsernameExists)
	}
	if user != nil {
		t.Error("user should be nil when registration fails")
	}
	if len(mockRepo.createCalls) != 0 {
		t.Error("Create should not be called when username exists")
	}
}

func TestAuthService_Register_LosesRaceOnInsert(t *testing.T) {
	mockRepo := &mockUserRepository{
		createFn: func(ctx context.Context, user *model.User) error {
			return model.ErrUsernameExists
		},
	}
	svc := NewAuthService(mockRepo, testConfig())

	_, err := svc.Register(context.Background(), &model.RegisterRequest{Username: "alice", Password: "pw123456"})

	if !errors.Is(err, model.ErrUsernameExists) {
		t.Errorf("error = %v, want %v", err, model.ErrUsernameExists)
	}
}

func TestAuthService_Register_CheckUsernameError(t *testing.T) {
	dbError := errors.New("database connection failed")
	mockRepo := &mockUserRepository{
		existsByUsernameFn: func(ctx context.Context, username string) (bool, error) {
			return false, dbError
		},
	}
	svc := NewAuthService(mockRepo, testConfig())

	_, err := svc.Register(context.Background(), &model.RegisterRequest{Username: "alice", Password: "pw123456"})

	if !errors.Is(err, dbError) {
		t.Errorf("error should wrap original database error, got %v", err)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "blank username", username: "   ", password: "pw123456", wantErr: model.ErrUsernameRequired},
		{name: "empty username", username: "", password: "pw123456", wantErr: model.ErrUsernameRequired},
		{name: "short password", username: "alice", password: "short", wantErr: model.ErrPasswordTooShort},
		{name: "seven characters", username: "alice", password: "1234567", wantErr: model.ErrPasswordTooShort},
		{name: "over 72 bytes", username: "alice", password: strings.Repeat("a", 80), wantErr: model.ErrPasswordTooLong},
		{name: "multibyte over 72 bytes", username: "alice", password: strings.Repeat("é", 40), wantErr: model.ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mockUserRepository{}
			svc := NewAuthService(mockRepo, testConfig())

			_, err := svc.Register(context.Background(), &model.RegisterRequest{Username: tt.username, Password: tt.password})

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(mockRepo.createCalls) != 0 {
				t.Error("Create should not be called for invalid input")
			}
		})
	}
}

// =============================================================================
// LOGIN TESTS
// =============================================================================

func TestAuthService_Login(t *testing.T) {
	validPassword := "correctpassword"
	validHash, _ := bcrypt.GenerateFromPassword([]byte(validPassword), bcrypt.MinCost)

	testUser := &model.User{ID: 1, Username: "alice", PasswordHash: string(validHash)}

	tests := []struct {
		name          string
		username      string
		password      string
		mockGetByUser func(ctx context.Context, username string) (*model.User, error)
		wantErr       error
		wantUser      bool
	}{
		{
			name:     "successful login",
			username: "alice",
			password: validPassword,
			mockGetByUser: func(ctx context.Context, username string) (*model.User, error) {
				return testUser, nil
			},
			wantUser: true,
		},
		{
			name:     "user not found",
			username: "nobody",
			password: "anypassword",
			mockGetByUser: func(ctx context.Context, username string) (*model.User, error) {
				return nil, model.ErrUserNotFound
			},
			wantErr: model.ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "wrongpassword",
			mockGetByUser: func(ctx context.Context, username string) (*model.User, error) {
				return testUser, nil
			},
			wantErr: model.ErrInvalidCredentials,
		},
		{
			name:     "database error",
			username: "alice",
			password: validPassword,
			mockGetByUser: func(ctx context.Context, username string) (*model.User, error) {
				return nil, errors.New("database error")
			},
			wantErr: model.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(&mockUserRepository{getByUsernameFn: tt.mockGetByUser}, testConfig())

			user, err := svc.Login(context.Background(), &model.LoginRequest{Username: tt.username, Password: tt.password})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if tt.wantUser && user == nil {
				t.Error("expected user, got nil")
			}
			if !tt.wantUser && user != nil {
				t.Error("expected nil user")
			}
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	svc := NewAuthService(&mockUserRepository{}, testConfig())

	if got := svc.Logout(); got.Message != "logout success" {
		t.Errorf("message = %q, want %q", got.Message, "logout success")
	}
}

// =============================================================================
// ACCOUNT TESTS
// =============================================================================

func TestAuthService_UpdateAccount(t *testing.T) {
	mockRepo := &mockUserRepository{}
	svc := NewAuthService(mockRepo, testConfig())

	user, err := svc.UpdateAccount(context.Background(), 7, &model.UpdateAccountRequest{Username: "alice2", Password: "newpassword"})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mockRepo.updateCalls) != 1 {
		t.Fatalf("Update called %d times, want 1", len(mockRepo.updateCalls))
	}
	stored := mockRepo.updateCalls[0]
	if stored.ID != 7 || stored.Username != "alice2" {
		t.Errorf("stored = %+v", stored)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword")) != nil {
		t.Error("new password should be re-hashed")
	}
	if user.Username != "alice2" {
		t.Errorf("username = %q, want alice2", user.Username)
	}
}

func TestAuthService_UpdateAccount_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      model.UpdateAccountRequest
		updateFn func(ctx context.Context, user *model.User) error
		wantErr  error
	}{
		{
			name: "username taken",
			req:  model.UpdateAccountRequest{Username: "bob", Password: "password1"},
			updateFn: func(ctx context.Context, user *model.User) error {
				return model.ErrUsernameExists
			},
			wantErr: model.ErrUsernameExists,
		},
		{
			name: "account gone",
			req:  model.UpdateAccountRequest{Username: "alice", Password: "password1"},
			updateFn: func(ctx context.Context, user *model.User) error {
				return model.ErrUserNotFound
			},
			wantErr: model.ErrUserNotFound,
		},
		{
			name:    "short password",
			req:     model.UpdateAccountRequest{Username: "alice", Password: "short"},
			wantErr: model.ErrPasswordTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(&mockUserRepository{updateFn: tt.updateFn}, testConfig())

			_, err := svc.UpdateAccount(context.Background(), 1, &tt.req)

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthService_GetByID(t *testing.T) {
	mockRepo := &mockUserRepository{
		getByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			if id == 1 {
				return &model.User{ID: 1, Username: "alice"}, nil
			}
			return nil, model.ErrUserNotFound
		},
	}
	svc := NewAuthService(mockRepo, testConfig())

	if user, err := svc.GetByID(context.Background(), 1); err != nil || user.Username != "alice" {
		t.Errorf("GetByID(1) = %+v, %v", user, err)
	}
	if _, err := svc.GetByID(context.Background(), 999); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("error = %v, want %v", err, model.ErrUserNotFound)
	}
}

// =============================================================================
// TOKEN TESTS
// =============================================================================

func TestAuthService_IssueToken(t *testing.T) {
	cfg := testConfig()
	svc := NewAuthService(&mockUserRepository{}, cfg)

	signed, err := svc.IssueToken(42)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		t.Fatalf("token should verify: %v", err)
	}

	claims := token.Claims.(jwt.MapClaims)
	if id, ok := claims["user_id"].(float64); !ok || int64(id) != 42 {
		t.Errorf("user_id claim = %v, want 42", claims["user_id"])
	}
}
