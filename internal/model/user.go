package model

import "errors"

// User is an account identity. The password hash never leaves the service layer.
type User struct {
	ID           int64  `json:"user_id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// RegisterRequest represents the data needed to register a new user
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest represents the data needed to log in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateAccountRequest replaces the caller's username and password together.
type UpdateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Ack is a fixed acknowledgement body.
type Ack struct {
	Message string `json:"message"`
}

// LogoutAck is what logout always returns. There is no server-side session to end.
var LogoutAck = Ack{Message: "logout success"}

const (
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 8

	// MaxPasswordBytes is the longest password bcrypt will hash.
	MaxPasswordBytes = 72
)

var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameExists is returned when attempting to create a user with a taken username
	ErrUsernameExists = errors.New("username already exists")

	// ErrUserIDExists is returned when an explicit user id is already in use
	ErrUserIDExists = errors.New("user id already exists")

	// ErrInvalidCredentials is returned when login credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

// Error codes for HTTP responses
const (
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeTokenInvalid     = "TOKEN_INVALID"
	CodePasswordTooShort = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong  = "PASSWORD_TOO_LONG"
	CodeEmptyContent     = "EMPTY_CONTENT"
)
