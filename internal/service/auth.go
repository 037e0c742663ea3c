package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/launchlog/launchlog-go/internal/crypto"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
)

const (
	minPasswordLength = 6
	minNameLength     = 2
)

// AuthService handles registration, login and account lookup.
type AuthService struct {
	users      *repository.Dual[repository.UserStore]
	tokens     *crypto.TokenIssuer
	admins     map[string]struct{}
	hashParams crypto.HashParams
	now        func() time.Time
}

// NewAuthService creates a new AuthService. Accounts registered with an
// email in adminEmails get the admin role.
func NewAuthService(users *repository.Dual[repository.UserStore], tokens *crypto.TokenIssuer, adminEmails []string) *AuthService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		admins:     admins,
		hashParams: crypto.DefaultHashParams(),
		now:        time.Now,
	}
}

// WithHashParams overrides the Argon2id parameters used for new hashes.
func (s *AuthService) WithHashParams(p crypto.HashParams) *AuthService {
	s.hashParams = p
	return s
}

// Register creates a new account and returns a session token for it.
func (s *AuthService) Register(ctx context.Context, req model.CreateUserRequest) (model.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	if err := validateEmail(email); err != nil {
		return model.AuthResponse{}, err
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return model.AuthResponse{}, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if utf8.RuneCountInString(name) < minNameLength {
		return model.AuthResponse{}, invalid("name", fmt.Sprintf("must be at least %d characters", minNameLength))
	}

	hash, err := crypto.HashPasswordWithParams(req.Password, s.hashParams)
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if _, ok := s.admins[email]; ok {
		user.Role = model.RoleAdmin
	}

	if _, err := s.users.Write(ctx, "create_user", func(st repository.UserStore) error {
		return st.Create(ctx, user)
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.AuthResponse{}, ErrDuplicateUser
		}
		return model.AuthResponse{}, err
	}

	return s.respond("User created successfully", user)
}

// Login authenticates an account. Unknown emails and wrong passwords give
// the same error.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	user, _, err := repository.Read(ctx, s.users, "get_user_by_email", func(st repository.UserStore) (*model.User, error) {
		return st.GetByEmail(ctx, email)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.AuthResponse{}, ErrInvalidCredentials
		}
		return model.AuthResponse{}, err
	}

	match, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return model.AuthResponse{}, ErrInvalidCredentials
	}
	s.upgradeHash(ctx, user, req.Password)

	return s.respond("Login successful", user)
}

// upgradeHash re-hashes the password of a legacy or weaker hash with the
// current parameters. Failures are ignored; the old hash still verifies.
func (s *AuthService) upgradeHash(ctx context.Context, user *model.User, password string) {
	if !crypto.NeedsRehash(user.PasswordHash, s.hashParams) {
		return
	}
	hash, err := crypto.HashPasswordWithParams(password, s.hashParams)
	if err != nil {
		return
	}
	_, _ = s.users.Write(ctx, "update_password_hash", func(st repository.UserStore) error {
		return st.UpdatePasswordHash(ctx, user.ID, hash)
	})
}

// GetUser retrieves an account by id.
func (s *AuthService) GetUser(ctx context.Context, userID string) (model.UserResponse, error) {
	user, _, err := repository.Read(ctx, s.users, "get_user", func(st repository.UserStore) (*model.User, error) {
		return st.GetByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, err
	}
	return user.ToResponse(), nil
}

func (s *AuthService) respond(msg string, user *model.User) (model.AuthResponse, error) {
	token, err := s.tokens.Issue(crypto.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   string(user.Role),
	})
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("issue token: %w", err)
	}

	return model.AuthResponse{
		Message: msg,
		Token:   token,
		User:    user.ToResponse(),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail accepts a bare address only, without a display name.
func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return invalid("email", "is not a valid email address")
	}
	return nil
}
