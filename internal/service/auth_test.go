package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/launchlog/launchlog-go/internal/crypto"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
)

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reg, err := f.auth.Register(ctx, model.CreateUserRequest{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "User created successfully", reg.Message)
	assert.NotEmpty(t, reg.Token)
	assert.NotEmpty(t, reg.User.ID)
	assert.Equal(t, model.RoleUser, reg.User.Role)

	login, err := f.auth.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Login successful", login.Message)
	assert.Equal(t, reg.User.ID, login.User.ID)

	id, err := crypto.NewTokenIssuer("test-secret", time.Hour).Verify(login.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, id.UserID)
	assert.Equal(t, "Ann", id.Name)

	_, err = f.auth.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_StoresHashNotPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, model.CreateUserRequest{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)

	stored, _, err := repository.Read(ctx, f.users, "peek", func(st repository.UserStore) (*model.User, error) {
		return st.GetByEmail(ctx, "a@x.com")
	})
	require.NoError(t, err)
	assert.NotContains(t, stored.PasswordHash, "secret1")
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
}

func TestRegister_NormalisesEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reg, err := f.auth.Register(ctx, model.CreateUserRequest{Email: "  Ann@X.com ", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", reg.User.Email)

	_, err = f.auth.Login(ctx, model.LoginRequest{Email: "ANN@x.COM", Password: "secret1"})
	assert.NoError(t, err)

	_, err = f.auth.Register(ctx, model.CreateUserRequest{Email: "ann@x.com", Password: "secret1", Name: "Ann"})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   model.CreateUserRequest
		field string
	}{
		{"empty email", model.CreateUserRequest{Email: "", Password: "secret1", Name: "Ann"}, "email"},
		{"malformed email", model.CreateUserRequest{Email: "not-an-email", Password: "secret1", Name: "Ann"}, "email"},
		{"display name", model.CreateUserRequest{Email: "Ann <a@x.com>", Password: "secret1", Name: "Ann"}, "email"},
		{"no domain dot", model.CreateUserRequest{Email: "a@localhost", Password: "secret1", Name: "Ann"}, "email"},
		{"short password", model.CreateUserRequest{Email: "a@x.com", Password: "12345", Name: "Ann"}, "password"},
		{"short name", model.CreateUserRequest{Email: "a@x.com", Password: "secret1", Name: " A "}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.auth.Register(context.Background(), tt.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegister_AdminEmails(t *testing.T) {
	f := newFixture(t, nil, "Boss@X.com")

	reg, err := f.auth.Register(context.Background(), model.CreateUserRequest{Email: "boss@x.com", Password: "secret1", Name: "Boss"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, reg.User.Role)
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.auth.Login(context.Background(), model.LoginRequest{Email: "ghost@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.Login(context.Background(), model.LoginRequest{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reg, err := f.auth.Register(ctx, model.CreateUserRequest{Email: "a@x.com", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)

	got, err := f.auth.GetUser(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	_, err = f.auth.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogin_UpgradesLegacyBcryptHash(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = f.users.Write(ctx, "seed", func(st repository.UserStore) error {
		return st.Create(ctx, &model.User{ID: "u-legacy", Email: "old@x.com", Name: "Old", PasswordHash: string(legacy), Role: model.RoleUser})
	})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, model.LoginRequest{Email: "old@x.com", Password: "secret1"})
	require.NoError(t, err)

	stored, _, err := repository.Read(ctx, f.users, "peek", func(st repository.UserStore) (*model.User, error) {
		return st.GetByID(ctx, "u-legacy")
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	// The upgraded hash keeps working.
	_, err = f.auth.Login(ctx, model.LoginRequest{Email: "old@x.com", Password: "secret1"})
	require.NoError(t, err)
}
