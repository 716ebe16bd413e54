package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/user"
	"github.com/trezcool/evalua/storage/database/inmem"
	"github.com/trezcool/evalua/tests"
)

func TestNewUser_Validate(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	svc := user.NewService(repo, nil)
	validate, translator := testutil.NewValidator()
	testutil.CreateUser(t, repo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	pwd := "Tr4ining-Center!"
	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
		wantMsg   string
	}{
		{
			name:      "username or email",
			nu:        user.NewUser{Name: "X", Password: pwd, PasswordConfirm: pwd},
			wantField: "username",
			wantMsg:   "one of username or email is required",
		},
		{
			name:      "password mismatch",
			nu:        user.NewUser{Name: "X", Username: "xavier", Password: pwd, PasswordConfirm: "other"},
			wantField: "password_confirm",
		},
		{
			name:      "weak password",
			nu:        user.NewUser{Name: "X", Username: "xavier", Password: "12345678", PasswordConfirm: "12345678"},
			wantField: "password",
			wantMsg:   "password cannot be entirely numeric",
		},
		{
			name:      "unknown role",
			nu:        user.NewUser{Name: "X", Username: "xavier", Password: pwd, PasswordConfirm: pwd, Roles: []string{"root"}},
			wantField: "roles",
			wantMsg:   "invalid roles",
		},
		{
			name:      "username taken",
			nu:        user.NewUser{Name: "X", Username: " ADMIN ", Password: pwd, PasswordConfirm: pwd},
			wantField: "username",
			wantMsg:   user.ErrUsernameExists.Error(),
		},
		{
			name:      "email taken",
			nu:        user.NewUser{Name: "X", Email: "Admin@Test.cd", Password: pwd, PasswordConfirm: pwd},
			wantField: "email",
			wantMsg:   user.ErrEmailExists.Error(),
		},
		{name: "valid", nu: user.NewUser{Name: "Xavier", Username: "xavier", Password: pwd, PasswordConfirm: pwd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := tt.nu
			err := nu.Validate(ctx, validate, svc)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			fields, ok := core.FieldErrors(err, translator)
			require.True(t, ok, "not a validation error: %v", err)
			require.Contains(t, fields, tt.wantField)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, fields[tt.wantField])
			}
		})
	}
}

func TestService_LifeCycle(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	svc := user.NewService(repo, nil)
	validate, _ := testutil.NewValidator()

	pwd := "Tr4ining-Center!"
	nu := user.NewUser{Name: "Awa", Username: "awa", Email: "awa@test.cd", Password: pwd, PasswordConfirm: pwd}
	require.NoError(t, nu.Validate(ctx, validate, svc))
	usr, err := svc.Create(ctx, nu)
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleViewer}, usr.Roles, "viewer by default")
	assert.True(t, usr.IsActive)

	t.Run("authenticate", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "AWA@test.cd", pwd)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, got.ID)

		_, err = svc.Authenticate(ctx, "awa", "wrong password")
		assert.True(t, errors.Is(err, user.ErrInvalidCredentials))
		_, err = svc.Authenticate(ctx, "nobody", pwd)
		assert.True(t, errors.Is(err, user.ErrInvalidCredentials))
	})

	t.Run("last login", func(t *testing.T) {
		require.NoError(t, svc.SetLastLogin(ctx, &usr))
		require.NotNil(t, usr.LastLogin)
		got, err := svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.Equal(t, usr.LastLogin.Unix(), got.LastLogin.Unix())
	})

	t.Run("update and deactivate", func(t *testing.T) {
		inactive := false
		uu := user.UpdateUser{Roles: []string{user.RoleEvaluator}, IsActive: &inactive}
		require.NoError(t, uu.Validate(ctx, usr, validate, svc))
		got, err := svc.Update(ctx, usr, uu)
		require.NoError(t, err)
		assert.Equal(t, "awa", got.Username)
		assert.True(t, got.CanEdit())
		assert.False(t, got.IsActive)

		_, err = svc.Authenticate(ctx, "awa", pwd)
		assert.True(t, errors.Is(err, user.ErrInvalidCredentials), "inactive users cannot log in")
	})

	t.Run("delete", func(t *testing.T) {
		cnt, err := svc.Delete(ctx, usr.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, cnt)
		_, err = svc.GetByID(ctx, usr.ID)
		assert.True(t, errors.Is(err, user.ErrNotFound))
	})
}
