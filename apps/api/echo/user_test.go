package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

func Test_userApi_login(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	closed := env.createTenant(t, "closed_school")
	env.createUser(t, school.ID, "teacher1", user.RoleTeacher)
	inactive := env.createUser(t, school.ID, "gone1", user.RoleStudent)
	_, err := env.c.Users.Update(context.Background(), inactive, user.UpdateUser{
		Name: inactive.Name, Username: inactive.Username, Email: inactive.Email, IsActive: core.BoolPtr(false),
	})
	require.NoError(t, err)
	env.createUser(t, closed.ID, "student9", user.RoleStudent)
	_, err = env.c.Tenants.SetActive(context.Background(), closed.ID, false)
	require.NoError(t, err)

	tests := []struct {
		name     string
		body     LoginRequest
		wantCode int
		wantErr  string
	}{
		{"missing password", LoginRequest{Username: "teacher1"}, http.StatusBadRequest, ""},
		{"wrong password", LoginRequest{Username: "teacher1", Password: "nope"}, http.StatusBadRequest, "authentication failed"},
		{"unknown user", LoginRequest{Username: "nobody", Password: testPassword}, http.StatusBadRequest, "authentication failed"},
		{"deactivated account", LoginRequest{Username: "gone1", Password: testPassword}, http.StatusForbidden, "account deactivated"},
		{"deactivated institution", LoginRequest{Username: "student9", Password: testPassword}, http.StatusForbidden, "institution unavailable"},
		{"by email", LoginRequest{Username: "TEACHER1@elimu.test", Password: testPassword}, http.StatusOK, ""},
		{"by username", LoginRequest{Username: "teacher1", Password: testPassword}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/login", body: tt.body})
			requireCode(t, rec, tt.wantCode)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errBody(t, rec))
			}
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				decode(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_loginRateLimit(t *testing.T) {
	env := newTestEnv(t, func(conf *core.Config) { conf.Server.AuthRateLimit = 2 })

	body := LoginRequest{Username: "nobody", Password: "nope"}
	for i := 0; i < 2; i++ {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/login", body: body})
		requireCode(t, rec, http.StatusBadRequest)
	}
	rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/login", body: body})
	requireCode(t, rec, http.StatusTooManyRequests)
}

func Test_userApi_tokens(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	usr := env.createUser(t, school.ID, "student1", user.RoleStudent)

	t.Run("missing token", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users/me"})
		requireCode(t, rec, http.StatusUnauthorized)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users/me", token: "not-a-jwt"})
		requireCode(t, rec, http.StatusUnauthorized)
	})

	t.Run("me", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users/me", token: env.token(t, usr)})
		requireCode(t, rec, http.StatusOK)
		var got user.User
		decode(t, rec, &got)
		assert.Equal(t, usr.ID, got.ID)
		assert.Equal(t, school.ID, got.TenantID)
	})

	t.Run("refresh", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/token-refresh", token: env.token(t, usr)})
		requireCode(t, rec, http.StatusOK)
		var resp LoginResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("refresh after institution deactivated", func(t *testing.T) {
		token := env.token(t, usr)
		_, err := env.c.Tenants.SetActive(context.Background(), school.ID, false)
		require.NoError(t, err)
		defer env.c.Tenants.SetActive(context.Background(), school.ID, true)

		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/token-refresh", token: token})
		requireCode(t, rec, http.StatusForbidden)
		assert.Equal(t, "institution unavailable", errBody(t, rec))
	})
}

func Test_userApi_create(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	other := env.createTenant(t, "blue_lake")
	staff := env.createUser(t, "", "staff1", user.RoleStaff)
	admin := env.createUser(t, school.ID, "admin1", user.RoleAdmin)
	teacher := env.createUser(t, school.ID, "teacher1", user.RoleTeacher)

	newUser := func(uname string, roles ...string) user.NewUser {
		return user.NewUser{Name: uname, Username: uname, Password: testPassword, PasswordConfirm: testPassword, Roles: roles}
	}

	t.Run("teachers cannot register users", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/register", token: env.token(t, teacher), body: newUser("kid1", user.RoleStudent)})
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("admins register members of their institution", func(t *testing.T) {
		body := newUser("kid1", user.RoleStudent)
		body.TenantID = other.ID // ignored
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/register", token: env.token(t, admin), body: body})
		requireCode(t, rec, http.StatusCreated)
		var got user.User
		decode(t, rec, &got)
		assert.Equal(t, school.ID, got.TenantID)
		assert.Equal(t, []string{user.RoleStudent}, got.Roles)
	})

	t.Run("admins cannot grant higher roles", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/register", token: env.token(t, admin), body: newUser("boss1", user.RoleAdminOwner)})
		requireCode(t, rec, http.StatusBadRequest)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, errNoPermsToSetRoles, fields["roles"])
	})

	t.Run("staff pick the institution", func(t *testing.T) {
		body := newUser("owner1", user.RoleAdminOwner)
		body.TenantID = other.ID
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/register", token: env.token(t, staff), body: body})
		requireCode(t, rec, http.StatusCreated)
		var got user.User
		decode(t, rec, &got)
		assert.Equal(t, other.ID, got.TenantID)
	})

	t.Run("institution members need an institution", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/register", token: env.token(t, staff), body: newUser("kid2", user.RoleStudent)})
		requireCode(t, rec, http.StatusBadRequest)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "tenant_id")
	})

	t.Run("staff belong to no institution", func(t *testing.T) {
		body := newUser("staff2", user.RoleStaff)
		body.TenantID = school.ID
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/register", token: env.token(t, staff), body: body})
		requireCode(t, rec, http.StatusBadRequest)
	})
}

func Test_userApi_queryAndDetail(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	other := env.createTenant(t, "blue_lake")
	admin := env.createUser(t, school.ID, "admin1", user.RoleAdmin)
	owner := env.createUser(t, school.ID, "owner1", user.RoleAdminOwner)
	student := env.createUser(t, school.ID, "student1", user.RoleStudent)
	classmate := env.createUser(t, school.ID, "student2", user.RoleStudent)
	stranger := env.createUser(t, other.ID, "student3", user.RoleStudent)

	t.Run("query is scoped to the institution", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users?role=student:&ordering=username", token: env.token(t, admin)})
		requireCode(t, rec, http.StatusOK)
		var got []user.User
		decode(t, rec, &got)
		require.Len(t, got, 2)
		assert.Equal(t, student.ID, got[0].ID)
		assert.Equal(t, classmate.ID, got[1].ID)
	})

	t.Run("bad boolean filter", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users?is_active=maybe", token: env.token(t, admin)})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("students see themselves only", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users/" + student.ID, token: env.token(t, student)})
		requireCode(t, rec, http.StatusOK)

		rec = env.do(t, request{method: http.MethodGet, path: "/v1/users/" + classmate.ID, token: env.token(t, student)})
		requireCode(t, rec, http.StatusNotFound)
	})

	t.Run("admins do not see other institutions", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users/" + stranger.ID, token: env.token(t, admin)})
		requireCode(t, rec, http.StatusNotFound)
	})

	t.Run("students cannot change their roles", func(t *testing.T) {
		rec := env.do(t, request{
			method: http.MethodPut, path: "/v1/users/" + student.ID, token: env.token(t, student),
			body: user.UpdateUser{Roles: []string{user.RoleTeacher}},
		})
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("students rename themselves", func(t *testing.T) {
		rec := env.do(t, request{
			method: http.MethodPut, path: "/v1/users/" + student.ID, token: env.token(t, student),
			body: user.UpdateUser{Name: "Jane Student"},
		})
		requireCode(t, rec, http.StatusOK)
		var got user.User
		decode(t, rec, &got)
		assert.Equal(t, "Jane Student", got.Name)
	})

	t.Run("no self delete", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: env.token(t, admin)})
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("no deleting higher roles", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: env.token(t, admin)})
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("bulk delete skips other institutions", func(t *testing.T) {
		path := "/v1/users?id=" + classmate.ID + "," + stranger.ID
		rec := env.do(t, request{method: http.MethodDelete, path: path, token: env.token(t, admin)})
		requireCode(t, rec, http.StatusNoContent)

		ctx := context.Background()
		_, err := env.c.Users.GetByID(ctx, classmate.ID)
		assert.Equal(t, user.ErrNotFound, err)
		_, err = env.c.Users.GetByID(ctx, stranger.ID)
		assert.NoError(t, err)
	})

	t.Run("roles", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/users/roles", token: env.token(t, admin)})
		requireCode(t, rec, http.StatusOK)
		var got []user.Role
		decode(t, rec, &got)
		assert.Equal(t, user.Roles, got)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	env.createUser(t, school.ID, "student1", user.RoleStudent)

	rec := env.do(t, request{method: http.MethodPost, path: "/v1/users/password-reset", body: PasswordResetRequest{Email: "nobody@elimu.test"}})
	requireCode(t, rec, http.StatusOK)
	assert.Empty(t, env.mail.Sent())

	rec = env.do(t, request{method: http.MethodPost, path: "/v1/users/password-reset", body: PasswordResetRequest{Email: "Student1@elimu.test"}})
	requireCode(t, rec, http.StatusOK)
	require.Len(t, env.mail.Sent(), 1)
	assert.Equal(t, "student1@elimu.test", env.mail.Sent()[0].To[0].Address)

	rec = env.do(t, request{method: http.MethodPost, path: "/v1/users/password-reset-confirm", body: user.ResetUserPassword{
		UID: "bogus", Token: "bogus", Password: "n3w-Pa55", PasswordConfirm: "n3w-Pa55",
	}})
	requireCode(t, rec, http.StatusBadRequest)
}
