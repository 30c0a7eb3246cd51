package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core/tag"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

func Test_tagApi(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	other := env.createTenant(t, "blue_lake")
	staff := env.createUser(t, "", "staff1", user.RoleStaff)
	teacher := env.createUser(t, school.ID, "teacher1", user.RoleTeacher)
	student := env.createUser(t, school.ID, "student1", user.RoleStudent)
	outsider := env.createUser(t, other.ID, "teacher2", user.RoleTeacher)

	var algebra tag.Tag
	t.Run("teachers create tags", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/tags", token: env.token(t, teacher), body: tag.NewTag{Name: "Algebra"}})
		requireCode(t, rec, http.StatusCreated)
		decode(t, rec, &algebra)
		assert.Equal(t, school.ID, algebra.TenantID)
		assert.Equal(t, tag.DefaultColor, algebra.Color)

		rec = env.do(t, request{method: http.MethodPost, path: "/v1/tags", token: env.token(t, teacher), body: tag.NewTag{Name: "algebra"}})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("students read tags", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/tags", token: env.token(t, student)})
		requireCode(t, rec, http.StatusOK)
		var got []tag.Tag
		decode(t, rec, &got)
		require.Len(t, got, 1)

		rec = env.do(t, request{method: http.MethodPost, path: "/v1/tags", token: env.token(t, student), body: tag.NewTag{Name: "Geometry"}})
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("tags stay within their institution", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/tags/" + algebra.ID, token: env.token(t, outsider)})
		requireCode(t, rec, http.StatusNotFound)
	})

	t.Run("staff act through the tenant header", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/tags", token: env.token(t, staff)})
		requireCode(t, rec, http.StatusBadRequest)

		rec = env.do(t, request{method: http.MethodGet, path: "/v1/tags/" + algebra.ID, token: env.token(t, staff), tenant: school.ID})
		requireCode(t, rec, http.StatusOK)
	})

	t.Run("update", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPut, path: "/v1/tags/" + algebra.ID, token: env.token(t, teacher), body: tag.UpdateTag{Color: "#FF0000"}})
		requireCode(t, rec, http.StatusOK)
		var got tag.Tag
		decode(t, rec, &got)
		assert.Equal(t, "Algebra", got.Name)
		assert.Equal(t, "#ff0000", got.Color)
	})

	t.Run("bulk delete", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodDelete, path: "/v1/tags?id=" + algebra.ID, token: env.token(t, teacher)})
		requireCode(t, rec, http.StatusNoContent)

		rec = env.do(t, request{method: http.MethodGet, path: "/v1/tags/" + algebra.ID, token: env.token(t, teacher)})
		requireCode(t, rec, http.StatusNotFound)
	})
}
