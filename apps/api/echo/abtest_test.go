package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

func Test_abtestApi(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	admin := env.createUser(t, school.ID, "admin1", user.RoleAdmin)
	student := env.createUser(t, school.ID, "student1", user.RoleStudent)
	adminToken, studentToken := env.token(t, admin), env.token(t, student)

	var test abtest.Test
	rec := env.do(t, request{method: http.MethodPost, path: "/v1/abtests", token: adminToken, body: abtest.TestInput{
		Name:     "Hint placement",
		VariantA: abtest.Variant{Params: map[string]string{"hints": "bottom"}},
		VariantB: abtest.Variant{Params: map[string]string{"hints": "inline"}},
	}})
	requireCode(t, rec, http.StatusCreated)
	decode(t, rec, &test)
	assert.Equal(t, abtest.StatusDraft, test.Status)
	assert.Equal(t, 50, test.TrafficSplit)
	assert.Equal(t, admin.ID, test.CreatedBy)

	t.Run("students cannot configure tests", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/abtests", token: studentToken})
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("drafts do not assign", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/abtests/" + test.ID + "/assign", token: studentToken})
		requireCode(t, rec, http.StatusBadRequest)
	})

	rec = env.do(t, request{method: http.MethodPost, path: "/v1/abtests/" + test.ID + "/start", token: adminToken})
	requireCode(t, rec, http.StatusOK)

	t.Run("assignment is sticky", func(t *testing.T) {
		var first, second abtest.Assignment
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/abtests/" + test.ID + "/assign", token: studentToken})
		requireCode(t, rec, http.StatusOK)
		decode(t, rec, &first)
		assert.Equal(t, student.ID, first.SubjectID)

		rec = env.do(t, request{method: http.MethodGet, path: "/v1/abtests/" + test.ID + "/assign?subject_id=" + student.ID, token: studentToken})
		requireCode(t, rec, http.StatusOK)
		decode(t, rec, &second)
		assert.Equal(t, first.Variant, second.Variant)
	})

	t.Run("sessions feed the results", func(t *testing.T) {
		for _, subject := range []string{"s1", "s2", "s3"} {
			rec := env.do(t, request{method: http.MethodPost, path: "/v1/abtests/" + test.ID + "/sessions", token: studentToken, body: abtest.RecordSession{SubjectID: subject, Converted: true}})
			requireCode(t, rec, http.StatusCreated)
		}

		rec := env.do(t, request{method: http.MethodGet, path: "/v1/abtests/" + test.ID + "/results", token: adminToken})
		requireCode(t, rec, http.StatusOK)
		var res abtest.Results
		decode(t, rec, &res)
		assert.Equal(t, 3, res.A.Sessions+res.B.Sessions)
		assert.Equal(t, 3, res.A.Conversions+res.B.Conversions)
	})

	t.Run("completed tests cannot restart", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/abtests/" + test.ID + "/complete", token: adminToken})
		requireCode(t, rec, http.StatusOK)

		rec = env.do(t, request{method: http.MethodPost, path: "/v1/abtests/" + test.ID + "/start", token: adminToken})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("query by status", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/abtests?status=completed", token: adminToken})
		requireCode(t, rec, http.StatusOK)
		var got []abtest.Test
		decode(t, rec, &got)
		require.Len(t, got, 1)
		assert.Equal(t, test.ID, got[0].ID)
	})
}
