package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

func Test_notificationApi_announcements(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	other := env.createTenant(t, "blue_lake")
	admin := env.createUser(t, school.ID, "admin1", user.RoleAdmin)
	teacher := env.createUser(t, school.ID, "teacher1", user.RoleTeacher)
	student := env.createUser(t, school.ID, "student1", user.RoleStudent)
	outsider := env.createUser(t, other.ID, "student2", user.RoleStudent)

	t.Run("teachers cannot announce", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/notifications/announcements", token: env.token(t, teacher),
			body: Announcement{Title: "Hi", Body: "Hello"}})
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("title is required", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/notifications/announcements", token: env.token(t, admin),
			body: Announcement{Body: "Hello"}})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("students only", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/notifications/announcements", token: env.token(t, admin),
			body: Announcement{Title: "Exams", Body: "Exams start on Monday.", Roles: []string{user.RoleStudent}}})
		requireCode(t, rec, http.StatusAccepted)
		var resp map[string]int
		decode(t, rec, &resp)
		assert.Equal(t, 1, resp["recipients"])
	})

	rec := env.do(t, request{method: http.MethodGet, path: "/v1/notifications/unread-count", token: env.token(t, student)})
	requireCode(t, rec, http.StatusOK)
	var cnt countResponse
	decode(t, rec, &cnt)
	assert.Equal(t, 1, cnt.Count)

	for _, usr := range []user.User{teacher, outsider} {
		rec = env.do(t, request{method: http.MethodGet, path: "/v1/notifications/unread-count", token: env.token(t, usr)})
		requireCode(t, rec, http.StatusOK)
		decode(t, rec, &cnt)
		assert.Zero(t, cnt.Count, usr.Username)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/v1/notifications?unread=true&category=announcements", token: env.token(t, student)})
	requireCode(t, rec, http.StatusOK)
	var ns []notification.Notification
	decode(t, rec, &ns)
	require.Len(t, ns, 1)
	assert.Equal(t, "Exams", ns[0].Title)
	assert.Equal(t, school.ID, ns[0].TenantID)
	assert.Nil(t, ns[0].ReadAt)

	rec = env.do(t, request{method: http.MethodGet, path: "/v1/notifications?unread=maybe", token: env.token(t, student)})
	requireCode(t, rec, http.StatusBadRequest)

	t.Run("others cannot mark my notifications", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/notifications/read", token: env.token(t, teacher),
			body: notification.MarkRead{IDs: []string{ns[0].ID}}})
		requireCode(t, rec, http.StatusOK)
		decode(t, rec, &cnt)
		assert.Zero(t, cnt.Count)
	})

	rec = env.do(t, request{method: http.MethodPost, path: "/v1/notifications/read", token: env.token(t, student),
		body: notification.MarkRead{IDs: []string{ns[0].ID}}})
	requireCode(t, rec, http.StatusOK)
	decode(t, rec, &cnt)
	assert.Equal(t, 1, cnt.Count)

	// announce to everyone this time
	rec = env.do(t, request{method: http.MethodPost, path: "/v1/notifications/announcements", token: env.token(t, admin),
		body: Announcement{Title: "Holiday", Body: "School is closed on Friday."}})
	requireCode(t, rec, http.StatusAccepted)

	rec = env.do(t, request{method: http.MethodPost, path: "/v1/notifications/read-all", token: env.token(t, student)})
	requireCode(t, rec, http.StatusOK)
	decode(t, rec, &cnt)
	assert.Equal(t, 1, cnt.Count)

	rec = env.do(t, request{method: http.MethodGet, path: "/v1/notifications", token: env.token(t, student)})
	requireCode(t, rec, http.StatusOK)
	decode(t, rec, &ns)
	require.Len(t, ns, 2)
	for _, n := range ns {
		assert.NotNil(t, n.ReadAt)
	}
}

func Test_notificationApi_preferences(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	admin := env.createUser(t, school.ID, "admin1", user.RoleAdmin)
	student := env.createUser(t, school.ID, "student1", user.RoleStudent)
	tok := env.token(t, student)

	rec := env.do(t, request{method: http.MethodGet, path: "/v1/notifications/preferences", token: tok})
	requireCode(t, rec, http.StatusOK)
	var prefs []notification.Preference
	decode(t, rec, &prefs)
	require.Len(t, prefs, len(notification.Categories))
	for _, p := range prefs {
		assert.Equal(t, notification.DefaultPreference(p.Category), p)
	}

	t.Run("invalid category", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPut, path: "/v1/notifications/preferences", token: tok,
			body: notification.PreferenceUpdates{Preferences: []notification.PreferenceUpdate{{Category: "gossip"}}}})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("invalid digest", func(t *testing.T) {
		hourly := "hourly"
		rec := env.do(t, request{method: http.MethodPut, path: "/v1/notifications/preferences", token: tok,
			body: notification.PreferenceUpdates{Preferences: []notification.PreferenceUpdate{
				{Category: notification.CategoryAnnouncements, Digest: &hourly},
			}}})
		requireCode(t, rec, http.StatusBadRequest)
	})

	off, weekly := false, notification.DigestWeekly
	rec = env.do(t, request{method: http.MethodPut, path: "/v1/notifications/preferences", token: tok,
		body: notification.PreferenceUpdates{Preferences: []notification.PreferenceUpdate{
			{Category: "Announcements", InApp: &off},
			{Category: notification.CategoryQuizResults, Digest: &weekly},
		}}})
	requireCode(t, rec, http.StatusOK)

	rec = env.do(t, request{method: http.MethodGet, path: "/v1/notifications/preferences", token: tok})
	requireCode(t, rec, http.StatusOK)
	decode(t, rec, &prefs)
	byCat := make(map[string]notification.Preference)
	for _, p := range prefs {
		byCat[p.Category] = p
	}
	assert.False(t, byCat[notification.CategoryAnnouncements].InApp)
	assert.True(t, byCat[notification.CategoryAnnouncements].Email)
	assert.Equal(t, notification.DigestWeekly, byCat[notification.CategoryQuizResults].Digest)

	t.Run("in-app off skips the inbox", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/notifications/announcements", token: env.token(t, admin),
			body: Announcement{Title: "Exams", Body: "Exams start on Monday.", Roles: []string{user.RoleStudent}}})
		requireCode(t, rec, http.StatusAccepted)

		rec = env.do(t, request{method: http.MethodGet, path: "/v1/notifications/unread-count", token: tok})
		requireCode(t, rec, http.StatusOK)
		var cnt countResponse
		decode(t, rec, &cnt)
		assert.Zero(t, cnt.Count)
	})

	rec = env.do(t, request{method: http.MethodDelete, path: "/v1/notifications/preferences", token: tok})
	requireCode(t, rec, http.StatusOK)
	decode(t, rec, &prefs)
	for _, p := range prefs {
		assert.Equal(t, notification.DefaultPreference(p.Category), p)
	}
}
