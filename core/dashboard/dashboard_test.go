package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
	"github.com/pqasys/langcsebkg5-sub007/core/alert"
	"github.com/pqasys/langcsebkg5-sub007/core/dashboard"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
	inmemdb "github.com/pqasys/langcsebkg5-sub007/storage/database/inmem"
)

var now = time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc *dashboard.Service

	green   tenant.Tenant
	kivu    tenant.Tenant
	student user.User
}

// seed fills an in-memory database with two tenants' worth of activity.
func seed(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })

	db := inmemdb.Open()
	tenants := inmemdb.NewTenantRepository(db)
	users := inmemdb.NewUserRepository(db)
	quizzes := inmemdb.NewQuizRepository(db)
	abtests := inmemdb.NewABTestRepository(db)
	alerts := inmemdb.NewAlertRepository(db)
	billing := inmemdb.NewSubscriptionRepository(db)
	notifications := inmemdb.NewNotificationRepository(db)

	var f fixture
	var err error
	f.green, err = tenants.CreateTenant(ctx, tenant.Tenant{Name: "Green Hill", Slug: "green_hill", IsActive: core.BoolPtr(true)})
	require.NoError(t, err)
	f.kivu, err = tenants.CreateTenant(ctx, tenant.Tenant{Name: "Kivu", Slug: "kivu", IsActive: core.BoolPtr(false)})
	require.NoError(t, err)

	for _, u := range []user.User{
		{Username: "root", Roles: user.StaffRoles},
		{Username: "principal", TenantID: f.green.ID, Roles: []string{user.RoleAdminPrincipal, user.RoleTeacher}},
		{Username: "teacher", TenantID: f.green.ID, Roles: []string{user.RoleTeacher}},
		{Username: "student", TenantID: f.green.ID, Roles: []string{user.RoleStudent}},
		{Username: "other", TenantID: f.kivu.ID, Roles: []string{user.RoleStudent}},
	} {
		created, err := users.CreateUser(ctx, u)
		require.NoError(t, err)
		if u.Username == "student" {
			f.student = created
		}
	}

	published, err := quizzes.CreateQuiz(ctx, quiz.Quiz{TenantID: f.green.ID, Title: "Fractions", Status: quiz.StatusPublished})
	require.NoError(t, err)
	for _, q := range []quiz.Quiz{
		{TenantID: f.green.ID, Title: "Decimals", Status: quiz.StatusPublished},
		{TenantID: f.green.ID, Title: "Geometry", Status: quiz.StatusDraft},
		{TenantID: f.kivu.ID, Title: "Other", Status: quiz.StatusPublished},
	} {
		_, err := quizzes.CreateQuiz(ctx, q)
		require.NoError(t, err)
	}

	recent := now.Add(-24 * time.Hour)
	old := now.Add(-30 * 24 * time.Hour)
	for _, a := range []quiz.Attempt{
		{UserID: f.student.ID, Status: quiz.AttemptSubmitted, Percent: 80, Passed: true, SubmittedAt: &recent},
		{UserID: f.student.ID, Status: quiz.AttemptSubmitted, Percent: 45, SubmittedAt: &recent},
		{UserID: f.student.ID, Status: quiz.AttemptSubmitted, Percent: 100, Passed: true, SubmittedAt: &old},
		{UserID: f.student.ID, Status: quiz.AttemptInProgress},
	} {
		a.QuizID = published.ID
		a.TenantID = f.green.ID
		_, err := quizzes.CreateAttempt(ctx, a)
		require.NoError(t, err)
	}

	for _, tst := range []abtest.Test{
		{TenantID: f.green.ID, Name: "Hints", Status: abtest.StatusRunning},
		{TenantID: f.green.ID, Name: "Timer", Status: abtest.StatusPaused},
		{TenantID: f.kivu.ID, Name: "Other", Status: abtest.StatusRunning},
	} {
		_, err := abtests.CreateTest(ctx, tst)
		require.NoError(t, err)
	}

	for _, a := range []alert.Alert{
		{TenantID: f.green.ID, Status: alert.StatusFiring},
		{TenantID: f.green.ID, Status: alert.StatusResolved},
		{TenantID: f.kivu.ID, Status: alert.StatusAcknowledged},
		{Status: alert.StatusFiring}, // platform rule
	} {
		_, err := alerts.CreateAlert(ctx, a)
		require.NoError(t, err)
	}

	for _, s := range []subscription.Subscription{
		{TenantID: f.green.ID, Status: subscription.StatusActive},
		{TenantID: f.kivu.ID, Status: subscription.StatusPastDue},
		{TenantID: f.kivu.ID, Status: subscription.StatusCancelled},
	} {
		_, err := billing.CreateSubscription(ctx, s)
		require.NoError(t, err)
	}
	for _, p := range []subscription.Payment{
		{TenantID: f.green.ID, Status: subscription.PaymentPending},
		{TenantID: f.green.ID, Status: subscription.PaymentApproved},
	} {
		_, err := billing.CreatePayment(ctx, p)
		require.NoError(t, err)
	}

	_, err = notifications.CreateNotifications(ctx,
		notification.Notification{UserID: f.student.ID, Title: "Result"},
		notification.Notification{UserID: f.student.ID, Title: "Read", ReadAt: &recent},
	)
	require.NoError(t, err)

	f.svc = dashboard.NewService(inmemdb.NewDashboardRepository(db))
	return f
}

func TestService_Admin(t *testing.T) {
	f := seed(t)
	sum, err := f.svc.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dashboard.AdminSummary{
		Tenants:              2,
		ActiveTenants:        1,
		Users:                5,
		ActiveSubscriptions:  1,
		PastDueSubscriptions: 1,
		PendingPayments:      1,
		OpenAlerts:           3,
	}, sum)
}

func TestService_Institution(t *testing.T) {
	f := seed(t)
	sum, err := f.svc.Institution(context.Background(), f.green.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{user.RoleAdminPrincipal: 1, user.RoleTeacher: 2, user.RoleStudent: 1}, sum.UsersByRole)
	assert.Equal(t, map[string]int{quiz.StatusPublished: 2, quiz.StatusDraft: 1}, sum.QuizzesByStatus)
	assert.Equal(t, 2, sum.RecentAttempts, "last 7 days only")
	assert.Equal(t, 62.5, sum.AverageScore)
	assert.Equal(t, 1, sum.RunningABTests)
	assert.Equal(t, 1, sum.OpenAlerts)

	empty, err := f.svc.Institution(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, empty.UsersByRole)
	assert.Zero(t, empty.AverageScore)
}

func TestService_Student(t *testing.T) {
	f := seed(t)
	sum, err := f.svc.Student(context.Background(), f.green.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, dashboard.StudentSummary{
		PublishedQuizzes:    2,
		Attempts:            4,
		PassedAttempts:      2,
		AverageScore:        75,
		UnreadNotifications: 1,
	}, sum)
}
