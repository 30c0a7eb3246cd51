package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/alert"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

func Test_order(t *testing.T) {
	type row struct {
		name  string
		score float64
		at    time.Time
	}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fields := fieldGetter[row]{
		"name":  func(r row) interface{} { return r.name },
		"score": func(r row) interface{} { return r.score },
		"at":    func(r row) interface{} { return r.at },
	}
	names := func(rows []row) []string {
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.name)
		}
		return out
	}
	rows := []row{{"b", 2, t0}, {"a", 2, t0.Add(time.Hour)}, {"c", 1, t0.Add(-time.Hour)}}

	order(rows, nil, fields, core.DBOrdering{Field: "name", Ascending: true})
	assert.Equal(t, []string{"a", "b", "c"}, names(rows), "fallback")

	order(rows, []core.DBOrdering{{Field: "score"}, {Field: "name", Ascending: true}}, fields)
	assert.Equal(t, []string{"a", "b", "c"}, names(rows))

	order(rows, []core.DBOrdering{{Field: "at", Ascending: true}}, fields)
	assert.Equal(t, []string{"c", "b", "a"}, names(rows))

	order(rows, []core.DBOrdering{{Field: "lol"}}, fields)
	assert.Equal(t, []string{"c", "b", "a"}, names(rows), "unknown fields are ignored")
}

func Test_metricSource_Value(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	db := Open()
	src := NewMetricSource(db)

	users := NewUserRepository(db)
	for _, u := range []user.User{
		{TenantID: "t1", IsActive: core.BoolPtr(true)},
		{TenantID: "t1", IsActive: core.BoolPtr(false)},
		{TenantID: "t2", IsActive: core.BoolPtr(true)},
	} {
		_, err := users.CreateUser(ctx, u)
		require.NoError(t, err)
	}

	quizzes := NewQuizRepository(db)
	recent := now.Add(-time.Hour)
	old := now.Add(-48 * time.Hour)
	for _, a := range []quiz.Attempt{
		{TenantID: "t1", Status: quiz.AttemptSubmitted, Percent: 90, Passed: true, SubmittedAt: &recent},
		{TenantID: "t1", Status: quiz.AttemptSubmitted, Percent: 30, SubmittedAt: &recent},
		{TenantID: "t1", Status: quiz.AttemptSubmitted, Percent: 20, SubmittedAt: &recent},
		{TenantID: "t1", Status: quiz.AttemptSubmitted, Percent: 100, Passed: true, SubmittedAt: &old},
		{TenantID: "t1", Status: quiz.AttemptInProgress},
		{TenantID: "t2", Status: quiz.AttemptSubmitted, Percent: 100, Passed: true, SubmittedAt: &recent},
	} {
		_, err := quizzes.CreateAttempt(ctx, a)
		require.NoError(t, err)
	}

	billing := NewSubscriptionRepository(db)
	for _, s := range []subscription.Subscription{
		{TenantID: "t1", Status: subscription.StatusActive, PaymentDueDate: now.Add(-time.Hour)},
		{TenantID: "t1", Status: subscription.StatusCancelled, PaymentDueDate: now.Add(-time.Hour)},
		{TenantID: "t2", Status: subscription.StatusActive, PaymentDueDate: now.Add(time.Hour)},
	} {
		_, err := billing.CreateSubscription(ctx, s)
		require.NoError(t, err)
	}
	_, err := billing.CreatePayment(ctx, subscription.Payment{TenantID: "t2", Status: subscription.PaymentPending})
	require.NoError(t, err)

	_, err = NewNotificationRepository(db).CreateNotifications(ctx,
		notification.Notification{UserID: "u1", TenantID: "t1"},
		notification.Notification{UserID: "u1", TenantID: "t1", ReadAt: &recent},
	)
	require.NoError(t, err)

	tests := []struct {
		metric   string
		tenantID string
		want     float64
	}{
		{alert.MetricActiveUsers, "t1", 1},
		{alert.MetricActiveUsers, "", 2},
		{alert.MetricInactiveUsers, "t1", 1},
		{alert.MetricQuizAttempts24h, "t1", 3},
		{alert.MetricQuizAttempts24h, "", 4},
		{alert.MetricQuizAvgScore24h, "t1", 46.67},
		{alert.MetricQuizPassRate24h, "t1", 33.33},
		{alert.MetricQuizPassRate24h, "t3", 0},
		{alert.MetricOverdueSubscriptions, "t1", 1},
		{alert.MetricOverdueSubscriptions, "t2", 0},
		{alert.MetricPendingPayments, "", 1},
		{alert.MetricUnreadNotifications, "t1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.metric+"/"+tt.tenantID, func(t *testing.T) {
			got, err := src.Value(ctx, tt.metric, tt.tenantID, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = src.Value(ctx, "lol", "", now)
	assert.Error(t, err)
}
