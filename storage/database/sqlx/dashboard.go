package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core/dashboard"
)

type dashboardRepository struct {
	db *sqlx.DB
}

var _ dashboard.Repository = (*dashboardRepository)(nil)

func NewDashboardRepository(db *sqlx.DB) dashboard.Repository {
	return &dashboardRepository{db: db}
}

func (repo *dashboardRepository) AdminSummary(ctx context.Context) (dashboard.AdminSummary, error) {
	var sum dashboard.AdminSummary
	q := `SELECT
		(SELECT COUNT(*) FROM tenants) AS tenants,
		(SELECT COUNT(*) FROM tenants WHERE COALESCE(is_active, true)) AS active_tenants,
		(SELECT COUNT(*) FROM "user") AS users,
		(SELECT COUNT(*) FROM subscriptions WHERE status IN ('active', 'trialing')) AS active_subscriptions,
		(SELECT COUNT(*) FROM subscriptions WHERE status = 'past_due') AS past_due_subscriptions,
		(SELECT COUNT(*) FROM payments WHERE status = 'pending') AS pending_payments,
		(SELECT COUNT(*) FROM alerts WHERE status IN ('firing', 'acknowledged')) AS open_alerts`
	row := repo.db.QueryRowxContext(ctx, q)
	err := row.Scan(&sum.Tenants, &sum.ActiveTenants, &sum.Users, &sum.ActiveSubscriptions,
		&sum.PastDueSubscriptions, &sum.PendingPayments, &sum.OpenAlerts)
	return sum, errors.Wrap(err, "computing admin summary")
}

type countRow struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

func (repo *dashboardRepository) counts(ctx context.Context, q string, args ...interface{}) (map[string]int, error) {
	var rows []countRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Key] = r.Count
	}
	return counts, nil
}

func (repo *dashboardRepository) InstitutionSummary(ctx context.Context, tenantID string, since time.Time) (dashboard.InstitutionSummary, error) {
	var (
		sum dashboard.InstitutionSummary
		err error
	)
	q := `SELECT r AS key, COUNT(*) AS count FROM "user", unnest(roles) AS r WHERE tenant_id = $1 GROUP BY r`
	if sum.UsersByRole, err = repo.counts(ctx, q, tenantID); err != nil {
		return sum, errors.Wrap(err, "counting users by role")
	}
	q = `SELECT status AS key, COUNT(*) AS count FROM quizzes WHERE tenant_id = $1 GROUP BY status`
	if sum.QuizzesByStatus, err = repo.counts(ctx, q, tenantID); err != nil {
		return sum, errors.Wrap(err, "counting quizzes by status")
	}

	q = `SELECT
		(SELECT COUNT(*) FROM quiz_attempts WHERE tenant_id = $1 AND status = 'submitted' AND submitted_at >= $2),
		(SELECT COALESCE(ROUND(AVG(percent)::numeric, 2), 0)::float8 FROM quiz_attempts
			WHERE tenant_id = $1 AND status = 'submitted' AND submitted_at >= $2),
		(SELECT COUNT(*) FROM ab_tests WHERE tenant_id = $1 AND status = 'running'),
		(SELECT COUNT(*) FROM alerts WHERE tenant_id = $1 AND status IN ('firing', 'acknowledged'))`
	err = repo.db.QueryRowxContext(ctx, q, tenantID, since).
		Scan(&sum.RecentAttempts, &sum.AverageScore, &sum.RunningABTests, &sum.OpenAlerts)
	return sum, errors.Wrap(err, "computing institution summary")
}

func (repo *dashboardRepository) StudentSummary(ctx context.Context, tenantID, userID string) (dashboard.StudentSummary, error) {
	var sum dashboard.StudentSummary
	q := `SELECT
		(SELECT COUNT(*) FROM quizzes WHERE tenant_id = $1 AND status = 'published'),
		(SELECT COUNT(*) FROM quiz_attempts WHERE tenant_id = $1 AND user_id = $2),
		(SELECT COUNT(*) FROM quiz_attempts WHERE tenant_id = $1 AND user_id = $2 AND passed),
		(SELECT COALESCE(ROUND(AVG(percent)::numeric, 2), 0)::float8 FROM quiz_attempts
			WHERE tenant_id = $1 AND user_id = $2 AND status = 'submitted'),
		(SELECT COUNT(*) FROM notifications WHERE user_id = $2 AND read_at IS NULL)`
	err := repo.db.QueryRowxContext(ctx, q, tenantID, userID).
		Scan(&sum.PublishedQuizzes, &sum.Attempts, &sum.PassedAttempts, &sum.AverageScore, &sum.UnreadNotifications)
	return sum, errors.Wrap(err, "computing student summary")
}
