package inmemdb

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core/alert"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
)

const metricWindow = 24 * time.Hour

type metricSource struct {
	db *DB
}

var _ alert.MetricSource = (*metricSource)(nil)

func NewMetricSource(db *DB) alert.MetricSource {
	return &metricSource{db: db}
}

func inTenant(tenantID, owner string) bool {
	return tenantID == "" || owner == tenantID
}

func (src *metricSource) Value(_ context.Context, metric, tenantID string, now time.Time) (float64, error) {
	src.db.mu.RLock()
	defer src.db.mu.RUnlock()

	switch metric {
	case alert.MetricActiveUsers, alert.MetricInactiveUsers:
		var cnt int
		for _, u := range src.db.users {
			if inTenant(tenantID, u.TenantID) && u.Active() == (metric == alert.MetricActiveUsers) {
				cnt++
			}
		}
		return float64(cnt), nil
	case alert.MetricPendingPayments:
		var cnt int
		for _, p := range src.db.payments {
			if inTenant(tenantID, p.TenantID) && p.Status == subscription.PaymentPending {
				cnt++
			}
		}
		return float64(cnt), nil
	case alert.MetricOverdueSubscriptions:
		var cnt int
		for _, s := range src.db.subscriptions {
			if inTenant(tenantID, s.TenantID) && s.Billable() && s.PaymentDueDate.Before(now) {
				cnt++
			}
		}
		return float64(cnt), nil
	case alert.MetricQuizAttempts24h, alert.MetricQuizAvgScore24h, alert.MetricQuizPassRate24h:
		return src.attemptMetric(metric, tenantID, now), nil
	case alert.MetricUnreadNotifications:
		var cnt int
		for _, n := range src.db.notifications {
			if inTenant(tenantID, n.TenantID) && n.ReadAt == nil {
				cnt++
			}
		}
		return float64(cnt), nil
	}
	return 0, errors.Errorf("unknown metric %q", metric)
}

func (src *metricSource) attemptMetric(metric, tenantID string, now time.Time) float64 {
	since := now.Add(-metricWindow)
	var cnt, passed int
	var sum float64
	for _, a := range src.db.attempts {
		if !inTenant(tenantID, a.TenantID) || a.Status != quiz.AttemptSubmitted || a.SubmittedAt == nil {
			continue
		}
		if a.SubmittedAt.Before(since) || a.SubmittedAt.After(now) {
			continue
		}
		cnt++
		sum += a.Percent
		if a.Passed {
			passed++
		}
	}
	switch {
	case metric == alert.MetricQuizAttempts24h:
		return float64(cnt)
	case cnt == 0:
		return 0
	case metric == alert.MetricQuizAvgScore24h:
		return math.Round(sum/float64(cnt)*100) / 100
	}
	return math.Round(float64(passed)/float64(cnt)*10000) / 100
}
