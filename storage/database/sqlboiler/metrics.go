// Package boiledrepos reads reporting values with sqlboiler raw queries.
package boiledrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/pqasys/langcsebkg5-sub007/core/alert"
)

const window = 24 * time.Hour

// metricQuery is parameterized by $1 = tenant id ('' for all tenants) and, when windowed, $2 = window start.
type metricQuery struct {
	sql      string
	windowed bool
}

const tenantFilter = `($1 = '' OR tenant_id::text = $1)`

var metricQueries = map[string]metricQuery{
	alert.MetricActiveUsers: {
		sql: `SELECT COUNT(*)::float8 AS value FROM "user" WHERE COALESCE(is_active, true) AND ` + tenantFilter,
	},
	alert.MetricInactiveUsers: {
		sql: `SELECT COUNT(*)::float8 AS value FROM "user" WHERE NOT COALESCE(is_active, true) AND ` + tenantFilter,
	},
	alert.MetricPendingPayments: {
		sql: `SELECT COUNT(*)::float8 AS value FROM payments WHERE status = 'pending' AND ` + tenantFilter,
	},
	alert.MetricOverdueSubscriptions: {
		sql: `SELECT COUNT(*)::float8 AS value FROM subscriptions
			WHERE status IN ('trialing', 'active', 'past_due') AND payment_due_date < now() AND ` + tenantFilter,
	},
	alert.MetricQuizAttempts24h: {
		sql: `SELECT COUNT(*)::float8 AS value FROM quiz_attempts
			WHERE status = 'submitted' AND submitted_at >= $2 AND ` + tenantFilter,
		windowed: true,
	},
	alert.MetricQuizAvgScore24h: {
		sql: `SELECT COALESCE(ROUND(AVG(percent)::numeric, 2), 0)::float8 AS value FROM quiz_attempts
			WHERE status = 'submitted' AND submitted_at >= $2 AND ` + tenantFilter,
		windowed: true,
	},
	alert.MetricQuizPassRate24h: {
		sql: `SELECT COALESCE(ROUND(100.0 * COUNT(*) FILTER (WHERE passed) / NULLIF(COUNT(*), 0), 2), 0)::float8 AS value
			FROM quiz_attempts WHERE status = 'submitted' AND submitted_at >= $2 AND ` + tenantFilter,
		windowed: true,
	},
	alert.MetricUnreadNotifications: {
		sql: `SELECT COUNT(*)::float8 AS value FROM notifications WHERE read_at IS NULL AND ` + tenantFilter,
	},
}

type metricSource struct {
	exec boil.ContextExecutor
}

var _ alert.MetricSource = (*metricSource)(nil)

func NewMetricSource(exec boil.ContextExecutor) alert.MetricSource {
	return &metricSource{exec: exec}
}

func (src *metricSource) Value(ctx context.Context, metric, tenantID string, now time.Time) (float64, error) {
	mq, ok := metricQueries[metric]
	if !ok {
		return 0, errors.Errorf("unknown metric %q", metric)
	}
	args := []interface{}{tenantID}
	if mq.windowed {
		args = append(args, now.Add(-window))
	}

	var res struct {
		Value float64 `boil:"value"`
	}
	if err := queries.Raw(mq.sql, args...).Bind(ctx, src.exec, &res); err != nil {
		return 0, errors.Wrapf(err, "reading metric %s", metric)
	}
	return res.Value, nil
}
