package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/alert"
)

const (
	ruleColumns = `id, tenant_id, name, metric, operator, threshold, severity, enabled, channels, webhook_url,
		cooldown_minutes, created_at, updated_at`
	alertColumns = `id, rule_id, tenant_id, rule_name, metric, operator, threshold, value, severity, status, message,
		fired_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by`
)

type ruleRow struct {
	ID              string         `db:"id"`
	TenantID        null.String    `db:"tenant_id"`
	Name            string         `db:"name"`
	Metric          string         `db:"metric"`
	Operator        string         `db:"operator"`
	Threshold       float64        `db:"threshold"`
	Severity        string         `db:"severity"`
	Enabled         bool           `db:"enabled"`
	Channels        pq.StringArray `db:"channels"`
	WebhookURL      string         `db:"webhook_url"`
	CooldownMinutes int            `db:"cooldown_minutes"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func newRuleRow(r alert.Rule) ruleRow {
	channels := r.Channels
	if channels == nil {
		channels = []string{}
	}
	return ruleRow{
		ID:              r.ID,
		TenantID:        nullString(r.TenantID),
		Name:            r.Name,
		Metric:          r.Metric,
		Operator:        r.Operator,
		Threshold:       r.Threshold,
		Severity:        r.Severity,
		Enabled:         r.Enabled,
		Channels:        channels,
		WebhookURL:      r.WebhookURL,
		CooldownMinutes: r.CooldownMinutes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r ruleRow) rule() alert.Rule {
	return alert.Rule{
		ID:              r.ID,
		TenantID:        r.TenantID.String,
		Name:            r.Name,
		Metric:          r.Metric,
		Operator:        r.Operator,
		Threshold:       r.Threshold,
		Severity:        r.Severity,
		Enabled:         r.Enabled,
		Channels:        []string(r.Channels),
		WebhookURL:      r.WebhookURL,
		CooldownMinutes: r.CooldownMinutes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type alertRow struct {
	ID             string      `db:"id"`
	RuleID         string      `db:"rule_id"`
	TenantID       null.String `db:"tenant_id"`
	RuleName       string      `db:"rule_name"`
	Metric         string      `db:"metric"`
	Operator       string      `db:"operator"`
	Threshold      float64     `db:"threshold"`
	Value          float64     `db:"value"`
	Severity       string      `db:"severity"`
	Status         string      `db:"status"`
	Message        string      `db:"message"`
	FiredAt        time.Time   `db:"fired_at"`
	AcknowledgedAt null.Time   `db:"acknowledged_at"`
	AcknowledgedBy string      `db:"acknowledged_by"`
	ResolvedAt     null.Time   `db:"resolved_at"`
	ResolvedBy     string      `db:"resolved_by"`
}

func newAlertRow(a alert.Alert) alertRow {
	return alertRow{
		ID:             a.ID,
		RuleID:         a.RuleID,
		TenantID:       nullString(a.TenantID),
		RuleName:       a.RuleName,
		Metric:         a.Metric,
		Operator:       a.Operator,
		Threshold:      a.Threshold,
		Value:          a.Value,
		Severity:       a.Severity,
		Status:         a.Status,
		Message:        a.Message,
		FiredAt:        a.FiredAt,
		AcknowledgedAt: null.TimeFromPtr(a.AcknowledgedAt),
		AcknowledgedBy: a.AcknowledgedBy,
		ResolvedAt:     null.TimeFromPtr(a.ResolvedAt),
		ResolvedBy:     a.ResolvedBy,
	}
}

func (r alertRow) alert() alert.Alert {
	return alert.Alert{
		ID:             r.ID,
		RuleID:         r.RuleID,
		TenantID:       r.TenantID.String,
		RuleName:       r.RuleName,
		Metric:         r.Metric,
		Operator:       r.Operator,
		Threshold:      r.Threshold,
		Value:          r.Value,
		Severity:       r.Severity,
		Status:         r.Status,
		Message:        r.Message,
		FiredAt:        r.FiredAt,
		AcknowledgedAt: r.AcknowledgedAt.Ptr(),
		AcknowledgedBy: r.AcknowledgedBy,
		ResolvedAt:     r.ResolvedAt.Ptr(),
		ResolvedBy:     r.ResolvedBy,
	}
}

type alertRepository struct {
	db *sqlx.DB
}

var _ alert.Repository = (*alertRepository)(nil)

func NewAlertRepository(db *sqlx.DB) alert.Repository {
	return &alertRepository{db: db}
}

// tenantScope matches tenantID, an empty one meaning platform rows.
func tenantScope(where *conditions, tenantID string) {
	if tenantID == "" {
		where.add("tenant_id IS NULL")
		return
	}
	where.add("tenant_id = ?", tenantID)
}

func (repo *alertRepository) CreateRule(ctx context.Context, r alert.Rule) (alert.Rule, error) {
	r.ID = newID()
	q := `INSERT INTO alert_rules (` + ruleColumns + `) VALUES (:id, :tenant_id, :name, :metric, :operator,
		:threshold, :severity, :enabled, :channels, :webhook_url, :cooldown_minutes, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newRuleRow(r)); err != nil {
		return alert.Rule{}, errors.Wrap(err, "inserting alert rule")
	}
	return r, nil
}

func (repo *alertRepository) QueryRules(ctx context.Context, filter *alert.RuleFilter, ordering []core.DBOrdering) ([]alert.Rule, error) {
	var where conditions
	if !filter.AllTenants {
		tenantScope(&where, filter.TenantID)
	}
	if filter.Metric != "" {
		where.add("metric = ?", filter.Metric)
	}
	if filter.Enabled != nil {
		where.add("enabled = ?", *filter.Enabled)
	}
	q := `SELECT ` + ruleColumns + ` FROM alert_rules` + where.String() +
		orderBy(ordering, core.DBOrdering{Field: "created_at", Ascending: true})

	var rows []ruleRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting alert rules")
	}
	rules := make([]alert.Rule, len(rows))
	for i, r := range rows {
		rules[i] = r.rule()
	}
	return rules, nil
}

func (repo *alertRepository) GetRule(ctx context.Context, id string) (alert.Rule, error) {
	var row ruleRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+ruleColumns+` FROM alert_rules WHERE id::text = $1`, id); err != nil {
		if isNoRows(err) {
			return alert.Rule{}, alert.ErrRuleNotFound
		}
		return alert.Rule{}, errors.Wrap(err, "selecting alert rule")
	}
	return row.rule(), nil
}

func (repo *alertRepository) UpdateRule(ctx context.Context, r alert.Rule) (alert.Rule, error) {
	q := `UPDATE alert_rules SET name = :name, metric = :metric, operator = :operator, threshold = :threshold,
		severity = :severity, enabled = :enabled, channels = :channels, webhook_url = :webhook_url,
		cooldown_minutes = :cooldown_minutes, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newRuleRow(r))
	if err != nil {
		return alert.Rule{}, errors.Wrap(err, "updating alert rule")
	}
	if _, err := affected(res, alert.ErrRuleNotFound); err != nil {
		return alert.Rule{}, err
	}
	return r, nil
}

func (repo *alertRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id::text = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting alert rule")
	}
	_, err = affected(res, alert.ErrRuleNotFound)
	return err
}

func (repo *alertRepository) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	a.ID = newID()
	q := `INSERT INTO alerts (` + alertColumns + `) VALUES (:id, :rule_id, :tenant_id, :rule_name, :metric, :operator,
		:threshold, :value, :severity, :status, :message, :fired_at, :acknowledged_at, :acknowledged_by, :resolved_at,
		:resolved_by)`
	if _, err := repo.db.NamedExecContext(ctx, q, newAlertRow(a)); err != nil {
		return alert.Alert{}, errors.Wrap(err, "inserting alert")
	}
	return a, nil
}

func (repo *alertRepository) UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	q := `UPDATE alerts SET value = :value, status = :status, message = :message, acknowledged_at = :acknowledged_at,
		acknowledged_by = :acknowledged_by, resolved_at = :resolved_at, resolved_by = :resolved_by WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newAlertRow(a))
	if err != nil {
		return alert.Alert{}, errors.Wrap(err, "updating alert")
	}
	if _, err := affected(res, alert.ErrNotFound); err != nil {
		return alert.Alert{}, err
	}
	return a, nil
}

func (repo *alertRepository) GetAlert(ctx context.Context, id string) (alert.Alert, error) {
	var row alertRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+alertColumns+` FROM alerts WHERE id::text = $1`, id); err != nil {
		if isNoRows(err) {
			return alert.Alert{}, alert.ErrNotFound
		}
		return alert.Alert{}, errors.Wrap(err, "selecting alert")
	}
	return row.alert(), nil
}

func (repo *alertRepository) QueryAlerts(ctx context.Context, filter *alert.AlertFilter, ordering []core.DBOrdering) ([]alert.Alert, error) {
	var where conditions
	if filter != nil {
		if !filter.AllTenants {
			tenantScope(&where, filter.TenantID)
		}
		if filter.RuleID != "" {
			where.add("rule_id::text = ?", filter.RuleID)
		}
		if len(filter.Statuses) > 0 {
			where.add("status = ANY(?)", pq.Array(filter.Statuses))
		}
		if filter.Severity != "" {
			where.add("severity = ?", filter.Severity)
		}
	}
	q := `SELECT ` + alertColumns + ` FROM alerts` + where.String() + orderBy(ordering, core.DBOrdering{Field: "fired_at"})

	var rows []alertRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting alerts")
	}
	alerts := make([]alert.Alert, len(rows))
	for i, r := range rows {
		alerts[i] = r.alert()
	}
	return alerts, nil
}

func (repo *alertRepository) LastAlert(ctx context.Context, ruleID string) (alert.Alert, error) {
	var row alertRow
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE rule_id::text = $1 ORDER BY fired_at DESC LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, ruleID); err != nil {
		if isNoRows(err) {
			return alert.Alert{}, alert.ErrNotFound
		}
		return alert.Alert{}, errors.Wrap(err, "selecting last alert")
	}
	return row.alert(), nil
}
