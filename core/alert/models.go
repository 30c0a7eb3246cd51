package alert

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

// Metrics
const (
	MetricActiveUsers          = "active_users"
	MetricInactiveUsers        = "inactive_users"
	MetricPendingPayments      = "pending_payments"
	MetricOverdueSubscriptions = "overdue_subscriptions"
	MetricQuizAttempts24h      = "quiz_attempts_24h"
	MetricQuizAvgScore24h      = "quiz_avg_score_24h"
	MetricQuizPassRate24h      = "quiz_pass_rate_24h"
	MetricUnreadNotifications  = "unread_notifications"
)

// Operators
const (
	OpGT  = "gt"
	OpGTE = "gte"
	OpLT  = "lt"
	OpLTE = "lte"
	OpEQ  = "eq"
	OpNEQ = "neq"
)

// Severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Channels
const (
	ChannelEmail   = "email" // in-app + email, following the recipients' preferences
	ChannelWebhook = "webhook"
	ChannelStream  = "stream"
)

// Alert statuses
const (
	StatusFiring       = "firing"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Event types
const (
	EventFired        = "fired"
	EventAcknowledged = "acknowledged"
	EventResolved     = "resolved"
)

// ResolvedBySystem marks alerts resolved by the evaluator once their condition cleared.
const ResolvedBySystem = "system"

var (
	Metrics = []string{
		MetricActiveUsers, MetricInactiveUsers, MetricPendingPayments, MetricOverdueSubscriptions,
		MetricQuizAttempts24h, MetricQuizAvgScore24h, MetricQuizPassRate24h, MetricUnreadNotifications,
	}
	Operators    = []string{OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ}
	Severities   = []string{SeverityInfo, SeverityWarning, SeverityCritical}
	Channels     = []string{ChannelEmail, ChannelWebhook, ChannelStream}
	OpenStatuses = []string{StatusFiring, StatusAcknowledged}

	operatorSymbols = map[string]string{OpGT: ">", OpGTE: ">=", OpLT: "<", OpLTE: "<=", OpEQ: "==", OpNEQ: "!="}

	defaultChannels = []string{ChannelStream}
	eqEpsilon       = 1e-9

	metricTag     = "metric"
	metricText    = "unknown metric"
	operatorTag   = "operator"
	operatorText  = "must be one of: gt, gte, lt, lte, eq, neq"
	severityTag   = "severity"
	severityText  = "must be one of: info, warning, critical"
	channelTag    = "channel"
	channelText   = "channels must be among: email, webhook, stream"
	webhookURLTag = "webhookurl"
	webhookText   = "a webhook URL is required by the webhook channel"
)

func init() {
	_ = core.Validate.RegisterValidation(metricTag, core.OneOfValidation(Metrics))
	core.RegisterCustomTranslation(metricTag, metricText)
	_ = core.Validate.RegisterValidation(operatorTag, core.OneOfValidation(Operators))
	core.RegisterCustomTranslation(operatorTag, operatorText)
	_ = core.Validate.RegisterValidation(severityTag, core.OneOfValidation(Severities))
	core.RegisterCustomTranslation(severityTag, severityText)
	_ = core.Validate.RegisterValidation(channelTag, core.OneOfValidation(Channels))
	core.RegisterCustomTranslation(channelTag, channelText)

	core.Validate.RegisterStructValidation(ruleStructValidation, RuleInput{})
	core.RegisterCustomTranslation(webhookURLTag, webhookText)
}

// Compare applies the operator to value and threshold.
func Compare(op string, value, threshold float64) bool {
	switch op {
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return math.Abs(value-threshold) < eqEpsilon
	case OpNEQ:
		return math.Abs(value-threshold) >= eqEpsilon
	}
	return false
}

// Rule is a stored metric/operator/threshold triple checked periodically.
type Rule struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"` // empty: platform-wide
	Name            string    `json:"name"`
	Metric          string    `json:"metric"`
	Operator        string    `json:"operator"`
	Threshold       float64   `json:"threshold"`
	Severity        string    `json:"severity"`
	Enabled         bool      `json:"enabled"`
	Channels        []string  `json:"channels"`
	WebhookURL      string    `json:"webhook_url"`
	CooldownMinutes int       `json:"cooldown_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

func (r Rule) HasChannel(ch string) bool {
	return core.ContainsString(r.Channels, ch)
}

type Alert struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"rule_id"`
	TenantID       string     `json:"tenant_id"`
	RuleName       string     `json:"rule_name"`
	Metric         string     `json:"metric"`
	Operator       string     `json:"operator"`
	Threshold      float64    `json:"threshold"`
	Value          float64    `json:"value"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	Message        string     `json:"message"`
	FiredAt        time.Time  `json:"fired_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	AcknowledgedBy string     `json:"acknowledged_by"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	ResolvedBy     string     `json:"resolved_by"`
}

func (a Alert) Open() bool {
	return a.Status == StatusFiring || a.Status == StatusAcknowledged
}

// Event is emitted to the rule's channels whenever an alert changes.
type Event struct {
	Type  string `json:"type"`
	Alert Alert  `json:"alert"`
	Rule  Rule   `json:"-"`
}

// RuleInput is used to create or replace a Rule.
type RuleInput struct {
	Name            string   `json:"name" validate:"required,max=150"`
	Metric          string   `json:"metric" validate:"required,metric"`
	Operator        string   `json:"operator" validate:"required,operator"`
	Threshold       float64  `json:"threshold"`
	Severity        string   `json:"severity" validate:"required,severity"`
	Enabled         *bool    `json:"enabled"`
	Channels        []string `json:"channels" validate:"omitempty,channel"`
	WebhookURL      string   `json:"webhook_url" validate:"omitempty,url"`
	CooldownMinutes int      `json:"cooldown_minutes" validate:"min=0,max=10080"`
}

func (ri *RuleInput) Validate() error {
	ri.Name = core.CleanString(ri.Name)
	ri.Metric = core.CleanString(ri.Metric, true /* lower */)
	ri.Operator = core.CleanString(ri.Operator, true /* lower */)
	ri.Severity = core.CleanString(ri.Severity, true /* lower */)
	if ri.Severity == "" {
		ri.Severity = SeverityWarning
	}
	ri.WebhookURL = core.CleanString(ri.WebhookURL)
	ri.Channels = core.UniqueStrings(ri.Channels)
	if len(ri.Channels) == 0 {
		ri.Channels = append([]string{}, defaultChannels...)
	}
	return core.Validate.Struct(ri)
}

func ruleStructValidation(sl validator.StructLevel) {
	ri := sl.Current().Interface().(RuleInput)
	if core.ContainsString(ri.Channels, ChannelWebhook) && ri.WebhookURL == "" {
		sl.ReportError(ri.WebhookURL, "webhook_url", "WebhookURL", webhookURLTag, "")
	}
}

// RuleFilter scopes rules to TenantID ("" being platform rules) unless AllTenants is set.
type RuleFilter struct {
	TenantID   string `query:"-"`
	AllTenants bool   `query:"-"`
	Metric     string `query:"metric"`
	Enabled    *bool  `query:"enabled"`
}

// AlertFilter scopes alerts to TenantID ("" being platform alerts) unless AllTenants is set.
type AlertFilter struct {
	TenantID   string   `query:"-"`
	AllTenants bool     `query:"-"`
	RuleID     string   `query:"rule_id"`
	Statuses   []string `query:"status"`
	Severity   string   `query:"severity"`
}

var (
	RuleOrderingFields  = []string{"name", "metric", "severity", "enabled", "created_at", "updated_at"}
	AlertOrderingFields = []string{"fired_at", "severity", "status", "rule_name", "value"}
)

// Report summarizes an evaluation run.
type Report struct {
	Evaluated int `json:"evaluated"`
	Fired     int `json:"fired"`
	Resolved  int `json:"resolved"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"` // cooling down
	Errors    int `json:"errors"`
}
