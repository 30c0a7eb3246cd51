package alert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

var (
	// errors
	ErrNotFound     = errors.New("alert not found")
	ErrRuleNotFound = errors.New("alert rule not found")

	errNotFiring       = "only firing alerts can be acknowledged"
	errAlreadyResolved = "the alert is already resolved"
)

type (
	Repository interface {
		CreateRule(ctx context.Context, r Rule) (Rule, error)
		QueryRules(ctx context.Context, filter *RuleFilter, ordering []core.DBOrdering) ([]Rule, error)
		GetRule(ctx context.Context, id string) (Rule, error)
		UpdateRule(ctx context.Context, r Rule) (Rule, error)
		// DeleteRule also deletes the rule's alerts.
		DeleteRule(ctx context.Context, id string) error

		CreateAlert(ctx context.Context, a Alert) (Alert, error)
		UpdateAlert(ctx context.Context, a Alert) (Alert, error)
		GetAlert(ctx context.Context, id string) (Alert, error)
		// QueryAlerts returns the newest alerts first unless ordering says otherwise.
		QueryAlerts(ctx context.Context, filter *AlertFilter, ordering []core.DBOrdering) ([]Alert, error)
		// LastAlert returns the most recently fired alert of the rule.
		LastAlert(ctx context.Context, ruleID string) (Alert, error)
	}

	// MetricSource reads the current value of a metric.
	MetricSource interface {
		// Value returns the metric's value for the tenant; an empty tenantID means platform-wide.
		Value(ctx context.Context, metric, tenantID string, now time.Time) (float64, error)
	}

	// Notifier delivers alert events to one channel.
	Notifier interface {
		Notify(ctx context.Context, evt Event) error
	}

	Service struct {
		repo      Repository
		metrics   MetricSource
		notifiers map[string]Notifier // {channel: Notifier}
		logger    core.Logger
	}
)

func NewService(repo Repository, metrics MetricSource, logger core.Logger, notifiers map[string]Notifier) *Service {
	if notifiers == nil {
		notifiers = make(map[string]Notifier)
	}
	return &Service{repo: repo, metrics: metrics, notifiers: notifiers, logger: logger}
}

// Rules

func (svc *Service) CreateRule(ctx context.Context, tenantID string, ri RuleInput) (Rule, error) {
	now := core.NowFunc()
	r := Rule{TenantID: tenantID, CreatedAt: now, UpdatedAt: now}
	ri.apply(&r)
	return svc.repo.CreateRule(ctx, r)
}

func (ri RuleInput) apply(r *Rule) {
	r.Name = ri.Name
	r.Metric = ri.Metric
	r.Operator = ri.Operator
	r.Threshold = ri.Threshold
	r.Severity = ri.Severity
	r.Enabled = ri.Enabled == nil || *ri.Enabled
	r.Channels = ri.Channels
	r.WebhookURL = ri.WebhookURL
	r.CooldownMinutes = ri.CooldownMinutes
}

func (svc *Service) QueryRules(ctx context.Context, filter *RuleFilter, ordering []core.DBOrdering) ([]Rule, error) {
	return svc.repo.QueryRules(ctx, filter, core.CleanOrdering(ordering, RuleOrderingFields...))
}

func (svc *Service) GetRule(ctx context.Context, id string) (Rule, error) {
	return svc.repo.GetRule(ctx, id)
}

func (svc *Service) UpdateRule(ctx context.Context, r Rule, ri RuleInput) (Rule, error) {
	ri.apply(&r)
	r.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateRule(ctx, r)
}

func (svc *Service) DeleteRule(ctx context.Context, r Rule) error {
	return svc.repo.DeleteRule(ctx, r.ID)
}

// Alerts

func (svc *Service) QueryAlerts(ctx context.Context, filter *AlertFilter, ordering []core.DBOrdering) ([]Alert, error) {
	return svc.repo.QueryAlerts(ctx, filter, core.CleanOrdering(ordering, AlertOrderingFields...))
}

func (svc *Service) GetAlert(ctx context.Context, id string) (Alert, error) {
	return svc.repo.GetAlert(ctx, id)
}

// Acknowledge moves a firing alert to acknowledged.
func (svc *Service) Acknowledge(ctx context.Context, a Alert, by user.User) (Alert, error) {
	if a.Status != StatusFiring {
		return Alert{}, core.NewFieldError("status", errNotFiring)
	}
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = core.TimePtr(core.NowFunc())
	a.AcknowledgedBy = by.ID
	a, err := svc.repo.UpdateAlert(ctx, a)
	if err != nil {
		return Alert{}, errors.Wrap(err, "updating alert")
	}
	svc.dispatchForRule(ctx, EventAcknowledged, a)
	return a, nil
}

// Resolve moves a firing or acknowledged alert to resolved.
func (svc *Service) Resolve(ctx context.Context, a Alert, by user.User) (Alert, error) {
	if !a.Open() {
		return Alert{}, core.NewFieldError("status", errAlreadyResolved)
	}
	a, err := svc.resolve(ctx, a, by.ID, core.NowFunc())
	if err != nil {
		return Alert{}, err
	}
	svc.dispatchForRule(ctx, EventResolved, a)
	return a, nil
}

func (svc *Service) resolve(ctx context.Context, a Alert, by string, now time.Time) (Alert, error) {
	a.Status = StatusResolved
	a.ResolvedAt = core.TimePtr(now)
	a.ResolvedBy = by
	a, err := svc.repo.UpdateAlert(ctx, a)
	if err != nil {
		return Alert{}, errors.Wrap(err, "updating alert")
	}
	label := "user"
	if by == ResolvedBySystem {
		label = ResolvedBySystem
	}
	resolvedTotal.WithLabelValues(label).Inc()
	return a, nil
}

func (svc *Service) dispatchForRule(ctx context.Context, evtType string, a Alert) {
	r, err := svc.repo.GetRule(ctx, a.RuleID)
	if err != nil {
		if errors.Cause(err) != ErrRuleNotFound {
			svc.logError(fmt.Sprintf("finding alert rule %s", a.RuleID), err)
		}
		return
	}
	svc.dispatch(ctx, Event{Type: evtType, Alert: a, Rule: r})
}

// dispatch sends evt to each of the rule's channels. Delivery failures are logged, never returned.
func (svc *Service) dispatch(ctx context.Context, evt Event) {
	for _, ch := range evt.Rule.Channels {
		n, ok := svc.notifiers[ch]
		if !ok {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			notificationErrors.WithLabelValues(ch).Inc()
			svc.logError(fmt.Sprintf("notifying alert %s via %s", evt.Alert.ID, ch), err)
		}
	}
}

func (svc *Service) logError(msg string, err error) {
	if svc.logger != nil {
		svc.logger.Error(fmt.Sprintf("%s: %v", msg, err), err)
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func alertMessage(r Rule, value float64) string {
	return fmt.Sprintf("%s is %s (threshold: %s %s)",
		r.Metric, formatValue(value), operatorSymbols[r.Operator], formatValue(r.Threshold))
}
