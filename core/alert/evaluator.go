package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

// outcomes of a rule evaluation
const (
	outcomeOK = iota
	outcomeFired
	outcomeResolved
	outcomeUpdated
	outcomeCoolingDown
)

// Evaluate checks every enabled rule against the current value of its metric:
// it fires a new alert when the condition holds and none is open, auto-resolves the open alert
// once the condition clears, and refreshes the value of an alert that is still open.
// A rule failing to evaluate is logged and counted; it does not stop the run.
func (svc *Service) Evaluate(ctx context.Context) (Report, error) {
	var report Report
	now := core.NowFunc()

	rules, err := svc.repo.QueryRules(ctx, &RuleFilter{AllTenants: true, Enabled: core.BoolPtr(true)}, nil)
	if err != nil {
		return report, errors.Wrap(err, "querying enabled rules")
	}

	for _, r := range rules {
		if err = ctx.Err(); err != nil {
			return report, err
		}
		evaluationsTotal.Inc()
		report.Evaluated++

		outcome, err := svc.EvaluateRule(ctx, r, now)
		if err != nil {
			report.Errors++
			evaluationErrors.Inc()
			svc.logError(fmt.Sprintf("evaluating alert rule %s", r.ID), err)
			continue
		}
		switch outcome {
		case outcomeFired:
			report.Fired++
		case outcomeResolved:
			report.Resolved++
		case outcomeUpdated:
			report.Updated++
		case outcomeCoolingDown:
			report.Skipped++
		}
	}

	open, err := svc.repo.QueryAlerts(ctx, &AlertFilter{AllTenants: true, Statuses: OpenStatuses}, nil)
	if err != nil {
		return report, errors.Wrap(err, "querying open alerts")
	}
	openAlerts.Set(float64(len(open)))
	return report, nil
}

// EvaluateRule evaluates a single rule at `now` and returns what happened.
func (svc *Service) EvaluateRule(ctx context.Context, r Rule, now time.Time) (int, error) {
	value, err := svc.metrics.Value(ctx, r.Metric, r.TenantID, now)
	if err != nil {
		return outcomeOK, errors.Wrapf(err, "reading metric %s", r.Metric)
	}
	triggered := Compare(r.Operator, value, r.Threshold)

	open, hasOpen, err := svc.openAlert(ctx, r.ID)
	if err != nil {
		return outcomeOK, err
	}

	switch {
	case triggered && !hasOpen:
		cooling, err := svc.coolingDown(ctx, r, now)
		if err != nil {
			return outcomeOK, err
		}
		if cooling {
			return outcomeCoolingDown, nil
		}
		a, err := svc.repo.CreateAlert(ctx, Alert{
			RuleID:    r.ID,
			TenantID:  r.TenantID,
			RuleName:  r.Name,
			Metric:    r.Metric,
			Operator:  r.Operator,
			Threshold: r.Threshold,
			Value:     value,
			Severity:  r.Severity,
			Status:    StatusFiring,
			Message:   alertMessage(r, value),
			FiredAt:   now,
		})
		if err != nil {
			return outcomeOK, errors.Wrap(err, "creating alert")
		}
		firedTotal.WithLabelValues(r.Severity).Inc()
		svc.dispatch(ctx, Event{Type: EventFired, Alert: a, Rule: r})
		return outcomeFired, nil

	case !triggered && hasOpen:
		open.Value = value
		a, err := svc.resolve(ctx, open, ResolvedBySystem, now)
		if err != nil {
			return outcomeOK, err
		}
		svc.dispatch(ctx, Event{Type: EventResolved, Alert: a, Rule: r})
		return outcomeResolved, nil

	case triggered && hasOpen:
		if open.Value == value {
			return outcomeOK, nil
		}
		open.Value = value
		open.Message = alertMessage(r, value)
		if _, err = svc.repo.UpdateAlert(ctx, open); err != nil {
			return outcomeOK, errors.Wrap(err, "updating alert")
		}
		return outcomeUpdated, nil
	}
	return outcomeOK, nil
}

func (svc *Service) openAlert(ctx context.Context, ruleID string) (Alert, bool, error) {
	alerts, err := svc.repo.QueryAlerts(ctx, &AlertFilter{AllTenants: true, RuleID: ruleID, Statuses: OpenStatuses}, nil)
	if err != nil {
		return Alert{}, false, errors.Wrap(err, "querying open alerts")
	}
	if len(alerts) == 0 {
		return Alert{}, false, nil
	}
	return alerts[0], true, nil
}

// coolingDown reports whether the rule's last alert was resolved less than its cooldown ago.
func (svc *Service) coolingDown(ctx context.Context, r Rule, now time.Time) (bool, error) {
	if r.CooldownMinutes <= 0 {
		return false, nil
	}
	last, err := svc.repo.LastAlert(ctx, r.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "finding last alert")
	}
	if last.ResolvedAt == nil {
		return false, nil
	}
	return now.Sub(*last.ResolvedAt) < r.Cooldown(), nil
}
