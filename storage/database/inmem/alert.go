package inmemdb

import (
	"context"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/alert"
)

type alertRepository struct {
	db *DB
}

var _ alert.Repository = (*alertRepository)(nil)

func NewAlertRepository(db *DB) alert.Repository {
	return &alertRepository{db: db}
}

var (
	ruleFields = fieldGetter[alert.Rule]{
		"name":       func(r alert.Rule) interface{} { return r.Name },
		"metric":     func(r alert.Rule) interface{} { return r.Metric },
		"severity":   func(r alert.Rule) interface{} { return r.Severity },
		"enabled":    func(r alert.Rule) interface{} { return r.Enabled },
		"created_at": func(r alert.Rule) interface{} { return r.CreatedAt },
		"updated_at": func(r alert.Rule) interface{} { return r.UpdatedAt },
	}
	alertFields = fieldGetter[alert.Alert]{
		"fired_at":  func(a alert.Alert) interface{} { return a.FiredAt },
		"severity":  func(a alert.Alert) interface{} { return a.Severity },
		"status":    func(a alert.Alert) interface{} { return a.Status },
		"rule_name": func(a alert.Alert) interface{} { return a.RuleName },
		"value":     func(a alert.Alert) interface{} { return a.Value },
	}
)

func copyRule(r alert.Rule) alert.Rule {
	r.Channels = cloneStrings(r.Channels)
	return r
}

func (repo *alertRepository) CreateRule(_ context.Context, r alert.Rule) (alert.Rule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r.ID = newID()
	repo.db.rules[r.ID] = copyRule(r)
	return r, nil
}

func (repo *alertRepository) QueryRules(_ context.Context, filter *alert.RuleFilter, ordering []core.DBOrdering) ([]alert.Rule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rules := make([]alert.Rule, 0)
	for _, r := range repo.db.rules {
		if !filter.AllTenants && r.TenantID != filter.TenantID {
			continue
		}
		if filter.Metric != "" && r.Metric != filter.Metric {
			continue
		}
		if filter.Enabled != nil && r.Enabled != *filter.Enabled {
			continue
		}
		rules = append(rules, copyRule(r))
	}
	order(rules, ordering, ruleFields, core.DBOrdering{Field: "created_at", Ascending: true})
	return rules, nil
}

func (repo *alertRepository) GetRule(_ context.Context, id string) (alert.Rule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.rules[id]; ok {
		return copyRule(r), nil
	}
	return alert.Rule{}, alert.ErrRuleNotFound
}

func (repo *alertRepository) UpdateRule(_ context.Context, r alert.Rule) (alert.Rule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.rules[r.ID]; !ok {
		return alert.Rule{}, alert.ErrRuleNotFound
	}
	repo.db.rules[r.ID] = copyRule(r)
	return r, nil
}

func (repo *alertRepository) DeleteRule(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.rules[id]; !ok {
		return alert.ErrRuleNotFound
	}
	delete(repo.db.rules, id)
	for k, a := range repo.db.alerts {
		if a.RuleID == id {
			delete(repo.db.alerts, k)
		}
	}
	return nil
}

func (repo *alertRepository) CreateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a.ID = newID()
	repo.db.alerts[a.ID] = a
	return a, nil
}

func (repo *alertRepository) UpdateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.alerts[a.ID]; !ok {
		return alert.Alert{}, alert.ErrNotFound
	}
	repo.db.alerts[a.ID] = a
	return a, nil
}

func (repo *alertRepository) GetAlert(_ context.Context, id string) (alert.Alert, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.alerts[id]; ok {
		return a, nil
	}
	return alert.Alert{}, alert.ErrNotFound
}

func matchAlert(a alert.Alert, f *alert.AlertFilter) bool {
	if f == nil {
		return true
	}
	if !f.AllTenants && a.TenantID != f.TenantID {
		return false
	}
	if f.RuleID != "" && a.RuleID != f.RuleID {
		return false
	}
	if len(f.Statuses) > 0 && !core.ContainsString(f.Statuses, a.Status) {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	return true
}

func (repo *alertRepository) QueryAlerts(_ context.Context, filter *alert.AlertFilter, ordering []core.DBOrdering) ([]alert.Alert, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	alerts := make([]alert.Alert, 0)
	for _, a := range repo.db.alerts {
		if matchAlert(a, filter) {
			alerts = append(alerts, a)
		}
	}
	order(alerts, ordering, alertFields, core.DBOrdering{Field: "fired_at"})
	return alerts, nil
}

func (repo *alertRepository) LastAlert(_ context.Context, ruleID string) (alert.Alert, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var (
		last  alert.Alert
		found bool
	)
	for _, a := range repo.db.alerts {
		if a.RuleID == ruleID && (!found || a.FiredAt.After(last.FiredAt)) {
			last, found = a, true
		}
	}
	if !found {
		return alert.Alert{}, alert.ErrNotFound
	}
	return last, nil
}
