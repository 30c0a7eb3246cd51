package inmemdb

import (
	"context"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
)

type subscriptionRepository struct {
	db *DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil)

func NewSubscriptionRepository(db *DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

var (
	subscriptionFields = fieldGetter[subscription.Subscription]{
		"status":           func(s subscription.Subscription) interface{} { return s.Status },
		"payment_due_date": func(s subscription.Subscription) interface{} { return s.PaymentDueDate },
		"created_at":       func(s subscription.Subscription) interface{} { return s.CreatedAt },
		"updated_at":       func(s subscription.Subscription) interface{} { return s.UpdatedAt },
	}
	paymentFields = fieldGetter[subscription.Payment]{
		"amount":      func(p subscription.Payment) interface{} { return p.Amount.InexactFloat64() },
		"status":      func(p subscription.Payment) interface{} { return p.Status },
		"created_at":  func(p subscription.Payment) interface{} { return p.CreatedAt },
		"reviewed_at": func(p subscription.Payment) interface{} { return p.ReviewedAt },
	}
	planFields = fieldGetter[subscription.Plan]{
		"name": func(p subscription.Plan) interface{} { return p.Name },
	}
)

// Plans

func (repo *subscriptionRepository) CreatePlan(_ context.Context, p subscription.Plan) (subscription.Plan, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = newID()
	repo.db.plans[p.ID] = p
	return p, nil
}

func (repo *subscriptionRepository) QueryPlans(_ context.Context, filter *subscription.PlanFilter) ([]subscription.Plan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	plans := make([]subscription.Plan, 0, len(repo.db.plans))
	for _, p := range repo.db.plans {
		if filter != nil && filter.ActiveOnly && !p.IsActive {
			continue
		}
		plans = append(plans, p)
	}
	order(plans, nil, planFields, core.DBOrdering{Field: "name", Ascending: true})
	return plans, nil
}

func (repo *subscriptionRepository) GetPlan(_ context.Context, id string) (subscription.Plan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.plans[id]; ok {
		return p, nil
	}
	return subscription.Plan{}, subscription.ErrPlanNotFound
}

func (repo *subscriptionRepository) GetPlanByName(_ context.Context, name string) (subscription.Plan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.plans {
		if p.Name == name {
			return p, nil
		}
	}
	return subscription.Plan{}, subscription.ErrPlanNotFound
}

func (repo *subscriptionRepository) UpdatePlan(_ context.Context, p subscription.Plan) (subscription.Plan, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.plans[p.ID]; !ok {
		return subscription.Plan{}, subscription.ErrPlanNotFound
	}
	repo.db.plans[p.ID] = p
	return p, nil
}

func (repo *subscriptionRepository) DeletePlan(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.plans[id]; !ok {
		return subscription.ErrPlanNotFound
	}
	delete(repo.db.plans, id)
	return nil
}

// Subscriptions

func copySubscription(s subscription.Subscription) subscription.Subscription {
	s.TrialEndsAt = copyTime(s.TrialEndsAt)
	s.LastWarningAt = copyTime(s.LastWarningAt)
	s.CancelledAt = copyTime(s.CancelledAt)
	return s
}

func (repo *subscriptionRepository) CreateSubscription(_ context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.subscriptions[s.ID] = copySubscription(s)
	return s, nil
}

func (repo *subscriptionRepository) QuerySubscriptions(_ context.Context, filter *subscription.SubscriptionFilter, ordering []core.DBOrdering) ([]subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]subscription.Subscription, 0)
	for _, s := range repo.db.subscriptions {
		if filter != nil {
			if filter.TenantID != "" && s.TenantID != filter.TenantID {
				continue
			}
			if filter.PlanID != "" && s.PlanID != filter.PlanID {
				continue
			}
			if len(filter.Statuses) > 0 && !core.ContainsString(filter.Statuses, s.Status) {
				continue
			}
			if filter.DueBefore != nil && !s.PaymentDueDate.Before(*filter.DueBefore) {
				continue
			}
		}
		subs = append(subs, copySubscription(s))
	}
	order(subs, ordering, subscriptionFields, core.DBOrdering{Field: "created_at"})
	return subs, nil
}

func (repo *subscriptionRepository) GetSubscription(_ context.Context, tenantID, id string) (subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.subscriptions[id]; ok && (tenantID == "" || s.TenantID == tenantID) {
		return copySubscription(s), nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) UpdateSubscription(_ context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subscriptions[s.ID]; !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	repo.db.subscriptions[s.ID] = copySubscription(s)
	return s, nil
}

// Payments

func (repo *subscriptionRepository) CreatePayment(_ context.Context, p subscription.Payment) (subscription.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = newID()
	repo.db.payments[p.ID] = p
	return p, nil
}

func (repo *subscriptionRepository) QueryPayments(_ context.Context, filter *subscription.PaymentFilter, ordering []core.DBOrdering) ([]subscription.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]subscription.Payment, 0)
	for _, p := range repo.db.payments {
		if filter != nil {
			if filter.TenantID != "" && p.TenantID != filter.TenantID {
				continue
			}
			if filter.SubscriptionID != "" && p.SubscriptionID != filter.SubscriptionID {
				continue
			}
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
		}
		payments = append(payments, p)
	}
	order(payments, ordering, paymentFields, core.DBOrdering{Field: "created_at"})
	return payments, nil
}

func (repo *subscriptionRepository) GetPayment(_ context.Context, tenantID, id string) (subscription.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.payments[id]; ok && (tenantID == "" || p.TenantID == tenantID) {
		return p, nil
	}
	return subscription.Payment{}, subscription.ErrPaymentNotFound
}

func (repo *subscriptionRepository) UpdatePayment(_ context.Context, p subscription.Payment) (subscription.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.payments[p.ID]; !ok {
		return subscription.Payment{}, subscription.ErrPaymentNotFound
	}
	repo.db.payments[p.ID] = p
	return p, nil
}

// Approval settings

func (repo *subscriptionRepository) GetApprovalSettings(_ context.Context) (subscription.ApprovalSettings, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if repo.db.settings == nil {
		return subscription.ApprovalSettings{}, nil
	}
	return *repo.db.settings, nil
}

func (repo *subscriptionRepository) SaveApprovalSettings(_ context.Context, as subscription.ApprovalSettings) (subscription.ApprovalSettings, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.settings = &as
	return as, nil
}
