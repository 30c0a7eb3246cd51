package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
)

const (
	planColumns         = `id, name, description, interval, price, currency, is_active, created_at, updated_at`
	subscriptionColumns = `id, tenant_id, plan_id, status, trial_ends_at, payment_due_date, payment_extension_date,
		warning_count, last_warning_at, cancelled_at, created_at, updated_at`
	paymentColumns = `id, tenant_id, subscription_id, amount, currency, method, reference, status, submitted_by,
		reviewed_by, reviewed_at, note, created_at`
)

type planRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Interval    string          `db:"interval"`
	Price       decimal.Decimal `db:"price"`
	Currency    string          `db:"currency"`
	IsActive    bool            `db:"is_active"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r planRow) plan() subscription.Plan {
	return subscription.Plan(r)
}

type subscriptionRow struct {
	ID                   string    `db:"id"`
	TenantID             string    `db:"tenant_id"`
	PlanID               string    `db:"plan_id"`
	Status               string    `db:"status"`
	TrialEndsAt          null.Time `db:"trial_ends_at"`
	PaymentDueDate       time.Time `db:"payment_due_date"`
	PaymentExtensionDate time.Time `db:"payment_extension_date"`
	WarningCount         int       `db:"warning_count"`
	LastWarningAt        null.Time `db:"last_warning_at"`
	CancelledAt          null.Time `db:"cancelled_at"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func newSubscriptionRow(s subscription.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:                   s.ID,
		TenantID:             s.TenantID,
		PlanID:               s.PlanID,
		Status:               s.Status,
		TrialEndsAt:          null.TimeFromPtr(s.TrialEndsAt),
		PaymentDueDate:       s.PaymentDueDate,
		PaymentExtensionDate: s.PaymentExtensionDate,
		WarningCount:         s.WarningCount,
		LastWarningAt:        null.TimeFromPtr(s.LastWarningAt),
		CancelledAt:          null.TimeFromPtr(s.CancelledAt),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func (r subscriptionRow) subscription() subscription.Subscription {
	return subscription.Subscription{
		ID:                   r.ID,
		TenantID:             r.TenantID,
		PlanID:               r.PlanID,
		Status:               r.Status,
		TrialEndsAt:          r.TrialEndsAt.Ptr(),
		PaymentDueDate:       r.PaymentDueDate,
		PaymentExtensionDate: r.PaymentExtensionDate,
		WarningCount:         r.WarningCount,
		LastWarningAt:        r.LastWarningAt.Ptr(),
		CancelledAt:          r.CancelledAt.Ptr(),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type paymentRow struct {
	ID             string          `db:"id"`
	TenantID       string          `db:"tenant_id"`
	SubscriptionID string          `db:"subscription_id"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	Method         string          `db:"method"`
	Reference      string          `db:"reference"`
	Status         string          `db:"status"`
	SubmittedBy    string          `db:"submitted_by"`
	ReviewedBy     string          `db:"reviewed_by"`
	ReviewedAt     null.Time       `db:"reviewed_at"`
	Note           string          `db:"note"`
	CreatedAt      time.Time       `db:"created_at"`
}

func newPaymentRow(p subscription.Payment) paymentRow {
	return paymentRow{
		ID:             p.ID,
		TenantID:       p.TenantID,
		SubscriptionID: p.SubscriptionID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Method:         p.Method,
		Reference:      p.Reference,
		Status:         p.Status,
		SubmittedBy:    p.SubmittedBy,
		ReviewedBy:     p.ReviewedBy,
		ReviewedAt:     null.TimeFromPtr(p.ReviewedAt),
		Note:           p.Note,
		CreatedAt:      p.CreatedAt,
	}
}

func (r paymentRow) payment() subscription.Payment {
	return subscription.Payment{
		ID:             r.ID,
		TenantID:       r.TenantID,
		SubscriptionID: r.SubscriptionID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Method:         r.Method,
		Reference:      r.Reference,
		Status:         r.Status,
		SubmittedBy:    r.SubmittedBy,
		ReviewedBy:     r.ReviewedBy,
		ReviewedAt:     r.ReviewedAt.Ptr(),
		Note:           r.Note,
		CreatedAt:      r.CreatedAt,
	}
}

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil)

func NewSubscriptionRepository(db *sqlx.DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

// Plans

func (repo *subscriptionRepository) CreatePlan(ctx context.Context, p subscription.Plan) (subscription.Plan, error) {
	p.ID = newID()
	q := `INSERT INTO plans (` + planColumns + `) VALUES (:id, :name, :description, :interval, :price, :currency,
		:is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, planRow(p)); err != nil {
		return subscription.Plan{}, errors.Wrap(err, "inserting plan")
	}
	return p, nil
}

func (repo *subscriptionRepository) QueryPlans(ctx context.Context, filter *subscription.PlanFilter) ([]subscription.Plan, error) {
	var where conditions
	if filter != nil && filter.ActiveOnly {
		where.add("is_active")
	}
	var rows []planRow
	q := `SELECT ` + planColumns + ` FROM plans` + where.String() + ` ORDER BY name`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting plans")
	}
	plans := make([]subscription.Plan, len(rows))
	for i, r := range rows {
		plans[i] = r.plan()
	}
	return plans, nil
}

func (repo *subscriptionRepository) getPlan(ctx context.Context, col, val string) (subscription.Plan, error) {
	var row planRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+planColumns+` FROM plans WHERE `+col+` = $1`, val); err != nil {
		if isNoRows(err) {
			return subscription.Plan{}, subscription.ErrPlanNotFound
		}
		return subscription.Plan{}, errors.Wrap(err, "selecting plan")
	}
	return row.plan(), nil
}

func (repo *subscriptionRepository) GetPlan(ctx context.Context, id string) (subscription.Plan, error) {
	return repo.getPlan(ctx, "id::text", id)
}

func (repo *subscriptionRepository) GetPlanByName(ctx context.Context, name string) (subscription.Plan, error) {
	return repo.getPlan(ctx, "name", name)
}

func (repo *subscriptionRepository) UpdatePlan(ctx context.Context, p subscription.Plan) (subscription.Plan, error) {
	q := `UPDATE plans SET name = :name, description = :description, interval = :interval, price = :price,
		currency = :currency, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, planRow(p))
	if err != nil {
		return subscription.Plan{}, errors.Wrap(err, "updating plan")
	}
	if _, err := affected(res, subscription.ErrPlanNotFound); err != nil {
		return subscription.Plan{}, err
	}
	return p, nil
}

func (repo *subscriptionRepository) DeletePlan(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM plans WHERE id::text = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting plan")
	}
	_, err = affected(res, subscription.ErrPlanNotFound)
	return err
}

// Subscriptions

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	s.ID = newID()
	q := `INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES (:id, :tenant_id, :plan_id, :status,
		:trial_ends_at, :payment_due_date, :payment_extension_date, :warning_count, :last_warning_at, :cancelled_at,
		:created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newSubscriptionRow(s)); err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return s, nil
}

func (repo *subscriptionRepository) QuerySubscriptions(ctx context.Context, filter *subscription.SubscriptionFilter, ordering []core.DBOrdering) ([]subscription.Subscription, error) {
	var where conditions
	if filter != nil {
		if filter.TenantID != "" {
			where.add("tenant_id = ?", filter.TenantID)
		}
		if filter.PlanID != "" {
			where.add("plan_id::text = ?", filter.PlanID)
		}
		if len(filter.Statuses) > 0 {
			where.add("status = ANY(?)", pq.Array(filter.Statuses))
		}
		if filter.DueBefore != nil {
			where.add("payment_due_date < ?", *filter.DueBefore)
		}
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions` + where.String() +
		orderBy(ordering, core.DBOrdering{Field: "created_at"})

	var rows []subscriptionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting subscriptions")
	}
	subs := make([]subscription.Subscription, len(rows))
	for i, r := range rows {
		subs[i] = r.subscription()
	}
	return subs, nil
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, tenantID, id string) (subscription.Subscription, error) {
	var where conditions
	where.add("id::text = ?", id)
	if tenantID != "" {
		where.add("tenant_id = ?", tenantID)
	}
	var row subscriptionRow
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions` + where.String()
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), where.args...); err != nil {
		if isNoRows(err) {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, errors.Wrap(err, "selecting subscription")
	}
	return row.subscription(), nil
}

func (repo *subscriptionRepository) UpdateSubscription(ctx context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	q := `UPDATE subscriptions SET plan_id = :plan_id, status = :status, trial_ends_at = :trial_ends_at,
		payment_due_date = :payment_due_date, payment_extension_date = :payment_extension_date,
		warning_count = :warning_count, last_warning_at = :last_warning_at, cancelled_at = :cancelled_at,
		updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newSubscriptionRow(s))
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if _, err := affected(res, subscription.ErrNotFound); err != nil {
		return subscription.Subscription{}, err
	}
	return s, nil
}

// Payments

func (repo *subscriptionRepository) CreatePayment(ctx context.Context, p subscription.Payment) (subscription.Payment, error) {
	p.ID = newID()
	q := `INSERT INTO payments (` + paymentColumns + `) VALUES (:id, :tenant_id, :subscription_id, :amount, :currency,
		:method, :reference, :status, :submitted_by, :reviewed_by, :reviewed_at, :note, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newPaymentRow(p)); err != nil {
		return subscription.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *subscriptionRepository) QueryPayments(ctx context.Context, filter *subscription.PaymentFilter, ordering []core.DBOrdering) ([]subscription.Payment, error) {
	var where conditions
	if filter != nil {
		if filter.TenantID != "" {
			where.add("tenant_id = ?", filter.TenantID)
		}
		if filter.SubscriptionID != "" {
			where.add("subscription_id::text = ?", filter.SubscriptionID)
		}
		if filter.Status != "" {
			where.add("status = ?", filter.Status)
		}
	}
	q := `SELECT ` + paymentColumns + ` FROM payments` + where.String() + orderBy(ordering, core.DBOrdering{Field: "created_at"})

	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	payments := make([]subscription.Payment, len(rows))
	for i, r := range rows {
		payments[i] = r.payment()
	}
	return payments, nil
}

func (repo *subscriptionRepository) GetPayment(ctx context.Context, tenantID, id string) (subscription.Payment, error) {
	var where conditions
	where.add("id::text = ?", id)
	if tenantID != "" {
		where.add("tenant_id = ?", tenantID)
	}
	var row paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payments` + where.String()
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), where.args...); err != nil {
		if isNoRows(err) {
			return subscription.Payment{}, subscription.ErrPaymentNotFound
		}
		return subscription.Payment{}, errors.Wrap(err, "selecting payment")
	}
	return row.payment(), nil
}

func (repo *subscriptionRepository) UpdatePayment(ctx context.Context, p subscription.Payment) (subscription.Payment, error) {
	q := `UPDATE payments SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, note = :note
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newPaymentRow(p))
	if err != nil {
		return subscription.Payment{}, errors.Wrap(err, "updating payment")
	}
	if _, err := affected(res, subscription.ErrPaymentNotFound); err != nil {
		return subscription.Payment{}, err
	}
	return p, nil
}

// Approval settings

type approvalSettingsRow struct {
	AutoApprove          bool            `db:"auto_approve"`
	AutoApproveMaxAmount decimal.Decimal `db:"auto_approve_max_amount"`
	RequireReference     bool            `db:"require_reference"`
	UpdatedBy            string          `db:"updated_by"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

func (repo *subscriptionRepository) GetApprovalSettings(ctx context.Context) (subscription.ApprovalSettings, error) {
	var row approvalSettingsRow
	q := `SELECT auto_approve, auto_approve_max_amount, require_reference, updated_by, updated_at
		FROM approval_settings WHERE id = 1`
	if err := repo.db.GetContext(ctx, &row, q); err != nil {
		if isNoRows(err) {
			return subscription.ApprovalSettings{}, nil
		}
		return subscription.ApprovalSettings{}, errors.Wrap(err, "selecting approval settings")
	}
	return subscription.ApprovalSettings(row), nil
}

func (repo *subscriptionRepository) SaveApprovalSettings(ctx context.Context, as subscription.ApprovalSettings) (subscription.ApprovalSettings, error) {
	q := `INSERT INTO approval_settings (id, auto_approve, auto_approve_max_amount, require_reference, updated_by, updated_at)
		VALUES (1, :auto_approve, :auto_approve_max_amount, :require_reference, :updated_by, :updated_at)
		ON CONFLICT (id) DO UPDATE SET auto_approve = EXCLUDED.auto_approve,
		auto_approve_max_amount = EXCLUDED.auto_approve_max_amount, require_reference = EXCLUDED.require_reference,
		updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err := repo.db.NamedExecContext(ctx, q, approvalSettingsRow(as)); err != nil {
		return subscription.ApprovalSettings{}, errors.Wrap(err, "saving approval settings")
	}
	return as, nil
}
