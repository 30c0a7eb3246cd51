package subscription

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

// Billing intervals
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Subscription statuses
const (
	StatusTrialing  = "trialing"
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusSuspended = "suspended"
	StatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

// Payment methods
const (
	MethodBankTransfer = "bank_transfer"
	MethodCard         = "card"
	MethodMobileMoney  = "mobile_money"
	MethodCash         = "cash"
)

// AutoApprover is recorded as reviewer of automatically approved payments.
const AutoApprover = "auto"

var (
	Intervals       = []string{IntervalMonth, IntervalYear}
	Methods         = []string{MethodBankTransfer, MethodCard, MethodMobileMoney, MethodCash}
	PaymentStatuses = []string{PaymentPending, PaymentApproved, PaymentRejected}

	// statuses of subscriptions that still bill
	billableStatuses = []string{StatusTrialing, StatusActive, StatusPastDue}

	intervalTag  = "interval"
	intervalText = "must be one of: month, year"
	methodTag    = "paymentmethod"
	methodText   = "must be one of: bank_transfer, card, mobile_money, cash"

	errPositiveAmount = "must be greater than 0"
	errNegativeAmount = "must not be negative"
)

func init() {
	_ = core.Validate.RegisterValidation(intervalTag, core.OneOfValidation(Intervals))
	core.RegisterCustomTranslation(intervalTag, intervalText)
	_ = core.Validate.RegisterValidation(methodTag, core.OneOfValidation(Methods))
	core.RegisterCustomTranslation(methodTag, methodText)
}

type Plan struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Interval    string          `json:"interval"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Period adds one billing interval to t.
func (p Plan) Period(t time.Time) time.Time {
	if p.Interval == IntervalYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

type PlanInput struct {
	Name        string          `json:"name" yaml:"name" validate:"required,max=100"`
	Description string          `json:"description" yaml:"description" validate:"max=1000"`
	Interval    string          `json:"interval" yaml:"interval" validate:"required,interval"`
	Price       decimal.Decimal `json:"price" yaml:"-"`
	Currency    string          `json:"currency" yaml:"currency" validate:"omitempty,len=3,alpha"`
	IsActive    *bool           `json:"is_active" yaml:"is_active"`
}

func (pi *PlanInput) Validate() error {
	pi.Name = core.CleanString(pi.Name)
	pi.Description = core.CleanString(pi.Description)
	pi.Interval = core.CleanString(pi.Interval, true /* lower */)
	pi.Currency = defaultCurrency(pi.Currency)
	if err := core.Validate.Struct(pi); err != nil {
		return err
	}
	if pi.Price.IsNegative() {
		return core.NewFieldError("price", errNegativeAmount)
	}
	return nil
}

type PlanFilter struct {
	ActiveOnly bool `query:"active"`
}

type Subscription struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenant_id"`
	PlanID               string     `json:"plan_id"`
	Status               string     `json:"status"`
	TrialEndsAt          *time.Time `json:"trial_ends_at"`
	PaymentDueDate       time.Time  `json:"payment_due_date"`
	PaymentExtensionDate time.Time  `json:"payment_extension_date"`
	WarningCount         int        `json:"warning_count"`
	LastWarningAt        *time.Time `json:"last_warning_at"`
	CancelledAt          *time.Time `json:"cancelled_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (s Subscription) Billable() bool {
	return core.ContainsString(billableStatuses, s.Status)
}

type Subscribe struct {
	PlanID string `json:"plan_id" validate:"required"`
}

func (s *Subscribe) Validate() error {
	s.PlanID = core.CleanString(s.PlanID)
	return core.Validate.Struct(s)
}

type SubscriptionFilter struct {
	TenantID  string     `query:"-"`
	PlanID    string     `query:"plan_id"`
	Statuses  []string   `query:"status"`
	DueBefore *time.Time `query:"-"`
}

var SubscriptionOrderingFields = []string{"status", "payment_due_date", "created_at", "updated_at"}

type Payment struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	SubscriptionID string          `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Method         string          `json:"method"`
	Reference      string          `json:"reference"`
	Status         string          `json:"status"`
	SubmittedBy    string          `json:"submitted_by"`
	ReviewedBy     string          `json:"reviewed_by"`
	ReviewedAt     *time.Time      `json:"reviewed_at"`
	Note           string          `json:"note"`
	CreatedAt      time.Time       `json:"created_at"`
}

type NewPayment struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Method    string          `json:"method" validate:"required,paymentmethod"`
	Reference string          `json:"reference" validate:"max=100"`
}

func (np *NewPayment) Validate() error {
	np.Currency = strings.ToUpper(core.CleanString(np.Currency))
	np.Method = core.CleanString(np.Method, true /* lower */)
	np.Reference = core.CleanString(np.Reference)
	if err := core.Validate.Struct(np); err != nil {
		return err
	}
	if !np.Amount.IsPositive() {
		return core.NewFieldError("amount", errPositiveAmount)
	}
	return nil
}

type Review struct {
	Note string `json:"note" validate:"max=1000"`
}

func (r *Review) Validate() error {
	r.Note = core.CleanString(r.Note)
	return core.Validate.Struct(r)
}

type PaymentFilter struct {
	TenantID       string `query:"-"`
	SubscriptionID string `query:"subscription_id"`
	Status         string `query:"status"`
}

var PaymentOrderingFields = []string{"amount", "status", "created_at", "reviewed_at"}

// ApprovalSettings control how submitted payments get approved, platform-wide.
type ApprovalSettings struct {
	AutoApprove          bool            `json:"auto_approve"`
	AutoApproveMaxAmount decimal.Decimal `json:"auto_approve_max_amount"`
	RequireReference     bool            `json:"require_reference"`
	UpdatedBy            string          `json:"updated_by"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// CanAutoApprove reports whether a payment of amount gets approved without review.
func (as ApprovalSettings) CanAutoApprove(amount decimal.Decimal) bool {
	return as.AutoApprove && amount.LessThanOrEqual(as.AutoApproveMaxAmount)
}

type UpdateApprovalSettings struct {
	AutoApprove          *bool            `json:"auto_approve"`
	AutoApproveMaxAmount *decimal.Decimal `json:"auto_approve_max_amount"`
	RequireReference     *bool            `json:"require_reference"`
}

func (uas *UpdateApprovalSettings) Validate() error {
	if uas.AutoApproveMaxAmount != nil && uas.AutoApproveMaxAmount.IsNegative() {
		return core.NewFieldError("auto_approve_max_amount", errNegativeAmount)
	}
	return nil
}

// WarningInterval is the delay between two payment warnings: it halves with every warning sent,
// down to min.
func WarningInterval(base, min time.Duration, warningCount int) time.Duration {
	iv := base
	for i := 0; i < warningCount && iv > min; i++ {
		iv /= 2
	}
	if iv < min {
		iv = min
	}
	return iv
}

// Report summarizes a billing job run.
type Report struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
}

func defaultCurrency(c string) string {
	c = strings.ToUpper(core.CleanString(c))
	if c == "" {
		return core.Conf.Billing.Currency
	}
	return c
}
