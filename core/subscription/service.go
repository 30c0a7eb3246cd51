package subscription

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

var (
	// errors
	ErrPlanNotFound    = errors.New("plan not found")
	ErrNotFound        = errors.New("subscription not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPlanNameExists  = errors.New("plan name already exists")

	errPlanInactive     = "this plan is not available"
	errAlreadySubscribe = "the institution already has a subscription"
	errSamePlan         = "already subscribed to this plan"
	errCancelled        = "the subscription is cancelled"
	errCurrencyMismatch = "must be %s"
	errRefRequired      = "a payment reference is required"
	errNotPending       = "the payment was already reviewed"
	errNoteRequired     = "a note is required to reject a payment"
	errPlanInUse        = "the plan is used by subscriptions"

	dateLayout = "Jan 2, 2006"

	approvedTemplate  = "payment_approved"
	warningTemplate   = "payment_warning"
	suspendedTemplate = "tenant_suspended"
)

type (
	Repository interface {
		CreatePlan(ctx context.Context, p Plan) (Plan, error)
		QueryPlans(ctx context.Context, filter *PlanFilter) ([]Plan, error)
		GetPlan(ctx context.Context, id string) (Plan, error)
		GetPlanByName(ctx context.Context, name string) (Plan, error)
		UpdatePlan(ctx context.Context, p Plan) (Plan, error)
		DeletePlan(ctx context.Context, id string) error

		CreateSubscription(ctx context.Context, s Subscription) (Subscription, error)
		QuerySubscriptions(ctx context.Context, filter *SubscriptionFilter, ordering []core.DBOrdering) ([]Subscription, error)
		GetSubscription(ctx context.Context, tenantID, id string) (Subscription, error)
		UpdateSubscription(ctx context.Context, s Subscription) (Subscription, error)

		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		QueryPayments(ctx context.Context, filter *PaymentFilter, ordering []core.DBOrdering) ([]Payment, error)
		GetPayment(ctx context.Context, tenantID, id string) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment) (Payment, error)

		// GetApprovalSettings returns the zero settings when none were saved.
		GetApprovalSettings(ctx context.Context) (ApprovalSettings, error)
		SaveApprovalSettings(ctx context.Context, as ApprovalSettings) (ApprovalSettings, error)
	}

	Tenants interface {
		GetByID(ctx context.Context, id string) (tenant.Tenant, error)
		SetActive(ctx context.Context, id string, active bool) (tenant.Tenant, error)
	}

	Members interface {
		QueryTenantMembers(ctx context.Context, tenantID string, roles ...string) ([]user.User, error)
	}

	Inbox interface {
		Notify(ctx context.Context, recipients []user.User, msg notification.Message) error
	}

	Service struct {
		repo    Repository
		tenants Tenants
		members Members
		inbox   Inbox
		mailSvc core.EmailService
		logger  core.Logger
	}

	approvedData struct {
		TenantName string
		Amount     string
		Currency   string
		Reference  string
		PlanName   string
		DueDate    string
	}

	warningData struct {
		TenantName    string
		PlanName      string
		DueDate       string
		ExtensionDate string
	}
)

func NewService(repo Repository, tenants Tenants, members Members, inbox Inbox, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{repo: repo, tenants: tenants, members: members, inbox: inbox, mailSvc: mailSvc, logger: logger}
}

// Plans

func (svc *Service) CreatePlan(ctx context.Context, pi PlanInput) (Plan, error) {
	if err := svc.checkPlanName(ctx, pi.Name); err != nil {
		return Plan{}, err
	}
	now := core.NowFunc()
	p := Plan{CreatedAt: now, UpdatedAt: now}
	pi.apply(&p)
	return svc.repo.CreatePlan(ctx, p)
}

func (pi PlanInput) apply(p *Plan) {
	p.Name = pi.Name
	p.Description = pi.Description
	p.Interval = pi.Interval
	p.Price = pi.Price
	p.Currency = pi.Currency
	p.IsActive = pi.IsActive == nil || *pi.IsActive
}

func (svc *Service) checkPlanName(ctx context.Context, name string, excluded ...Plan) error {
	p, err := svc.repo.GetPlanByName(ctx, name)
	if err != nil {
		if errors.Cause(err) == ErrPlanNotFound {
			return nil
		}
		return errors.Wrap(err, "finding plan by name")
	}
	if len(excluded) > 0 && excluded[0].ID == p.ID {
		return nil
	}
	return core.NewFieldError("name", ErrPlanNameExists.Error())
}

func (svc *Service) QueryPlans(ctx context.Context, filter *PlanFilter) ([]Plan, error) {
	return svc.repo.QueryPlans(ctx, filter)
}

func (svc *Service) GetPlan(ctx context.Context, id string) (Plan, error) {
	return svc.repo.GetPlan(ctx, id)
}

func (svc *Service) UpdatePlan(ctx context.Context, p Plan, pi PlanInput) (Plan, error) {
	if err := svc.checkPlanName(ctx, pi.Name, p); err != nil {
		return Plan{}, err
	}
	pi.apply(&p)
	p.UpdatedAt = core.NowFunc()
	return svc.repo.UpdatePlan(ctx, p)
}

// DeletePlan deletes a plan no subscription refers to. Used plans should be deactivated instead.
func (svc *Service) DeletePlan(ctx context.Context, p Plan) error {
	subs, err := svc.repo.QuerySubscriptions(ctx, &SubscriptionFilter{PlanID: p.ID}, nil)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if len(subs) > 0 {
		return core.NewFieldError("plan", errPlanInUse)
	}
	return svc.repo.DeletePlan(ctx, p.ID)
}

// Subscriptions

func (svc *Service) QuerySubscriptions(ctx context.Context, filter *SubscriptionFilter, ordering []core.DBOrdering) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, filter, core.CleanOrdering(ordering, SubscriptionOrderingFields...))
}

func (svc *Service) GetSubscription(ctx context.Context, tenantID, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, tenantID, id)
}

// Current returns the tenant's subscription that is not cancelled.
func (svc *Service) Current(ctx context.Context, tenantID string) (Subscription, error) {
	subs, err := svc.repo.QuerySubscriptions(ctx, &SubscriptionFilter{
		TenantID: tenantID,
		Statuses: append([]string{StatusSuspended}, billableStatuses...),
	}, nil)
	if err != nil {
		return Subscription{}, errors.Wrap(err, "querying subscriptions")
	}
	if len(subs) == 0 {
		return Subscription{}, ErrNotFound
	}
	return subs[0], nil
}

func (svc *Service) activePlan(ctx context.Context, id string) (Plan, error) {
	p, err := svc.repo.GetPlan(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrPlanNotFound {
			return Plan{}, core.NewFieldError("plan_id", errPlanInactive)
		}
		return Plan{}, errors.Wrap(err, "finding plan")
	}
	if !p.IsActive {
		return Plan{}, core.NewFieldError("plan_id", errPlanInactive)
	}
	return p, nil
}

// Subscribe starts a trial of the plan for the tenant. Payment is due at the end of the trial.
func (svc *Service) Subscribe(ctx context.Context, tenantID string, sub Subscribe) (Subscription, error) {
	p, err := svc.activePlan(ctx, sub.PlanID)
	if err != nil {
		return Subscription{}, err
	}
	if _, err = svc.Current(ctx, tenantID); err == nil {
		return Subscription{}, core.NewFieldError("plan_id", errAlreadySubscribe)
	} else if errors.Cause(err) != ErrNotFound {
		return Subscription{}, err
	}

	now := core.NowFunc()
	trialEnd := now.Add(core.Conf.Billing.TrialPeriod)
	s := Subscription{
		TenantID:             tenantID,
		PlanID:               p.ID,
		Status:               StatusTrialing,
		TrialEndsAt:          core.TimePtr(trialEnd),
		PaymentDueDate:       trialEnd,
		PaymentExtensionDate: trialEnd.Add(core.Conf.Billing.GracePeriod),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return svc.repo.CreateSubscription(ctx, s)
}

// ChangePlan switches the subscription to another plan; the new price applies from the next payment.
func (svc *Service) ChangePlan(ctx context.Context, s Subscription, sub Subscribe) (Subscription, error) {
	if s.Status == StatusCancelled {
		return Subscription{}, core.NewFieldError("status", errCancelled)
	}
	if s.PlanID == sub.PlanID {
		return Subscription{}, core.NewFieldError("plan_id", errSamePlan)
	}
	p, err := svc.activePlan(ctx, sub.PlanID)
	if err != nil {
		return Subscription{}, err
	}
	s.PlanID = p.ID
	s.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSubscription(ctx, s)
}

func (svc *Service) Cancel(ctx context.Context, s Subscription) (Subscription, error) {
	if s.Status == StatusCancelled {
		return Subscription{}, core.NewFieldError("status", errCancelled)
	}
	now := core.NowFunc()
	s.Status = StatusCancelled
	s.CancelledAt = core.TimePtr(now)
	s.UpdatedAt = now
	return svc.repo.UpdateSubscription(ctx, s)
}

// Payments

func (svc *Service) QueryPayments(ctx context.Context, filter *PaymentFilter, ordering []core.DBOrdering) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter, core.CleanOrdering(ordering, PaymentOrderingFields...))
}

func (svc *Service) GetPayment(ctx context.Context, tenantID, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, tenantID, id)
}

// SubmitPayment records a payment for the subscription. It is approved right away when
// the approval settings allow it.
func (svc *Service) SubmitPayment(ctx context.Context, s Subscription, by user.User, np NewPayment) (Payment, error) {
	if s.Status == StatusCancelled {
		return Payment{}, core.NewFieldError("subscription", errCancelled)
	}
	p, err := svc.repo.GetPlan(ctx, s.PlanID)
	if err != nil {
		return Payment{}, errors.Wrap(err, "finding plan")
	}
	if np.Currency == "" {
		np.Currency = p.Currency
	}
	if np.Currency != p.Currency {
		return Payment{}, core.NewFieldError("currency", fmt.Sprintf(errCurrencyMismatch, p.Currency))
	}
	settings, err := svc.repo.GetApprovalSettings(ctx)
	if err != nil {
		return Payment{}, errors.Wrap(err, "getting approval settings")
	}
	if settings.RequireReference && np.Reference == "" {
		return Payment{}, core.NewFieldError("reference", errRefRequired)
	}

	pmt, err := svc.repo.CreatePayment(ctx, Payment{
		TenantID:       s.TenantID,
		SubscriptionID: s.ID,
		Amount:         np.Amount,
		Currency:       np.Currency,
		Method:         np.Method,
		Reference:      np.Reference,
		Status:         PaymentPending,
		SubmittedBy:    by.ID,
		CreatedAt:      core.NowFunc(),
	})
	if err != nil {
		return Payment{}, errors.Wrap(err, "creating payment")
	}

	if settings.CanAutoApprove(pmt.Amount) {
		return svc.approve(ctx, pmt, AutoApprover, "")
	}
	return pmt, nil
}

// Approve approves a pending payment: the subscription is paid for one more interval
// and the tenant gets re-activated. Payments of cancelled subscriptions can only be rejected.
func (svc *Service) Approve(ctx context.Context, pmt Payment, reviewer user.User, rv Review) (Payment, error) {
	if pmt.Status != PaymentPending {
		return Payment{}, core.NewFieldError("status", errNotPending)
	}
	return svc.approve(ctx, pmt, reviewer.ID, rv.Note)
}

func (svc *Service) approve(ctx context.Context, pmt Payment, reviewerID, note string) (Payment, error) {
	s, err := svc.repo.GetSubscription(ctx, pmt.TenantID, pmt.SubscriptionID)
	if err != nil {
		return Payment{}, errors.Wrap(err, "finding subscription")
	}
	if s.Status == StatusCancelled {
		return Payment{}, core.NewFieldError("subscription", errCancelled)
	}
	p, err := svc.repo.GetPlan(ctx, s.PlanID)
	if err != nil {
		return Payment{}, errors.Wrap(err, "finding plan")
	}

	now := core.NowFunc()
	pmt.Status = PaymentApproved
	pmt.ReviewedBy = reviewerID
	pmt.ReviewedAt = core.TimePtr(now)
	pmt.Note = note
	if pmt, err = svc.repo.UpdatePayment(ctx, pmt); err != nil {
		return Payment{}, errors.Wrap(err, "updating payment")
	}

	due := s.PaymentDueDate
	if now.After(due) {
		due = now
	}
	s.PaymentDueDate = p.Period(due)
	s.PaymentExtensionDate = s.PaymentDueDate.Add(core.Conf.Billing.GracePeriod)
	s.Status = StatusActive
	s.WarningCount = 0
	s.LastWarningAt = nil
	s.UpdatedAt = now
	if s, err = svc.repo.UpdateSubscription(ctx, s); err != nil {
		return Payment{}, errors.Wrap(err, "updating subscription")
	}

	t, err := svc.tenants.SetActive(ctx, s.TenantID, true)
	if err != nil {
		return Payment{}, errors.Wrap(err, "activating tenant")
	}

	data := approvedData{
		TenantName: t.Name,
		Amount:     pmt.Amount.StringFixed(2),
		Currency:   pmt.Currency,
		Reference:  pmt.Reference,
		PlanName:   p.Name,
		DueDate:    s.PaymentDueDate.Format(dateLayout),
	}
	svc.mailTenant(t, "Payment received", approvedTemplate, data)
	svc.notifyAdmins(ctx, t.ID, notification.CategoryPayments, "Payment approved",
		fmt.Sprintf("A payment of %s %s was approved. The subscription is paid until %s.",
			data.Amount, data.Currency, data.DueDate))
	return pmt, nil
}

// Reject rejects a pending payment; a note explaining why is required.
func (svc *Service) Reject(ctx context.Context, pmt Payment, reviewer user.User, rv Review) (Payment, error) {
	if pmt.Status != PaymentPending {
		return Payment{}, core.NewFieldError("status", errNotPending)
	}
	if rv.Note == "" {
		return Payment{}, core.NewFieldError("note", errNoteRequired)
	}
	pmt.Status = PaymentRejected
	pmt.ReviewedBy = reviewer.ID
	pmt.ReviewedAt = core.TimePtr(core.NowFunc())
	pmt.Note = rv.Note
	pmt, err := svc.repo.UpdatePayment(ctx, pmt)
	if err != nil {
		return Payment{}, errors.Wrap(err, "updating payment")
	}
	svc.notifyAdmins(ctx, pmt.TenantID, notification.CategoryPayments, "Payment rejected",
		fmt.Sprintf("A payment of %s %s was rejected: %s", pmt.Amount.StringFixed(2), pmt.Currency, pmt.Note))
	return pmt, nil
}

// Approval settings

func (svc *Service) GetApprovalSettings(ctx context.Context) (ApprovalSettings, error) {
	return svc.repo.GetApprovalSettings(ctx)
}

func (svc *Service) UpdateApprovalSettings(ctx context.Context, by user.User, uas UpdateApprovalSettings) (ApprovalSettings, error) {
	as, err := svc.repo.GetApprovalSettings(ctx)
	if err != nil {
		return ApprovalSettings{}, errors.Wrap(err, "getting approval settings")
	}
	if uas.AutoApprove != nil {
		as.AutoApprove = *uas.AutoApprove
	}
	if uas.AutoApproveMaxAmount != nil {
		as.AutoApproveMaxAmount = *uas.AutoApproveMaxAmount
	}
	if uas.RequireReference != nil {
		as.RequireReference = *uas.RequireReference
	}
	as.UpdatedBy = by.ID
	as.UpdatedAt = core.NowFunc()
	return svc.repo.SaveApprovalSettings(ctx, as)
}

// Billing jobs

// SendPaymentWarnings warns tenants whose payment is overdue but still within the grace period.
// Warnings get closer together as the extension date approaches, see WarningInterval.
func (svc *Service) SendPaymentWarnings(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	subs, err := svc.repo.QuerySubscriptions(ctx, &SubscriptionFilter{Statuses: billableStatuses, DueBefore: &now}, nil)
	if err != nil {
		return report, errors.Wrap(err, "querying overdue subscriptions")
	}

	bc := core.Conf.Billing
	for _, s := range subs {
		if !now.After(s.PaymentDueDate) || !now.Before(s.PaymentExtensionDate) {
			continue
		}
		report.Checked++
		if s.LastWarningAt != nil && now.Sub(*s.LastWarningAt) < WarningInterval(bc.BaseWarningInterval, bc.MinWarningInterval, s.WarningCount) {
			continue
		}

		s.Status = StatusPastDue
		s.WarningCount++
		s.LastWarningAt = core.TimePtr(now)
		s.UpdatedAt = now
		if s, err = svc.repo.UpdateSubscription(ctx, s); err != nil {
			return report, errors.Wrap(err, "updating subscription")
		}

		if err = svc.sendWarning(ctx, s); err != nil {
			svc.logError(fmt.Sprintf("sending payment warning for subscription %s", s.ID), err)
			continue
		}
		report.Sent++
	}
	return report, nil
}

func (svc *Service) sendWarning(ctx context.Context, s Subscription) error {
	t, err := svc.tenants.GetByID(ctx, s.TenantID)
	if err != nil {
		return errors.Wrap(err, "finding tenant")
	}
	p, err := svc.repo.GetPlan(ctx, s.PlanID)
	if err != nil {
		return errors.Wrap(err, "finding plan")
	}
	data := warningData{
		TenantName:    t.Name,
		PlanName:      p.Name,
		DueDate:       s.PaymentDueDate.Format(dateLayout),
		ExtensionDate: s.PaymentExtensionDate.Format(dateLayout),
	}
	svc.mailTenant(t, "Payment overdue", warningTemplate, data)
	svc.notifyAdmins(ctx, t.ID, notification.CategorySubscriptions, "Payment overdue",
		fmt.Sprintf("The %s subscription payment was due on %s. Pay before %s to keep access.",
			data.PlanName, data.DueDate, data.ExtensionDate))
	return nil
}

// DeactivateExpired suspends the subscriptions whose extension date has passed and deactivates their tenants.
func (svc *Service) DeactivateExpired(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	subs, err := svc.repo.QuerySubscriptions(ctx, &SubscriptionFilter{Statuses: billableStatuses, DueBefore: &now}, nil)
	if err != nil {
		return report, errors.Wrap(err, "querying overdue subscriptions")
	}

	for _, s := range subs {
		if now.Before(s.PaymentExtensionDate) {
			continue
		}
		report.Checked++
		s.Status = StatusSuspended
		s.UpdatedAt = now
		if s, err = svc.repo.UpdateSubscription(ctx, s); err != nil {
			return report, errors.Wrap(err, "updating subscription")
		}
		t, err := svc.tenants.SetActive(ctx, s.TenantID, false)
		if err != nil {
			svc.logError(fmt.Sprintf("deactivating tenant %s", s.TenantID), err)
			continue
		}
		svc.mailTenant(t, "Institution deactivated", suspendedTemplate, warningData{
			TenantName:    t.Name,
			ExtensionDate: s.PaymentExtensionDate.Format(dateLayout),
		})
		report.Sent++
	}
	return report, nil
}

func (svc *Service) mailTenant(t tenant.Tenant, subject, tmpl string, data interface{}) {
	if t.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: t.Name, Address: t.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	})
}

// notifyAdmins is best effort: failures are logged.
func (svc *Service) notifyAdmins(ctx context.Context, tenantID, category, title, body string) {
	admins, err := svc.members.QueryTenantMembers(ctx, tenantID, user.AdminRoles...)
	if err == nil && len(admins) > 0 {
		err = svc.inbox.Notify(ctx, admins, notification.Message{TenantID: tenantID, Category: category, Title: title, Body: body})
	}
	if err != nil {
		svc.logError(fmt.Sprintf("notifying admins of tenant %s", tenantID), err)
	}
}

func (svc *Service) logError(msg string, err error) {
	if svc.logger != nil {
		svc.logger.Error(fmt.Sprintf("%s: %v", msg, err), err)
	}
}
