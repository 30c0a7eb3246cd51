package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

const alertTemplate = "alert"

type (
	// Recipients finds who should hear about an alert.
	Recipients interface {
		QueryTenantMembers(ctx context.Context, tenantID string, roles ...string) ([]user.User, error)
		QueryStaff(ctx context.Context) ([]user.User, error)
	}

	Inbox interface {
		Notify(ctx context.Context, recipients []user.User, msg notification.Message) error
	}

	// InboxNotifier delivers fired and resolved alerts to tenant admins, or to staff for
	// platform rules, through their notification preferences.
	InboxNotifier struct {
		users Recipients
		inbox Inbox
	}

	alertData struct {
		Severity  string
		RuleName  string
		Status    string
		Message   string
		Metric    string
		Value     string
		Operator  string
		Threshold string
	}
)

var _ Notifier = (*InboxNotifier)(nil)

func NewInboxNotifier(users Recipients, inbox Inbox) *InboxNotifier {
	return &InboxNotifier{users: users, inbox: inbox}
}

func (n *InboxNotifier) Notify(ctx context.Context, evt Event) error {
	if evt.Type == EventAcknowledged {
		return nil
	}

	var (
		recipients []user.User
		err        error
	)
	if evt.Alert.TenantID == "" {
		recipients, err = n.users.QueryStaff(ctx)
	} else {
		recipients, err = n.users.QueryTenantMembers(ctx, evt.Alert.TenantID, user.AdminRoles...)
	}
	if err != nil {
		return errors.Wrap(err, "querying alert recipients")
	}
	if len(recipients) == 0 {
		return nil
	}

	a := evt.Alert
	title := fmt.Sprintf("[%s] %s %s", strings.ToUpper(a.Severity), a.RuleName, evt.Type)
	return n.inbox.Notify(ctx, recipients, notification.Message{
		TenantID: a.TenantID,
		Category: notification.CategoryAlerts,
		Title:    title,
		Body:     a.Message,
		Template: alertTemplate,
		TemplateData: alertData{
			Severity:  a.Severity,
			RuleName:  a.RuleName,
			Status:    a.Status,
			Message:   a.Message,
			Metric:    a.Metric,
			Value:     formatValue(a.Value),
			Operator:  operatorSymbols[a.Operator],
			Threshold: formatValue(a.Threshold),
		},
	})
}
