// Package webhooksvc posts alert events to the webhook URL of their rule.
package webhooksvc

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core/alert"
)

const (
	defaultTimeout = 10 * time.Second
	retryCount     = 2
	retryWait      = 500 * time.Millisecond
	retryMaxWait   = 5 * time.Second
)

type (
	Notifier struct {
		client    *resty.Client
		userAgent string
	}

	payload struct {
		Event    string      `json:"event"`
		Alert    alert.Alert `json:"alert"`
		RuleID   string      `json:"rule_id"`
		RuleName string      `json:"rule_name"`
		SentAt   time.Time   `json:"sent_at"`
	}
)

var _ alert.Notifier = (*Notifier)(nil)

func NewNotifier(appName string) *Notifier {
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})
	return &Notifier{client: client, userAgent: appName + "-alerts"}
}

func (n *Notifier) Notify(ctx context.Context, evt alert.Event) error {
	if evt.Rule.WebhookURL == "" {
		return nil
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", n.userAgent).
		SetBody(payload{
			Event:    evt.Type,
			Alert:    evt.Alert,
			RuleID:   evt.Rule.ID,
			RuleName: evt.Rule.Name,
			SentAt:   time.Now().UTC(),
		}).
		Post(evt.Rule.WebhookURL)
	if err != nil {
		return errors.Wrap(err, "posting alert webhook")
	}
	if !resp.IsSuccess() {
		return errors.Errorf("alert webhook returned %s", resp.Status())
	}
	return nil
}
