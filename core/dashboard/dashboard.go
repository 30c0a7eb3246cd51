// Package dashboard computes the summary counts shown on each portal's home page.
package dashboard

import (
	"context"
	"time"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

const recentActivity = 7 * 24 * time.Hour

type AdminSummary struct {
	Tenants              int `json:"tenants"`
	ActiveTenants        int `json:"active_tenants"`
	Users                int `json:"users"`
	ActiveSubscriptions  int `json:"active_subscriptions"`
	PastDueSubscriptions int `json:"past_due_subscriptions"`
	PendingPayments      int `json:"pending_payments"`
	OpenAlerts           int `json:"open_alerts"`
}

type InstitutionSummary struct {
	UsersByRole     map[string]int `json:"users_by_role"`
	QuizzesByStatus map[string]int `json:"quizzes_by_status"`
	RecentAttempts  int            `json:"recent_attempts"` // submitted during the last 7 days
	AverageScore    float64        `json:"average_score"`   // percent, over the recent attempts
	RunningABTests  int            `json:"running_ab_tests"`
	OpenAlerts      int            `json:"open_alerts"`
}

type StudentSummary struct {
	PublishedQuizzes    int     `json:"published_quizzes"`
	Attempts            int     `json:"attempts"`
	PassedAttempts      int     `json:"passed_attempts"`
	AverageScore        float64 `json:"average_score"`
	UnreadNotifications int     `json:"unread_notifications"`
}

type (
	Repository interface {
		AdminSummary(ctx context.Context) (AdminSummary, error)
		InstitutionSummary(ctx context.Context, tenantID string, since time.Time) (InstitutionSummary, error)
		StudentSummary(ctx context.Context, tenantID, userID string) (StudentSummary, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Admin(ctx context.Context) (AdminSummary, error) {
	return svc.repo.AdminSummary(ctx)
}

func (svc *Service) Institution(ctx context.Context, tenantID string) (InstitutionSummary, error) {
	return svc.repo.InstitutionSummary(ctx, tenantID, core.NowFunc().Add(-recentActivity))
}

func (svc *Service) Student(ctx context.Context, tenantID, userID string) (StudentSummary, error) {
	return svc.repo.StudentSummary(ctx, tenantID, userID)
}
