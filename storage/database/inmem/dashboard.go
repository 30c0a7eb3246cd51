package inmemdb

import (
	"context"
	"math"
	"time"

	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
	"github.com/pqasys/langcsebkg5-sub007/core/dashboard"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
)

type dashboardRepository struct {
	db *DB
}

var _ dashboard.Repository = (*dashboardRepository)(nil)

func NewDashboardRepository(db *DB) dashboard.Repository {
	return &dashboardRepository{db: db}
}

func average(sum float64, cnt int) float64 {
	if cnt == 0 {
		return 0
	}
	return math.Round(sum/float64(cnt)*100) / 100
}

func (repo *dashboardRepository) AdminSummary(_ context.Context) (dashboard.AdminSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var sum dashboard.AdminSummary
	sum.Tenants = len(repo.db.tenants)
	for _, t := range repo.db.tenants {
		if t.Active() {
			sum.ActiveTenants++
		}
	}
	sum.Users = len(repo.db.users)
	for _, s := range repo.db.subscriptions {
		switch s.Status {
		case subscription.StatusActive, subscription.StatusTrialing:
			sum.ActiveSubscriptions++
		case subscription.StatusPastDue:
			sum.PastDueSubscriptions++
		}
	}
	for _, p := range repo.db.payments {
		if p.Status == subscription.PaymentPending {
			sum.PendingPayments++
		}
	}
	for _, a := range repo.db.alerts {
		if a.Open() {
			sum.OpenAlerts++
		}
	}
	return sum, nil
}

func (repo *dashboardRepository) InstitutionSummary(_ context.Context, tenantID string, since time.Time) (dashboard.InstitutionSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sum := dashboard.InstitutionSummary{
		UsersByRole:     make(map[string]int),
		QuizzesByStatus: make(map[string]int),
	}
	for _, u := range repo.db.users {
		if u.TenantID != tenantID {
			continue
		}
		for _, role := range u.Roles {
			sum.UsersByRole[role]++
		}
	}
	for _, q := range repo.db.quizzes {
		if q.TenantID == tenantID {
			sum.QuizzesByStatus[q.Status]++
		}
	}
	var total float64
	for _, a := range repo.db.attempts {
		if a.TenantID == tenantID && a.Status == quiz.AttemptSubmitted && a.SubmittedAt != nil && !a.SubmittedAt.Before(since) {
			sum.RecentAttempts++
			total += a.Percent
		}
	}
	sum.AverageScore = average(total, sum.RecentAttempts)
	for _, t := range repo.db.abtests {
		if t.TenantID == tenantID && t.Status == abtest.StatusRunning {
			sum.RunningABTests++
		}
	}
	for _, a := range repo.db.alerts {
		if a.TenantID == tenantID && a.Open() {
			sum.OpenAlerts++
		}
	}
	return sum, nil
}

func (repo *dashboardRepository) StudentSummary(_ context.Context, tenantID, userID string) (dashboard.StudentSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var sum dashboard.StudentSummary
	for _, q := range repo.db.quizzes {
		if q.TenantID == tenantID && q.Status == quiz.StatusPublished {
			sum.PublishedQuizzes++
		}
	}
	var total float64
	var graded int
	for _, a := range repo.db.attempts {
		if a.TenantID != tenantID || a.UserID != userID {
			continue
		}
		sum.Attempts++
		if a.Status != quiz.AttemptSubmitted {
			continue
		}
		graded++
		total += a.Percent
		if a.Passed {
			sum.PassedAttempts++
		}
	}
	sum.AverageScore = average(total, graded)
	for _, n := range repo.db.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			sum.UnreadNotifications++
		}
	}
	return sum, nil
}
