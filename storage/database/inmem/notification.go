package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) GetPreferences(_ context.Context, userID string) ([]notification.Preference, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	prefs := make([]notification.Preference, 0, len(repo.db.preferences[userID]))
	for _, p := range repo.db.preferences[userID] {
		prefs = append(prefs, p)
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Category < prefs[j].Category })
	return prefs, nil
}

func (repo *notificationRepository) SavePreferences(_ context.Context, userID string, prefs ...notification.Preference) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.preferences[userID]
	if !ok {
		stored = make(map[string]notification.Preference)
		repo.db.preferences[userID] = stored
	}
	for _, p := range prefs {
		stored[p.Category] = p
	}
	return nil
}

func (repo *notificationRepository) DeletePreferences(_ context.Context, userID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.preferences, userID)
	return nil
}

func (repo *notificationRepository) QueryDigestSubscribers(_ context.Context, digest string) (map[string][]notification.Preference, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make(map[string][]notification.Preference)
	for userID, prefs := range repo.db.preferences {
		for _, p := range prefs {
			if p.Email && p.Digest == digest {
				subs[userID] = append(subs[userID], p)
			}
		}
	}
	return subs, nil
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, ns ...notification.Notification) ([]notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	created := make([]notification.Notification, 0, len(ns))
	for _, n := range ns {
		n.ID = newID()
		repo.db.notifications[n.ID] = n
		created = append(created, n)
	}
	return created, nil
}

func matchNotification(n notification.Notification, f *notification.QueryFilter) bool {
	if n.UserID != f.UserID {
		return false
	}
	if f.UnreadOnly && n.ReadAt != nil {
		return false
	}
	if f.Category != "" && n.Category != f.Category {
		return false
	}
	if len(f.Categories) > 0 && !core.ContainsString(f.Categories, n.Category) {
		return false
	}
	if !f.CreatedFrom.IsZero() && n.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	return true
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, filter *notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ns := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if matchNotification(n, filter) {
			ns = append(ns, n)
		}
	}
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].ID < ns[j].ID
		}
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
	return ns, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var cnt int
	for _, n := range repo.db.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, userID string, at time.Time, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var cnt int
	for id, n := range repo.db.notifications {
		if n.UserID != userID || n.ReadAt != nil {
			continue
		}
		if len(ids) > 0 && !core.ContainsString(ids, id) {
			continue
		}
		n.ReadAt = core.TimePtr(at)
		repo.db.notifications[id] = n
		cnt++
	}
	return cnt, nil
}
