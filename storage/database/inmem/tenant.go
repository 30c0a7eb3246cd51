package inmemdb

import (
	"context"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
)

type tenantRepository struct {
	db *DB
}

var _ tenant.Repository = (*tenantRepository)(nil)

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db}
}

var tenantFields = fieldGetter[tenant.Tenant]{
	"name":       func(t tenant.Tenant) interface{} { return t.Name },
	"slug":       func(t tenant.Tenant) interface{} { return t.Slug },
	"email":      func(t tenant.Tenant) interface{} { return t.Email },
	"is_active":  func(t tenant.Tenant) interface{} { return t.Active() },
	"created_at": func(t tenant.Tenant) interface{} { return t.CreatedAt },
	"updated_at": func(t tenant.Tenant) interface{} { return t.UpdatedAt },
}

func copyTenant(t tenant.Tenant) tenant.Tenant {
	if t.IsActive != nil {
		t.IsActive = core.BoolPtr(*t.IsActive)
	}
	return t
}

func (repo *tenantRepository) CheckSlugUniqueness(_ context.Context, slug string, excluded ...tenant.Tenant) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

outer:
	for _, t := range repo.db.tenants {
		for _, ex := range excluded {
			if ex.ID == t.ID {
				continue outer
			}
		}
		if t.Slug == slug {
			return tenant.ErrSlugExists
		}
	}
	return nil
}

func (repo *tenantRepository) CreateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	repo.db.tenants[t.ID] = copyTenant(t)
	return t, nil
}

func (repo *tenantRepository) QueryTenants(_ context.Context, filter *tenant.QueryFilter, ordering []core.DBOrdering) ([]tenant.Tenant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tenants := make([]tenant.Tenant, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		if filter != nil {
			if filter.Search != "" && !contains(t.Name, filter.Search) && !contains(t.Slug, filter.Search) {
				continue
			}
			if filter.IsActive != nil && t.Active() != *filter.IsActive {
				continue
			}
		}
		tenants = append(tenants, copyTenant(t))
	}
	order(tenants, ordering, tenantFields, core.DBOrdering{Field: "name", Ascending: true})
	return tenants, nil
}

func (repo *tenantRepository) GetTenant(_ context.Context, filter tenant.GetFilter) (tenant.Tenant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if t, ok := repo.db.tenants[filter.ID]; ok {
			return copyTenant(t), nil
		}
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	for _, t := range repo.db.tenants {
		if filter.Slug != "" && t.Slug == filter.Slug {
			return copyTenant(t), nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) UpdateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tenants[t.ID]; !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	repo.db.tenants[t.ID] = copyTenant(t)
	return t, nil
}

// DeleteTenantsByID cascades to everything the tenants own.
func (repo *tenantRepository) DeleteTenantsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	db := repo.db
	var cnt int
	for _, id := range ids {
		if _, ok := db.tenants[id]; !ok {
			continue
		}
		delete(db.tenants, id)
		cnt++

		for k, v := range db.users {
			if v.TenantID == id {
				delete(db.users, k)
				delete(db.preferences, k)
			}
		}
		for k, v := range db.tags {
			if v.TenantID == id {
				delete(db.tags, k)
			}
		}
		for k, v := range db.quizzes {
			if v.TenantID == id {
				delete(db.quizzes, k)
			}
		}
		for k, v := range db.attempts {
			if v.TenantID == id {
				delete(db.attempts, k)
			}
		}
		for k, v := range db.abtests {
			if v.TenantID == id {
				delete(db.abtests, k)
				for sk, s := range db.sessions {
					if s.TestID == k {
						delete(db.sessions, sk)
					}
				}
			}
		}
		for k, v := range db.rules {
			if v.TenantID == id {
				delete(db.rules, k)
			}
		}
		for k, v := range db.alerts {
			if v.TenantID == id {
				delete(db.alerts, k)
			}
		}
		for k, v := range db.notifications {
			if v.TenantID == id {
				delete(db.notifications, k)
			}
		}
		for k, v := range db.subscriptions {
			if v.TenantID == id {
				delete(db.subscriptions, k)
			}
		}
		for k, v := range db.payments {
			if v.TenantID == id {
				delete(db.payments, k)
			}
		}
	}
	return cnt, nil
}
