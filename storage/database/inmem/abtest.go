package inmemdb

import (
	"context"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
)

type abtestRepository struct {
	db *DB
}

var _ abtest.Repository = (*abtestRepository)(nil)

func NewABTestRepository(db *DB) abtest.Repository {
	return &abtestRepository{db: db}
}

var abtestFields = fieldGetter[abtest.Test]{
	"name":       func(t abtest.Test) interface{} { return t.Name },
	"status":     func(t abtest.Test) interface{} { return t.Status },
	"start_date": func(t abtest.Test) interface{} { return t.StartDate },
	"end_date":   func(t abtest.Test) interface{} { return t.EndDate },
	"created_at": func(t abtest.Test) interface{} { return t.CreatedAt },
	"updated_at": func(t abtest.Test) interface{} { return t.UpdatedAt },
}

func copyVariant(v abtest.Variant) abtest.Variant {
	if v.Params != nil {
		params := make(map[string]string, len(v.Params))
		for k, val := range v.Params {
			params[k] = val
		}
		v.Params = params
	}
	return v
}

func copyTest(t abtest.Test) abtest.Test {
	t.VariantA = copyVariant(t.VariantA)
	t.VariantB = copyVariant(t.VariantB)
	return t
}

func (repo *abtestRepository) CreateTest(_ context.Context, t abtest.Test) (abtest.Test, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	repo.db.abtests[t.ID] = copyTest(t)
	return t, nil
}

func (repo *abtestRepository) QueryTests(_ context.Context, filter *abtest.QueryFilter, ordering []core.DBOrdering) ([]abtest.Test, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tests := make([]abtest.Test, 0)
	for _, t := range repo.db.abtests {
		if t.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !contains(t.Name, filter.Search) && !contains(t.Goal, filter.Search) {
			continue
		}
		tests = append(tests, copyTest(t))
	}
	order(tests, ordering, abtestFields, core.DBOrdering{Field: "created_at"})
	return tests, nil
}

func (repo *abtestRepository) GetTest(_ context.Context, tenantID, id string) (abtest.Test, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.abtests[id]; ok && t.TenantID == tenantID {
		return copyTest(t), nil
	}
	return abtest.Test{}, abtest.ErrNotFound
}

func (repo *abtestRepository) UpdateTest(_ context.Context, t abtest.Test) (abtest.Test, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.abtests[t.ID]; !ok || orig.TenantID != t.TenantID {
		return abtest.Test{}, abtest.ErrNotFound
	}
	repo.db.abtests[t.ID] = copyTest(t)
	return t, nil
}

func (repo *abtestRepository) DeleteTest(_ context.Context, tenantID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if t, ok := repo.db.abtests[id]; !ok || t.TenantID != tenantID {
		return abtest.ErrNotFound
	}
	delete(repo.db.abtests, id)
	for k, s := range repo.db.sessions {
		if s.TestID == id {
			delete(repo.db.sessions, k)
		}
	}
	return nil
}

func (repo *abtestRepository) CreateSession(_ context.Context, s abtest.Session) (abtest.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.sessions[s.ID] = s
	return s, nil
}

func (repo *abtestRepository) SessionStats(_ context.Context, testID string) ([]abtest.VariantStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byVariant := map[string]*abtest.VariantStats{
		abtest.VariantA: {Variant: abtest.VariantA},
		abtest.VariantB: {Variant: abtest.VariantB},
	}
	for _, s := range repo.db.sessions {
		if s.TestID != testID {
			continue
		}
		st, ok := byVariant[s.Variant]
		if !ok {
			continue
		}
		st.Sessions++
		if s.Converted {
			st.Conversions++
		}
		st.ValueSum += s.Value
	}
	return []abtest.VariantStats{*byVariant[abtest.VariantA], *byVariant[abtest.VariantB]}, nil
}
