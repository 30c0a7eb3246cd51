package inmemdb

import (
	"context"
	"strings"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/tag"
)

type tagRepository struct {
	db *DB
}

var _ tag.Repository = (*tagRepository)(nil)

func NewTagRepository(db *DB) tag.Repository {
	return &tagRepository{db: db}
}

var tagFields = fieldGetter[tag.Tag]{
	"name":       func(t tag.Tag) interface{} { return t.Name },
	"color":      func(t tag.Tag) interface{} { return t.Color },
	"created_at": func(t tag.Tag) interface{} { return t.CreatedAt },
	"updated_at": func(t tag.Tag) interface{} { return t.UpdatedAt },
}

func (repo *tagRepository) CheckNameUniqueness(_ context.Context, tenantID, name string, excluded ...tag.Tag) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

outer:
	for _, t := range repo.db.tags {
		if t.TenantID != tenantID || !strings.EqualFold(t.Name, name) {
			continue
		}
		for _, ex := range excluded {
			if ex.ID == t.ID {
				continue outer
			}
		}
		return tag.ErrNameExists
	}
	return nil
}

func (repo *tagRepository) CreateTag(_ context.Context, t tag.Tag) (tag.Tag, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	repo.db.tags[t.ID] = t
	return t, nil
}

func (repo *tagRepository) QueryTags(_ context.Context, filter *tag.QueryFilter, ordering []core.DBOrdering) ([]tag.Tag, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tags := make([]tag.Tag, 0)
	for _, t := range repo.db.tags {
		if t.TenantID != filter.TenantID {
			continue
		}
		if filter.Search != "" && !contains(t.Name, filter.Search) {
			continue
		}
		if len(filter.IDs) > 0 && !core.ContainsString(filter.IDs, t.ID) {
			continue
		}
		tags = append(tags, t)
	}
	order(tags, ordering, tagFields, core.DBOrdering{Field: "name", Ascending: true})
	return tags, nil
}

func (repo *tagRepository) GetTag(_ context.Context, tenantID, id string) (tag.Tag, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.tags[id]; ok && t.TenantID == tenantID {
		return t, nil
	}
	return tag.Tag{}, tag.ErrNotFound
}

func (repo *tagRepository) UpdateTag(_ context.Context, t tag.Tag) (tag.Tag, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.tags[t.ID]; !ok || orig.TenantID != t.TenantID {
		return tag.Tag{}, tag.ErrNotFound
	}
	t.UsageCount = 0
	repo.db.tags[t.ID] = t
	return t, nil
}

func (repo *tagRepository) DeleteTags(_ context.Context, tenantID string, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var deleted []string
	for _, id := range ids {
		if t, ok := repo.db.tags[id]; ok && t.TenantID == tenantID {
			delete(repo.db.tags, id)
			deleted = append(deleted, id)
		}
	}
	if len(deleted) == 0 {
		return 0, nil
	}

	for id, q := range repo.db.quizzes {
		if q.TenantID != tenantID {
			continue
		}
		kept := make([]string, 0, len(q.TagIDs))
		for _, tid := range q.TagIDs {
			if !core.ContainsString(deleted, tid) {
				kept = append(kept, tid)
			}
		}
		if len(kept) != len(q.TagIDs) {
			q.TagIDs = kept
			repo.db.quizzes[id] = q
		}
	}
	return len(deleted), nil
}

func (repo *tagRepository) CountUsage(_ context.Context, tenantID string) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	usage := make(map[string]int)
	for _, q := range repo.db.quizzes {
		if q.TenantID != tenantID {
			continue
		}
		for _, tid := range q.TagIDs {
			usage[tid]++
		}
	}
	return usage, nil
}
