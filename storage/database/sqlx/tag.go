package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/tag"
)

const tagColumns = `id, tenant_id, name, slug, color, created_at, updated_at`

type tagRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	Color     string    `db:"color"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r tagRow) tag() tag.Tag {
	return tag.Tag{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Slug:      r.Slug,
		Color:     r.Color,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type tagRepository struct {
	db *sqlx.DB
}

var _ tag.Repository = (*tagRepository)(nil)

func NewTagRepository(db *sqlx.DB) tag.Repository {
	return &tagRepository{db: db}
}

func (repo *tagRepository) CheckNameUniqueness(ctx context.Context, tenantID, name string, excluded ...tag.Tag) error {
	ids := make([]string, 0, len(excluded))
	for _, t := range excluded {
		ids = append(ids, t.ID)
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM tags WHERE tenant_id = $1 AND lower(name) = lower($2) AND NOT (id::text = ANY($3)))`
	if err := repo.db.GetContext(ctx, &exists, q, tenantID, name, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking tag name uniqueness")
	}
	if exists {
		return tag.ErrNameExists
	}
	return nil
}

func (repo *tagRepository) CreateTag(ctx context.Context, t tag.Tag) (tag.Tag, error) {
	t.ID = newID()
	q := `INSERT INTO tags (` + tagColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := repo.db.ExecContext(ctx, q, t.ID, t.TenantID, t.Name, t.Slug, t.Color, t.CreatedAt, t.UpdatedAt); err != nil {
		return tag.Tag{}, errors.Wrap(err, "inserting tag")
	}
	return t, nil
}

func (repo *tagRepository) QueryTags(ctx context.Context, filter *tag.QueryFilter, ordering []core.DBOrdering) ([]tag.Tag, error) {
	var where conditions
	where.add("tenant_id = ?", filter.TenantID)
	if filter.Search != "" {
		where.add("name ILIKE ?", likePattern(filter.Search))
	}
	if len(filter.IDs) > 0 {
		where.add("id::text = ANY(?)", pq.Array(filter.IDs))
	}
	q := `SELECT ` + tagColumns + ` FROM tags` + where.String() +
		orderBy(ordering, core.DBOrdering{Field: "name", Ascending: true})

	var rows []tagRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting tags")
	}
	tags := make([]tag.Tag, len(rows))
	for i, r := range rows {
		tags[i] = r.tag()
	}
	return tags, nil
}

func (repo *tagRepository) GetTag(ctx context.Context, tenantID, id string) (tag.Tag, error) {
	var row tagRow
	q := `SELECT ` + tagColumns + ` FROM tags WHERE tenant_id = $1 AND id::text = $2`
	if err := repo.db.GetContext(ctx, &row, q, tenantID, id); err != nil {
		if isNoRows(err) {
			return tag.Tag{}, tag.ErrNotFound
		}
		return tag.Tag{}, errors.Wrap(err, "selecting tag")
	}
	return row.tag(), nil
}

func (repo *tagRepository) UpdateTag(ctx context.Context, t tag.Tag) (tag.Tag, error) {
	q := `UPDATE tags SET name = $1, slug = $2, color = $3, updated_at = $4 WHERE tenant_id = $5 AND id = $6`
	res, err := repo.db.ExecContext(ctx, q, t.Name, t.Slug, t.Color, t.UpdatedAt, t.TenantID, t.ID)
	if err != nil {
		return tag.Tag{}, errors.Wrap(err, "updating tag")
	}
	if _, err := affected(res, tag.ErrNotFound); err != nil {
		return tag.Tag{}, err
	}
	t.UsageCount = 0
	return t, nil
}

func (repo *tagRepository) DeleteTags(ctx context.Context, tenantID string, ids ...string) (int, error) {
	var deleted []string
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `DELETE FROM tags WHERE tenant_id = $1 AND id::text = ANY($2) RETURNING id`
		if err := tx.SelectContext(ctx, &deleted, q, tenantID, pq.Array(ids)); err != nil {
			return errors.Wrap(err, "deleting tags")
		}
		for _, id := range deleted {
			q := `UPDATE quizzes SET tag_ids = array_remove(tag_ids, $1) WHERE tenant_id = $2 AND $1 = ANY(tag_ids)`
			if _, err := tx.ExecContext(ctx, q, id, tenantID); err != nil {
				return errors.Wrap(err, "detaching tag from quizzes")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

func (repo *tagRepository) CountUsage(ctx context.Context, tenantID string) (map[string]int, error) {
	var rows []struct {
		TagID string `db:"tag_id"`
		Count int    `db:"count"`
	}
	q := `SELECT t.tag_id, COUNT(*) AS count FROM quizzes, unnest(quizzes.tag_ids) AS t(tag_id)
		WHERE quizzes.tenant_id = $1 GROUP BY t.tag_id`
	if err := repo.db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, errors.Wrap(err, "counting tag usage")
	}
	usage := make(map[string]int, len(rows))
	for _, r := range rows {
		usage[r.TagID] = r.Count
	}
	return usage, nil
}
