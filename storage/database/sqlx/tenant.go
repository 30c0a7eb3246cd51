package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
)

const tenantColumns = `id, name, slug, email, is_active, created_at, updated_at`

type tenantRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	Email     string    `db:"email"`
	IsActive  null.Bool `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func newTenantRow(t tenant.Tenant) tenantRow {
	return tenantRow{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		Email:     t.Email,
		IsActive:  null.BoolFromPtr(t.IsActive),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (r tenantRow) tenant() tenant.Tenant {
	return tenant.Tenant{
		ID:        r.ID,
		Name:      r.Name,
		Slug:      r.Slug,
		Email:     r.Email,
		IsActive:  r.IsActive.Ptr(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type tenantRepository struct {
	db *sqlx.DB
}

var _ tenant.Repository = (*tenantRepository)(nil)

func NewTenantRepository(db *sqlx.DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CheckSlugUniqueness(ctx context.Context, slug string, excluded ...tenant.Tenant) error {
	ids := make([]string, 0, len(excluded))
	for _, t := range excluded {
		ids = append(ids, t.ID)
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1 AND NOT (id::text = ANY($2)))`
	if err := repo.db.GetContext(ctx, &exists, q, slug, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking slug uniqueness")
	}
	if exists {
		return tenant.ErrSlugExists
	}
	return nil
}

func (repo *tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	t.ID = newID()
	q := `INSERT INTO tenants (` + tenantColumns + `) VALUES (:id, :name, :slug, :email, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newTenantRow(t)); err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return t, nil
}

func (repo *tenantRepository) QueryTenants(ctx context.Context, filter *tenant.QueryFilter, ordering []core.DBOrdering) ([]tenant.Tenant, error) {
	var where conditions
	if filter != nil {
		if filter.Search != "" {
			pat := likePattern(filter.Search)
			where.add("(name ILIKE ? OR slug ILIKE ?)", pat, pat)
		}
		if filter.IsActive != nil {
			where.add("COALESCE(is_active, true) = ?", *filter.IsActive)
		}
	}
	q := `SELECT ` + tenantColumns + ` FROM tenants` + where.String() +
		orderBy(ordering, core.DBOrdering{Field: "name", Ascending: true})

	var rows []tenantRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting tenants")
	}
	tenants := make([]tenant.Tenant, len(rows))
	for i, r := range rows {
		tenants[i] = r.tenant()
	}
	return tenants, nil
}

func (repo *tenantRepository) GetTenant(ctx context.Context, filter tenant.GetFilter) (tenant.Tenant, error) {
	col, val := "id", filter.ID
	if val == "" {
		col, val = "slug", filter.Slug
	}
	if val == "" {
		return tenant.Tenant{}, tenant.ErrNotFound
	}

	var row tenantRow
	q := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + col + `::text = $1`
	if err := repo.db.GetContext(ctx, &row, q, val); err != nil {
		if isNoRows(err) {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, "selecting tenant")
	}
	return row.tenant(), nil
}

func (repo *tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	q := `UPDATE tenants SET name = :name, slug = :slug, email = :email, is_active = :is_active,
		updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newTenantRow(t))
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "updating tenant")
	}
	if _, err := affected(res, tenant.ErrNotFound); err != nil {
		return tenant.Tenant{}, err
	}
	return t, nil
}

// DeleteTenantsByID relies on ON DELETE CASCADE for the tenant-owned rows.
func (repo *tenantRepository) DeleteTenantsByID(ctx context.Context, ids ...string) (int, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM tenants WHERE id::text = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting tenants")
	}
	return affected(res, nil)
}
