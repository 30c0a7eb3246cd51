package tenant

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

var (
	// errors
	ErrNotFound   = errors.New("tenant not found")
	ErrSlugExists = errors.New("a tenant with this slug already exists")
	ErrInactive   = errors.New("institution unavailable")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, slug string, excluded ...Tenant) error
		CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
		QueryTenants(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Tenant, error)
		GetTenant(ctx context.Context, filter GetFilter) (Tenant, error)
		UpdateTenant(ctx context.Context, t Tenant) (Tenant, error)
		DeleteTenantsByID(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, slug string, excluded ...Tenant) error {
	if err := svc.repo.CheckSlugUniqueness(ctx, slug, excluded...); err != nil {
		if errors.Cause(err) == ErrSlugExists {
			return core.NewValidationError(err, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
		}
		return errors.Wrap(err, "checking tenant uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nt NewTenant) (Tenant, error) {
	now := core.NowFunc()
	t := Tenant{
		Name:      nt.Name,
		Slug:      nt.Slug,
		Email:     nt.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.SetActive(true)
	return svc.repo.CreateTenant(ctx, t)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Tenant, error) {
	return svc.repo.QueryTenants(ctx, filter, core.CleanOrdering(ordering, OrderingFields...))
}

func (svc *Service) GetByID(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenant(ctx, GetFilter{ID: id})
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return svc.repo.GetTenant(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}

// CheckActive returns ErrInactive when the tenant exists but has been deactivated.
// An empty id (platform staff) is always allowed.
func (svc *Service) CheckActive(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	t, err := svc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !t.Active() {
		return ErrInactive
	}
	return nil
}

func (svc *Service) Update(ctx context.Context, t Tenant, ut UpdateTenant) (Tenant, error) {
	t.Name = ut.Name
	t.Email = ut.Email
	if ut.IsActive != nil {
		t.SetActive(*ut.IsActive)
	}
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTenant(ctx, t)
}

// SetActive (de)activates a tenant. It is a no-op when the tenant is already in the requested state.
func (svc *Service) SetActive(ctx context.Context, id string, active bool) (Tenant, error) {
	t, err := svc.GetByID(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if t.Active() == active {
		return t, nil
	}
	t.SetActive(active)
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTenant(ctx, t)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteTenantsByID(ctx, ids...)
	return err
}
