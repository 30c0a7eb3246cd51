package tenant

import (
	"context"
	"time"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

// Tenant is an institution account. Every institution-owned resource carries its ID.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Email     string    `json:"email"`
	IsActive  *bool     `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (t *Tenant) SetActive(active bool) {
	t.IsActive = &active
}

func (t Tenant) Active() bool {
	return t.IsActive == nil || *t.IsActive
}

type NewTenant struct {
	Name  string `json:"name" validate:"required,max=150"`
	Slug  string `json:"slug" validate:"required,min=3,max=50,alphanum_"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (nt *NewTenant) Validate(ctx context.Context, svc *Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Slug = core.CleanString(nt.Slug, true /* lower */)
	if nt.Slug == "" {
		nt.Slug = core.Slugify(nt.Name)
	}

	if err := core.Validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nt.Slug)
}

type UpdateTenant struct {
	Name     string `json:"name" validate:"omitempty,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	IsActive *bool  `json:"is_active"`
}

func (ut *UpdateTenant) Validate(orig Tenant) error {
	if name := core.CleanString(ut.Name); name != "" {
		ut.Name = name
	} else {
		ut.Name = orig.Name
	}
	if email := core.CleanString(ut.Email, true /* lower */); email != "" {
		ut.Email = email
	} else {
		ut.Email = orig.Email
	}
	return core.Validate.Struct(ut)
}

type GetFilter struct {
	ID   string
	Slug string
}

type QueryFilter struct {
	Search   string `query:"search"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

var OrderingFields = []string{"name", "slug", "email", "is_active", "created_at", "updated_at"}
