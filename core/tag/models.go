package tag

import (
	"context"
	"time"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

const DefaultColor = "#607d8b"

type Tag struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Color      string    `json:"color"`
	UsageCount int       `json:"usage_count"` // number of quizzes using the tag; computed
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type NewTag struct {
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color" validate:"omitempty,hexcolor_"`
}

func (nt *NewTag) Validate(ctx context.Context, tenantID string, svc *Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Color = core.CleanString(nt.Color, true /* lower */)
	if nt.Color == "" {
		nt.Color = DefaultColor
	}
	if err := core.Validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, tenantID, nt.Name)
}

type UpdateTag struct {
	Name  string `json:"name" validate:"omitempty,max=50"`
	Color string `json:"color" validate:"omitempty,hexcolor_"`
}

func (ut *UpdateTag) Validate(ctx context.Context, orig Tag, svc *Service) error {
	if name := core.CleanString(ut.Name); name != "" {
		ut.Name = name
	} else {
		ut.Name = orig.Name
	}
	if color := core.CleanString(ut.Color, true /* lower */); color != "" {
		ut.Color = color
	} else {
		ut.Color = orig.Color
	}
	if err := core.Validate.Struct(ut); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, orig.TenantID, ut.Name, orig)
}

type QueryFilter struct {
	TenantID string   `query:"-"`
	Search   string   `query:"search"`
	IDs      []string `query:"id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.IDs = core.UniqueStrings(qf.IDs)
}

var OrderingFields = []string{"name", "color", "created_at", "updated_at"}
