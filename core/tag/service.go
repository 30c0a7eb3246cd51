package tag

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

var (
	// errors
	ErrNotFound   = errors.New("tag not found")
	ErrNameExists = errors.New("a tag with this name already exists")

	errUnknownTags = "unknown tags"
)

type (
	Repository interface {
		// CheckNameUniqueness compares names case-insensitively within the tenant.
		CheckNameUniqueness(ctx context.Context, tenantID, name string, excluded ...Tag) error
		CreateTag(ctx context.Context, t Tag) (Tag, error)
		QueryTags(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Tag, error)
		GetTag(ctx context.Context, tenantID, id string) (Tag, error)
		UpdateTag(ctx context.Context, t Tag) (Tag, error)
		// DeleteTags also detaches the deleted tags from the tenant's quizzes.
		DeleteTags(ctx context.Context, tenantID string, ids ...string) (int, error)
		// CountUsage returns the number of quizzes referencing each tag of the tenant.
		CountUsage(ctx context.Context, tenantID string) (map[string]int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, tenantID, name string, excluded ...Tag) error {
	if err := svc.repo.CheckNameUniqueness(ctx, tenantID, name, excluded...); err != nil {
		if errors.Cause(err) == ErrNameExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
		}
		return errors.Wrap(err, "checking tag uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, tenantID string, nt NewTag) (Tag, error) {
	now := core.NowFunc()
	return svc.repo.CreateTag(ctx, Tag{
		TenantID:  tenantID,
		Name:      nt.Name,
		Slug:      core.Slugify(nt.Name),
		Color:     nt.Color,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Query returns the tenant's tags along with their usage counts.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Tag, error) {
	tags, err := svc.repo.QueryTags(ctx, filter, core.CleanOrdering(ordering, OrderingFields...))
	if err != nil {
		return nil, errors.Wrap(err, "querying tags")
	}
	if len(tags) == 0 {
		return tags, nil
	}
	usage, err := svc.repo.CountUsage(ctx, filter.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "counting tag usage")
	}
	for i := range tags {
		tags[i].UsageCount = usage[tags[i].ID]
	}
	return tags, nil
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Tag, error) {
	t, err := svc.repo.GetTag(ctx, tenantID, id)
	if err != nil {
		return Tag{}, err
	}
	usage, err := svc.repo.CountUsage(ctx, tenantID)
	if err != nil {
		return Tag{}, errors.Wrap(err, "counting tag usage")
	}
	t.UsageCount = usage[t.ID]
	return t, nil
}

func (svc *Service) Update(ctx context.Context, t Tag, ut UpdateTag) (Tag, error) {
	t.Name = ut.Name
	t.Slug = core.Slugify(ut.Name)
	t.Color = ut.Color
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTag(ctx, t)
}

func (svc *Service) Delete(ctx context.Context, tenantID string, ids ...string) error {
	ids = core.UniqueStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteTags(ctx, tenantID, ids...)
	return err
}

// CheckIDs returns a validation error on `field` if any of ids is not a tag of the tenant.
func (svc *Service) CheckIDs(ctx context.Context, tenantID, field string, ids []string) error {
	ids = core.UniqueStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	tags, err := svc.repo.QueryTags(ctx, &QueryFilter{TenantID: tenantID, IDs: ids}, nil)
	if err != nil {
		return errors.Wrap(err, "querying tags")
	}
	if len(tags) != len(ids) {
		known := make(map[string]struct{}, len(tags))
		for _, t := range tags {
			known[t.ID] = struct{}{}
		}
		missing := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := known[id]; !ok {
				missing = append(missing, id)
			}
		}
		return core.NewFieldError(field, errUnknownTags+": "+strings.Join(missing, ", "))
	}
	return nil
}
