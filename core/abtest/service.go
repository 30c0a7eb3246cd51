package abtest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

var (
	// errors
	ErrNotFound = errors.New("A/B test not found")

	errNotEditable     = "variants, traffic split and dates can only be changed while the test is in draft or paused"
	errCompleted       = "a completed test cannot be modified"
	errDeleteRunning   = "a running test cannot be deleted"
	errNotAssignable   = "the test is not running"
	errVariantMismatch = "variant does not match the subject's assignment"
	errBadTransition   = "cannot go from %q to %q"

	// significance threshold: 95% two-sided
	zCritical = 1.96
)

type (
	Repository interface {
		CreateTest(ctx context.Context, t Test) (Test, error)
		QueryTests(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Test, error)
		GetTest(ctx context.Context, tenantID, id string) (Test, error)
		UpdateTest(ctx context.Context, t Test) (Test, error)
		// DeleteTest also deletes the test's sessions.
		DeleteTest(ctx context.Context, tenantID, id string) error
		CreateSession(ctx context.Context, s Session) (Session, error)
		SessionStats(ctx context.Context, testID string) ([]VariantStats, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, tenantID, createdBy string, ti TestInput) (Test, error) {
	now := core.NowFunc()
	t := Test{
		TenantID:  tenantID,
		Status:    StatusDraft,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ti.apply(&t)
	return svc.repo.CreateTest(ctx, t)
}

func (ti TestInput) apply(t *Test) {
	t.Name = ti.Name
	t.Description = ti.Description
	t.Goal = ti.Goal
	t.VariantA = ti.VariantA
	t.VariantB = ti.VariantB
	t.TrafficSplit = *ti.TrafficSplit
	t.StartDate = ti.StartDate.UTC()
	t.EndDate = ti.EndDate.UTC()
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Test, error) {
	return svc.repo.QueryTests(ctx, filter, core.CleanOrdering(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Test, error) {
	return svc.repo.GetTest(ctx, tenantID, id)
}

// Update replaces the test's configuration.
// Name, description and goal may change until completion, the rest only in draft or paused.
func (svc *Service) Update(ctx context.Context, t Test, ti TestInput) (Test, error) {
	if t.Status == StatusCompleted {
		return Test{}, core.NewFieldError("status", errCompleted)
	}
	updated := t
	ti.apply(&updated)
	if !t.editable() && configChanged(t, updated) {
		return Test{}, core.NewFieldError("status", errNotEditable)
	}
	updated.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTest(ctx, updated)
}

func configChanged(a, b Test) bool {
	return a.TrafficSplit != b.TrafficSplit ||
		!a.StartDate.Equal(b.StartDate) || !a.EndDate.Equal(b.EndDate) ||
		!variantEqual(a.VariantA, b.VariantA) || !variantEqual(a.VariantB, b.VariantB)
}

func variantEqual(a, b Variant) bool {
	if a.Name != b.Name || len(a.Params) != len(b.Params) {
		return false
	}
	for k, v := range a.Params {
		if bv, ok := b.Params[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func (svc *Service) Delete(ctx context.Context, t Test) error {
	if t.Status == StatusRunning {
		return core.NewFieldError("status", errDeleteRunning)
	}
	return svc.repo.DeleteTest(ctx, t.TenantID, t.ID)
}

func (svc *Service) Start(ctx context.Context, t Test) (Test, error) {
	return svc.transition(ctx, t, StatusRunning)
}

func (svc *Service) Pause(ctx context.Context, t Test) (Test, error) {
	return svc.transition(ctx, t, StatusPaused)
}

func (svc *Service) Complete(ctx context.Context, t Test) (Test, error) {
	return svc.transition(ctx, t, StatusCompleted)
}

func (svc *Service) transition(ctx context.Context, t Test, to string) (Test, error) {
	if !t.canTransition(to) {
		return Test{}, core.NewFieldError("status", fmt.Sprintf(errBadTransition, t.Status, to))
	}
	t.Status = to
	t.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTest(ctx, t)
}

// bucket deterministically maps a subject to [0, 100).
func bucket(testID, subjectID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(testID + ":" + subjectID))
	return int(h.Sum32() % 100)
}

func variantFor(t Test, subjectID string) string {
	if bucket(t.ID, subjectID) < t.TrafficSplit {
		return VariantB
	}
	return VariantA
}

// Assign returns the variant the subject is exposed to.
// The same subject always gets the same variant for a given test.
func (svc *Service) Assign(t Test, subjectID string) (Assignment, error) {
	subjectID = core.CleanString(subjectID)
	if subjectID == "" {
		return Assignment{}, core.NewFieldError("subject_id", "this field is required")
	}
	if t.Status != StatusRunning || !t.inWindow(core.NowFunc()) {
		return Assignment{}, core.NewFieldError("status", errNotAssignable)
	}
	a := Assignment{TestID: t.ID, SubjectID: subjectID, Variant: variantFor(t, subjectID)}
	if a.Variant == VariantB {
		a.Config = t.VariantB
	} else {
		a.Config = t.VariantA
	}
	return a, nil
}

func (svc *Service) RecordSession(ctx context.Context, t Test, rs RecordSession) (Session, error) {
	a, err := svc.Assign(t, rs.SubjectID)
	if err != nil {
		return Session{}, err
	}
	if rs.Variant != "" && rs.Variant != a.Variant {
		return Session{}, core.NewFieldError("variant", errVariantMismatch)
	}
	return svc.repo.CreateSession(ctx, Session{
		TestID:    t.ID,
		SubjectID: a.SubjectID,
		Variant:   a.Variant,
		Converted: rs.Converted,
		Value:     rs.Value,
		CreatedAt: core.NowFunc(),
	})
}

func (svc *Service) Results(ctx context.Context, t Test) (Results, error) {
	stats, err := svc.repo.SessionStats(ctx, t.ID)
	if err != nil {
		return Results{}, errors.Wrap(err, "getting session stats")
	}
	res := Results{
		TestID: t.ID,
		Status: t.Status,
		A:      VariantResult{Variant: VariantA, Name: t.VariantA.Name},
		B:      VariantResult{Variant: VariantB, Name: t.VariantB.Name},
	}
	for _, st := range stats {
		switch st.Variant {
		case VariantA:
			fillResult(&res.A, st)
		case VariantB:
			fillResult(&res.B, st)
		}
	}
	computeSignificance(&res)
	return res, nil
}

func fillResult(vr *VariantResult, st VariantStats) {
	vr.Sessions = st.Sessions
	vr.Conversions = st.Conversions
	if st.Sessions > 0 {
		vr.ConversionRate = float64(st.Conversions) / float64(st.Sessions)
		vr.MeanValue = st.ValueSum / float64(st.Sessions)
	}
}

// computeSignificance sets the lift, the two-proportion z score and, when |z| >= zCritical, the winner.
func computeSignificance(res *Results) {
	a, b := res.A, res.B
	if a.ConversionRate > 0 {
		res.Lift = (b.ConversionRate - a.ConversionRate) / a.ConversionRate
	}
	if a.Sessions == 0 || b.Sessions == 0 {
		return
	}
	pooled := float64(a.Conversions+b.Conversions) / float64(a.Sessions+b.Sessions)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(a.Sessions) + 1/float64(b.Sessions)))
	if se == 0 {
		return
	}
	res.ZScore = (b.ConversionRate - a.ConversionRate) / se
	if math.Abs(res.ZScore) >= zCritical {
		if res.ZScore > 0 {
			res.Winner = VariantB
		} else {
			res.Winner = VariantA
		}
	}
}
