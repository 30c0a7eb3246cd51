package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
)

const abtestColumns = `id, tenant_id, name, description, goal, variant_a, variant_b, traffic_split, start_date,
	end_date, status, created_by, created_at, updated_at`

type abtestRow struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	Goal         string    `db:"goal"`
	VariantA     null.JSON `db:"variant_a"`
	VariantB     null.JSON `db:"variant_b"`
	TrafficSplit int       `db:"traffic_split"`
	StartDate    null.Time `db:"start_date"`
	EndDate      null.Time `db:"end_date"`
	Status       string    `db:"status"`
	CreatedBy    string    `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func newABTestRow(t abtest.Test) (abtestRow, error) {
	row := abtestRow{
		ID:           t.ID,
		TenantID:     t.TenantID,
		Name:         t.Name,
		Description:  t.Description,
		Goal:         t.Goal,
		TrafficSplit: t.TrafficSplit,
		StartDate:    nullTime(t.StartDate),
		EndDate:      nullTime(t.EndDate),
		Status:       t.Status,
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	var err error
	if row.VariantA, err = toJSON(t.VariantA, "{}"); err != nil {
		return row, err
	}
	row.VariantB, err = toJSON(t.VariantB, "{}")
	return row, err
}

func (r abtestRow) test() (abtest.Test, error) {
	t := abtest.Test{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Name,
		Description:  r.Description,
		Goal:         r.Goal,
		TrafficSplit: r.TrafficSplit,
		StartDate:    r.StartDate.Time,
		EndDate:      r.EndDate.Time,
		Status:       r.Status,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if err := fromJSON(r.VariantA, &t.VariantA); err != nil {
		return abtest.Test{}, err
	}
	if err := fromJSON(r.VariantB, &t.VariantB); err != nil {
		return abtest.Test{}, err
	}
	return t, nil
}

type abtestRepository struct {
	db *sqlx.DB
}

var _ abtest.Repository = (*abtestRepository)(nil)

func NewABTestRepository(db *sqlx.DB) abtest.Repository {
	return &abtestRepository{db: db}
}

func (repo *abtestRepository) CreateTest(ctx context.Context, t abtest.Test) (abtest.Test, error) {
	t.ID = newID()
	row, err := newABTestRow(t)
	if err != nil {
		return abtest.Test{}, err
	}
	q := `INSERT INTO ab_tests (` + abtestColumns + `) VALUES (:id, :tenant_id, :name, :description, :goal,
		:variant_a, :variant_b, :traffic_split, :start_date, :end_date, :status, :created_by, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return abtest.Test{}, errors.Wrap(err, "inserting A/B test")
	}
	return t, nil
}

func (repo *abtestRepository) QueryTests(ctx context.Context, filter *abtest.QueryFilter, ordering []core.DBOrdering) ([]abtest.Test, error) {
	var where conditions
	where.add("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pat := likePattern(filter.Search)
		where.add("(name ILIKE ? OR goal ILIKE ?)", pat, pat)
	}
	q := `SELECT ` + abtestColumns + ` FROM ab_tests` + where.String() + orderBy(ordering, core.DBOrdering{Field: "created_at"})

	var rows []abtestRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting A/B tests")
	}
	tests := make([]abtest.Test, len(rows))
	for i, r := range rows {
		t, err := r.test()
		if err != nil {
			return nil, err
		}
		tests[i] = t
	}
	return tests, nil
}

func (repo *abtestRepository) GetTest(ctx context.Context, tenantID, id string) (abtest.Test, error) {
	var row abtestRow
	q := `SELECT ` + abtestColumns + ` FROM ab_tests WHERE tenant_id = $1 AND id::text = $2`
	if err := repo.db.GetContext(ctx, &row, q, tenantID, id); err != nil {
		if isNoRows(err) {
			return abtest.Test{}, abtest.ErrNotFound
		}
		return abtest.Test{}, errors.Wrap(err, "selecting A/B test")
	}
	return row.test()
}

func (repo *abtestRepository) UpdateTest(ctx context.Context, t abtest.Test) (abtest.Test, error) {
	row, err := newABTestRow(t)
	if err != nil {
		return abtest.Test{}, err
	}
	q := `UPDATE ab_tests SET name = :name, description = :description, goal = :goal, variant_a = :variant_a,
		variant_b = :variant_b, traffic_split = :traffic_split, start_date = :start_date, end_date = :end_date,
		status = :status, updated_at = :updated_at WHERE tenant_id = :tenant_id AND id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return abtest.Test{}, errors.Wrap(err, "updating A/B test")
	}
	if _, err := affected(res, abtest.ErrNotFound); err != nil {
		return abtest.Test{}, err
	}
	return t, nil
}

func (repo *abtestRepository) DeleteTest(ctx context.Context, tenantID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM ab_tests WHERE tenant_id = $1 AND id::text = $2`, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "deleting A/B test")
	}
	_, err = affected(res, abtest.ErrNotFound)
	return err
}

func (repo *abtestRepository) CreateSession(ctx context.Context, s abtest.Session) (abtest.Session, error) {
	s.ID = newID()
	q := `INSERT INTO ab_sessions (id, test_id, subject_id, variant, converted, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := repo.db.ExecContext(ctx, q, s.ID, s.TestID, s.SubjectID, s.Variant, s.Converted, s.Value, s.CreatedAt); err != nil {
		return abtest.Session{}, errors.Wrap(err, "inserting A/B session")
	}
	return s, nil
}

func (repo *abtestRepository) SessionStats(ctx context.Context, testID string) ([]abtest.VariantStats, error) {
	var rows []struct {
		Variant     string  `db:"variant"`
		Sessions    int     `db:"sessions"`
		Conversions int     `db:"conversions"`
		ValueSum    float64 `db:"value_sum"`
	}
	q := `SELECT variant, COUNT(*) AS sessions, COUNT(*) FILTER (WHERE converted) AS conversions,
		COALESCE(SUM(value), 0) AS value_sum FROM ab_sessions WHERE test_id = $1 GROUP BY variant`
	if err := repo.db.SelectContext(ctx, &rows, q, testID); err != nil {
		return nil, errors.Wrap(err, "aggregating A/B sessions")
	}

	stats := []abtest.VariantStats{{Variant: abtest.VariantA}, {Variant: abtest.VariantB}}
	for _, r := range rows {
		for i := range stats {
			if stats[i].Variant == r.Variant {
				stats[i].Sessions = r.Sessions
				stats[i].Conversions = r.Conversions
				stats[i].ValueSum = r.ValueSum
			}
		}
	}
	return stats, nil
}
