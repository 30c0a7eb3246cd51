package tag_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/tag"
	inmemdb "github.com/pqasys/langcsebkg5-sub007/storage/database/inmem"
)

type fixture struct {
	svc     *tag.Service
	quizzes quiz.Repository
}

func setup(t *testing.T) (fixture, context.Context) {
	t.Helper()
	db := inmemdb.Open()
	return fixture{
		svc:     tag.NewService(inmemdb.NewTagRepository(db)),
		quizzes: inmemdb.NewQuizRepository(db),
	}, context.Background()
}

func (f fixture) create(t *testing.T, tenantID, name string) tag.Tag {
	t.Helper()
	nt := tag.NewTag{Name: name}
	require.NoError(t, nt.Validate(context.Background(), tenantID, f.svc))
	tg, err := f.svc.Create(context.Background(), tenantID, nt)
	require.NoError(t, err)
	return tg
}

func TestNewTag_Validate(t *testing.T) {
	f, ctx := setup(t)
	f.create(t, "t1", "Algebra")

	nt := tag.NewTag{Name: "  Geometry ", Color: " #FF0000 "}
	require.NoError(t, nt.Validate(ctx, "t1", f.svc))
	assert.Equal(t, "Geometry", nt.Name)
	assert.Equal(t, "#ff0000", nt.Color)

	nt = tag.NewTag{Name: "Geometry"}
	require.NoError(t, nt.Validate(ctx, "t1", f.svc))
	assert.Equal(t, tag.DefaultColor, nt.Color)

	tests := []struct {
		name     string
		tenantID string
		nt       tag.NewTag
		wantErr  string
	}{
		{"no name", "t1", tag.NewTag{}, "required"},
		{"bad color", "t1", tag.NewTag{Name: "x", Color: "red"}, "hexcolor_"},
		{"short color", "t1", tag.NewTag{Name: "x", Color: "#fff"}, "hexcolor_"},
		{"duplicate", "t1", tag.NewTag{Name: "ALGEBRA"}, tag.ErrNameExists.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nt.Validate(ctx, tt.tenantID, f.svc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	nt = tag.NewTag{Name: "Algebra"}
	assert.NoError(t, nt.Validate(ctx, "t2", f.svc), "names are unique per tenant")
}

func TestService_Update(t *testing.T) {
	f, ctx := setup(t)
	alg := f.create(t, "t1", "Algebra")
	f.create(t, "t1", "Geometry")

	ut := tag.UpdateTag{Color: "#00ff00"}
	require.NoError(t, ut.Validate(ctx, alg, f.svc), "own name is not a duplicate")
	updated, err := f.svc.Update(ctx, alg, ut)
	require.NoError(t, err)
	assert.Equal(t, "Algebra", updated.Name)
	assert.Equal(t, "#00ff00", updated.Color)
	alg = updated

	ut = tag.UpdateTag{Name: "geometry"}
	assert.Error(t, ut.Validate(ctx, alg, f.svc))

	ut = tag.UpdateTag{Name: "Linear Algebra"}
	require.NoError(t, ut.Validate(ctx, alg, f.svc))
	updated, err = f.svc.Update(ctx, alg, ut)
	require.NoError(t, err)
	assert.Equal(t, "linear_algebra", updated.Slug)
	assert.Equal(t, "#00ff00", updated.Color)
}

func TestService_QueryUsageAndDelete(t *testing.T) {
	f, ctx := setup(t)
	alg := f.create(t, "t1", "Algebra")
	geo := f.create(t, "t1", "Geometry")
	other := f.create(t, "t2", "Algebra")

	for _, q := range []quiz.Quiz{
		{TenantID: "t1", Title: "Fractions", TagIDs: []string{alg.ID}},
		{TenantID: "t1", Title: "Equations", TagIDs: []string{alg.ID, geo.ID}},
		{TenantID: "t2", Title: "Other", TagIDs: []string{other.ID}},
	} {
		_, err := f.quizzes.CreateQuiz(ctx, q)
		require.NoError(t, err)
	}

	tags, err := f.svc.Query(ctx, &tag.QueryFilter{TenantID: "t1"}, nil)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Algebra", tags[0].Name)
	assert.Equal(t, 2, tags[0].UsageCount)
	assert.Equal(t, 1, tags[1].UsageCount)

	tags, err = f.svc.Query(ctx, &tag.QueryFilter{TenantID: "t1", Search: "geo"}, nil)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, geo.ID, tags[0].ID)

	got, err := f.svc.Get(ctx, "t1", alg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)

	_, err = f.svc.Get(ctx, "t2", alg.ID)
	assert.Equal(t, tag.ErrNotFound, errors.Cause(err))

	// tags of other tenants are skipped
	require.NoError(t, f.svc.Delete(ctx, "t1", alg.ID, alg.ID, other.ID))
	require.NoError(t, f.svc.Delete(ctx, "t1"))

	_, err = f.svc.Get(ctx, "t1", alg.ID)
	assert.Equal(t, tag.ErrNotFound, errors.Cause(err))
	_, err = f.svc.Get(ctx, "t2", other.ID)
	assert.NoError(t, err)

	quizzes, err := f.quizzes.QueryQuizzes(ctx, &quiz.QueryFilter{TenantID: "t1"}, nil)
	require.NoError(t, err)
	for _, q := range quizzes {
		assert.NotContains(t, q.TagIDs, alg.ID, q.Title)
	}
}

func TestService_CheckIDs(t *testing.T) {
	f, ctx := setup(t)
	alg := f.create(t, "t1", "Algebra")
	other := f.create(t, "t2", "Geometry")

	assert.NoError(t, f.svc.CheckIDs(ctx, "t1", "tag_ids", nil))
	assert.NoError(t, f.svc.CheckIDs(ctx, "t1", "tag_ids", []string{alg.ID, alg.ID}))

	err := f.svc.CheckIDs(ctx, "t1", "tag_ids", []string{alg.ID, other.ID, "nope"})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Contains(t, err.Error(), "unknown tags: "+other.ID+", nope")
}
