package abtest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
	inmemdb "github.com/pqasys/langcsebkg5-sub007/storage/database/inmem"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*abtest.Service, context.Context) {
	t.Helper()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
	return abtest.NewService(inmemdb.NewABTestRepository(inmemdb.Open())), context.Background()
}

func split(v int) *int {
	return &v
}

func create(t *testing.T, svc *abtest.Service, ti abtest.TestInput) abtest.Test {
	t.Helper()
	require.NoError(t, ti.Validate())
	test, err := svc.Create(context.Background(), "t1", "u1", ti)
	require.NoError(t, err)
	return test
}

func TestTestInput_Validate(t *testing.T) {
	ti := abtest.TestInput{Name: "  Hint placement  "}
	require.NoError(t, ti.Validate())
	assert.Equal(t, "Hint placement", ti.Name)
	assert.Equal(t, "Control", ti.VariantA.Name)
	assert.Equal(t, "Treatment", ti.VariantB.Name)
	require.NotNil(t, ti.TrafficSplit)
	assert.Equal(t, 50, *ti.TrafficSplit)

	tests := []struct {
		name string
		ti   abtest.TestInput
	}{
		{"no name", abtest.TestInput{}},
		{"split too high", abtest.TestInput{Name: "x", TrafficSplit: split(101)}},
		{"negative split", abtest.TestInput{Name: "x", TrafficSplit: split(-1)}},
		{"end before start", abtest.TestInput{Name: "x", StartDate: now, EndDate: now.Add(-time.Hour)}},
		{"end equals start", abtest.TestInput{Name: "x", StartDate: now, EndDate: now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ti.Validate()
			require.Error(t, err)
			assert.IsType(t, validator.ValidationErrors{}, err)
		})
	}

	ti = abtest.TestInput{Name: "x", TrafficSplit: split(0), StartDate: now}
	assert.NoError(t, ti.Validate(), "open-ended window")
}

func TestRecordSession_Validate(t *testing.T) {
	rs := abtest.RecordSession{SubjectID: " s1 ", Variant: " B "}
	require.NoError(t, rs.Validate())
	assert.Equal(t, "s1", rs.SubjectID)
	assert.Equal(t, "B", rs.Variant)

	rs = abtest.RecordSession{SubjectID: "s1", Variant: "C"}
	assert.Error(t, rs.Validate())
	rs = abtest.RecordSession{}
	assert.Error(t, rs.Validate())
}

func TestService_lifecycle(t *testing.T) {
	svc, ctx := setup(t)
	test := create(t, svc, abtest.TestInput{Name: "Hints"})
	assert.Equal(t, abtest.StatusDraft, test.Status)
	assert.Equal(t, "t1", test.TenantID)
	assert.Equal(t, "u1", test.CreatedBy)

	_, err := svc.Pause(ctx, test)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot go from "draft" to "paused"`)

	test, err = svc.Start(ctx, test)
	require.NoError(t, err)
	assert.Equal(t, abtest.StatusRunning, test.Status)

	assert.Error(t, svc.Delete(ctx, test), "running")

	// metadata only while running
	ti := abtest.TestInput{Name: "Hint placement", VariantA: test.VariantA, VariantB: test.VariantB, TrafficSplit: split(50)}
	require.NoError(t, ti.Validate())
	test, err = svc.Update(ctx, test, ti)
	require.NoError(t, err)
	assert.Equal(t, "Hint placement", test.Name)

	ti.TrafficSplit = split(80)
	_, err = svc.Update(ctx, test, ti)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	test, err = svc.Pause(ctx, test)
	require.NoError(t, err)
	test, err = svc.Update(ctx, test, ti)
	require.NoError(t, err)
	assert.Equal(t, 80, test.TrafficSplit)

	test, err = svc.Start(ctx, test)
	require.NoError(t, err)
	test, err = svc.Complete(ctx, test)
	require.NoError(t, err)
	assert.Equal(t, abtest.StatusCompleted, test.Status)

	_, err = svc.Start(ctx, test)
	assert.Error(t, err)
	_, err = svc.Update(ctx, test, ti)
	assert.Error(t, err)

	require.NoError(t, svc.Delete(ctx, test))
	_, err = svc.Get(ctx, "t1", test.ID)
	assert.Equal(t, abtest.ErrNotFound, errors.Cause(err))
}

func TestService_Assign(t *testing.T) {
	svc, ctx := setup(t)
	test := create(t, svc, abtest.TestInput{
		Name:     "Hints",
		VariantB: abtest.Variant{Name: "Inline", Params: map[string]string{"hint": "inline"}},
	})

	_, err := svc.Assign(test, "s1")
	assert.Error(t, err, "draft")

	test, err = svc.Start(ctx, test)
	require.NoError(t, err)

	_, err = svc.Assign(test, "  ")
	assert.Error(t, err)

	first, err := svc.Assign(test, "s1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.Assign(test, "s1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		a, err := svc.Assign(test, fmt.Sprintf("student-%d", i))
		require.NoError(t, err)
		counts[a.Variant]++
		if a.Variant == abtest.VariantB {
			assert.Equal(t, "inline", a.Config.Params["hint"])
		} else {
			assert.Equal(t, "Control", a.Config.Name)
		}
	}
	assert.InDelta(t, 500, counts[abtest.VariantB], 100)

	t.Run("split bounds", func(t *testing.T) {
		for _, tt := range []struct {
			split int
			want  string
		}{{0, abtest.VariantA}, {100, abtest.VariantB}} {
			test.TrafficSplit = tt.split
			for i := 0; i < 50; i++ {
				a, err := svc.Assign(test, fmt.Sprintf("s%d", i))
				require.NoError(t, err)
				assert.Equal(t, tt.want, a.Variant)
			}
		}
	})

	t.Run("window", func(t *testing.T) {
		test.TrafficSplit = 50
		test.StartDate = now.Add(time.Hour)
		_, err := svc.Assign(test, "s1")
		assert.Error(t, err, "not started")

		test.StartDate = now.Add(-48 * time.Hour)
		test.EndDate = now.Add(-time.Hour)
		_, err = svc.Assign(test, "s1")
		assert.Error(t, err, "ended")

		test.EndDate = now.Add(time.Hour)
		_, err = svc.Assign(test, "s1")
		assert.NoError(t, err)
	})
}

func TestService_RecordSessionAndResults(t *testing.T) {
	svc, ctx := setup(t)
	test := create(t, svc, abtest.TestInput{Name: "Hints"})
	test, err := svc.Start(ctx, test)
	require.NoError(t, err)

	res, err := svc.Results(ctx, test)
	require.NoError(t, err)
	assert.Zero(t, res.A.Sessions)
	assert.Zero(t, res.ZScore)
	assert.Empty(t, res.Winner)

	a, err := svc.Assign(test, "s1")
	require.NoError(t, err)
	other := abtest.VariantA
	if a.Variant == abtest.VariantA {
		other = abtest.VariantB
	}
	_, err = svc.RecordSession(ctx, test, abtest.RecordSession{SubjectID: "s1", Variant: other})
	require.Error(t, err, "variant mismatch")

	sess, err := svc.RecordSession(ctx, test, abtest.RecordSession{SubjectID: "s1", Converted: true, Value: 3})
	require.NoError(t, err)
	assert.Equal(t, a.Variant, sess.Variant)
	assert.Equal(t, test.ID, sess.TestID)

	t.Run("no difference", func(t *testing.T) {
		test := create(t, svc, abtest.TestInput{Name: "Flat"})
		test, err := svc.Start(ctx, test)
		require.NoError(t, err)
		seen := map[string]int{}
		for i := 0; i < 200; i++ {
			subject := fmt.Sprintf("s%d", i)
			a, err := svc.Assign(test, subject)
			require.NoError(t, err)
			seen[a.Variant]++
			_, err = svc.RecordSession(ctx, test, abtest.RecordSession{SubjectID: subject, Converted: seen[a.Variant]%2 == 0})
			require.NoError(t, err)
		}
		res, err := svc.Results(ctx, test)
		require.NoError(t, err)
		assert.Equal(t, 200, res.A.Sessions+res.B.Sessions)
		assert.Less(t, res.ZScore, 1.96)
		assert.Greater(t, res.ZScore, -1.96)
		assert.Empty(t, res.Winner)
	})

	t.Run("B wins", func(t *testing.T) {
		test := create(t, svc, abtest.TestInput{Name: "Inline hints"})
		test, err := svc.Start(ctx, test)
		require.NoError(t, err)
		seen := map[string]int{}
		for i := 0; i < 200; i++ {
			subject := fmt.Sprintf("s%d", i)
			a, err := svc.Assign(test, subject)
			require.NoError(t, err)
			seen[a.Variant]++
			// A converts 1 in 5, B every time
			converted := a.Variant == abtest.VariantB || seen[a.Variant]%5 == 0
			_, err = svc.RecordSession(ctx, test, abtest.RecordSession{SubjectID: subject, Converted: converted, Value: 2})
			require.NoError(t, err)
		}

		res, err := svc.Results(ctx, test)
		require.NoError(t, err)
		assert.Equal(t, test.ID, res.TestID)
		assert.Equal(t, abtest.StatusRunning, res.Status)
		assert.Equal(t, "Control", res.A.Name)
		assert.Equal(t, "Treatment", res.B.Name)
		assert.Equal(t, 1.0, res.B.ConversionRate)
		assert.InDelta(t, 0.2, res.A.ConversionRate, 0.05)
		assert.Equal(t, 2.0, res.A.MeanValue)
		assert.Greater(t, res.Lift, 1.0)
		assert.Greater(t, res.ZScore, 1.96)
		assert.Equal(t, abtest.VariantB, res.Winner)
	})
}
