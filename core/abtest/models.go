package abtest

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Variants
const (
	VariantA = "A"
	VariantB = "B"
)

var (
	Statuses = []string{StatusDraft, StatusRunning, StatusPaused, StatusCompleted}

	// allowed status transitions: {from: [to...]}
	transitions = map[string][]string{
		StatusDraft:   {StatusRunning, StatusCompleted},
		StatusRunning: {StatusPaused, StatusCompleted},
		StatusPaused:  {StatusRunning, StatusCompleted},
	}

	defaultTrafficSplit = 50

	dateRangeTag  = "daterange"
	dateRangeText = "end date must be after start date"
)

func init() {
	core.Validate.RegisterStructValidation(testStructValidation, TestInput{})
	core.RegisterCustomTranslation(dateRangeTag, dateRangeText)
}

type Variant struct {
	Name   string            `json:"name" validate:"required,max=50"`
	Params map[string]string `json:"params"`
}

// Test is an A/B test configuration: two parameter variants and the percentage of subjects sent to B.
type Test struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Goal         string    `json:"goal"`
	VariantA     Variant   `json:"variant_a"`
	VariantB     Variant   `json:"variant_b"`
	TrafficSplit int       `json:"traffic_split"` // % of subjects sent to B
	StartDate    time.Time `json:"start_date"`    // zero: no lower bound
	EndDate      time.Time `json:"end_date"`      // zero: no upper bound
	Status       string    `json:"status"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t Test) canTransition(to string) bool {
	return core.ContainsString(transitions[t.Status], to)
}

// editable reports whether the variants, split and dates may still change.
func (t Test) editable() bool {
	return t.Status == StatusDraft || t.Status == StatusPaused
}

func (t Test) inWindow(now time.Time) bool {
	if !t.StartDate.IsZero() && now.Before(t.StartDate) {
		return false
	}
	if !t.EndDate.IsZero() && now.After(t.EndDate) {
		return false
	}
	return true
}

// Session is one observation of a subject exposed to a variant.
type Session struct {
	ID        string    `json:"id"`
	TestID    string    `json:"test_id"`
	SubjectID string    `json:"subject_id"`
	Variant   string    `json:"variant"`
	Converted bool      `json:"converted"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// TestInput is used to create or update a Test.
type TestInput struct {
	Name         string    `json:"name" validate:"required,max=150"`
	Description  string    `json:"description" validate:"max=2000"`
	Goal         string    `json:"goal" validate:"max=500"`
	VariantA     Variant   `json:"variant_a"`
	VariantB     Variant   `json:"variant_b"`
	TrafficSplit *int      `json:"traffic_split" validate:"omitempty,min=0,max=100"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

func (ti *TestInput) Validate() error {
	ti.Name = core.CleanString(ti.Name)
	ti.Description = core.CleanString(ti.Description)
	ti.Goal = core.CleanString(ti.Goal)
	ti.VariantA.Name = core.CleanString(ti.VariantA.Name)
	ti.VariantB.Name = core.CleanString(ti.VariantB.Name)
	if ti.VariantA.Name == "" {
		ti.VariantA.Name = "Control"
	}
	if ti.VariantB.Name == "" {
		ti.VariantB.Name = "Treatment"
	}
	if ti.TrafficSplit == nil {
		split := defaultTrafficSplit
		ti.TrafficSplit = &split
	}
	return core.Validate.Struct(ti)
}

func testStructValidation(sl validator.StructLevel) {
	ti := sl.Current().Interface().(TestInput)
	if !ti.StartDate.IsZero() && !ti.EndDate.IsZero() && !ti.EndDate.After(ti.StartDate) {
		sl.ReportError(ti.EndDate, "end_date", "EndDate", dateRangeTag, "")
	}
}

type RecordSession struct {
	SubjectID string  `json:"subject_id" validate:"required,max=100"`
	Variant   string  `json:"variant" validate:"omitempty,oneof=A B"`
	Converted bool    `json:"converted"`
	Value     float64 `json:"value"`
}

func (rs *RecordSession) Validate() error {
	rs.SubjectID = core.CleanString(rs.SubjectID)
	rs.Variant = core.CleanString(rs.Variant)
	return core.Validate.Struct(rs)
}

type Assignment struct {
	TestID    string  `json:"test_id"`
	SubjectID string  `json:"subject_id"`
	Variant   string  `json:"variant"`
	Config    Variant `json:"config"`
}

// VariantStats are the raw session aggregates of a variant.
type VariantStats struct {
	Variant     string
	Sessions    int
	Conversions int
	ValueSum    float64
}

type VariantResult struct {
	Variant        string  `json:"variant"`
	Name           string  `json:"name"`
	Sessions       int     `json:"sessions"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	MeanValue      float64 `json:"mean_value"`
}

type Results struct {
	TestID string        `json:"test_id"`
	Status string        `json:"status"`
	A      VariantResult `json:"a"`
	B      VariantResult `json:"b"`
	Lift   float64       `json:"lift"` // relative lift of B's conversion rate over A's
	ZScore float64       `json:"z_score"`
	Winner string        `json:"winner"` // empty unless significant
}

type QueryFilter struct {
	TenantID string `query:"-"`
	Status   string `query:"status"`
	Search   string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

var OrderingFields = []string{"name", "status", "start_date", "end_date", "created_at", "updated_at"}
