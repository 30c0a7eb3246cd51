package notification

import (
	"time"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

// Categories
const (
	CategoryAnnouncements = "announcements"
	CategoryQuizResults   = "quiz_results"
	CategoryPayments      = "payments"
	CategorySubscriptions = "subscriptions"
	CategoryAlerts        = "alerts"
)

// Digest frequencies
const (
	DigestImmediate = "immediate"
	DigestDaily     = "daily"
	DigestWeekly    = "weekly"
	DigestNever     = "never"
)

var (
	Categories = []string{CategoryAnnouncements, CategoryQuizResults, CategoryPayments, CategorySubscriptions, CategoryAlerts}
	Digests    = []string{DigestImmediate, DigestDaily, DigestWeekly, DigestNever}

	digestPeriods = map[string]time.Duration{
		DigestDaily:  24 * time.Hour,
		DigestWeekly: 7 * 24 * time.Hour,
	}

	categoryTag  = "category"
	categoryText = "invalid category"
	digestTag    = "digest"
	digestText   = "must be one of: immediate, daily, weekly, never"
)

func init() {
	_ = core.Validate.RegisterValidation(categoryTag, core.OneOfValidation(Categories))
	core.RegisterCustomTranslation(categoryTag, categoryText)
	_ = core.Validate.RegisterValidation(digestTag, core.OneOfValidation(Digests))
	core.RegisterCustomTranslation(digestTag, digestText)
}

// DigestPeriod returns how far back a digest looks; zero for non-digest frequencies.
func DigestPeriod(digest string) time.Duration {
	return digestPeriods[digest]
}

// Preference is how a user wants to be notified for a category.
type Preference struct {
	Category string `json:"category"`
	Email    bool   `json:"email"`
	InApp    bool   `json:"in_app"`
	Digest   string `json:"digest"`
}

func DefaultPreference(category string) Preference {
	return Preference{Category: category, Email: true, InApp: true, Digest: DigestImmediate}
}

// PreferenceUpdate partially updates the preference of a category.
type PreferenceUpdate struct {
	Category string  `json:"category" validate:"required,category"`
	Email    *bool   `json:"email"`
	InApp    *bool   `json:"in_app"`
	Digest   *string `json:"digest" validate:"omitempty,digest"`
}

type PreferenceUpdates struct {
	Preferences []PreferenceUpdate `json:"preferences" validate:"required,dive"`
}

func (pu *PreferenceUpdates) Validate() error {
	for i := range pu.Preferences {
		pu.Preferences[i].Category = core.CleanString(pu.Preferences[i].Category, true /* lower */)
		if d := pu.Preferences[i].Digest; d != nil {
			clean := core.CleanString(*d, true /* lower */)
			pu.Preferences[i].Digest = &clean
		}
	}
	return core.Validate.Struct(pu)
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TenantID  string     `json:"tenant_id,omitempty"`
	Category  string     `json:"category"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Message is what gets delivered to each recipient by Service.Notify.
// When Template is set, emails are rendered with it and TemplateData instead of the generic layout.
type Message struct {
	TenantID     string
	Category     string
	Title        string
	Body         string
	Template     string
	TemplateData interface{}
}

type QueryFilter struct {
	UserID      string    `query:"-"`
	UnreadOnly  bool      `query:"unread"`
	Category    string    `query:"category"`
	Categories  []string  `query:"-"`
	CreatedFrom time.Time `query:"-"`
}

type MarkRead struct {
	IDs []string `json:"ids"`
}
