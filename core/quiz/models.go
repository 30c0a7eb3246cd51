package quiz

import (
	"fmt"
	"time"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

// Question kinds
const (
	KindSingle    = "single"
	KindMultiple  = "multiple"
	KindTrueFalse = "true_false"
)

// Quiz statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Attempt statuses
const (
	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
)

const defaultPassMark = 50

var (
	Kinds    = []string{KindSingle, KindMultiple, KindTrueFalse}
	Statuses = []string{StatusDraft, StatusPublished, StatusArchived}

	kindTag          = "questionkind"
	kindText         = "must be one of: single, multiple, true_false"
	errTwoOptions    = "at least 2 options are required"
	errOneCorrect    = "exactly 1 option must be correct"
	errSomeCorrect   = "at least 1 option must be correct"
	errTrueFalseOpts = "exactly 2 options are required"
)

func init() {
	_ = core.Validate.RegisterValidation(kindTag, core.OneOfValidation(Kinds))
	core.RegisterCustomTranslation(kindTag, kindText)
}

type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

type Question struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Prompt  string   `json:"prompt"`
	Points  int      `json:"points"`
	Options []Option `json:"options"`
}

// CorrectIDs returns the IDs of the correct options, in declaration order.
func (q Question) CorrectIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func (q Question) option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

type Quiz struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TagIDs           []string   `json:"tag_ids"`
	Questions        []Question `json:"questions"`
	TimeLimitMinutes int        `json:"time_limit_minutes"` // 0: none
	MaxAttempts      int        `json:"max_attempts"`       // 0: unlimited
	PassMark         int        `json:"pass_mark"`          // percent
	ShuffleQuestions bool       `json:"shuffle_questions"`
	Status           string     `json:"status"`
	DueAt            *time.Time `json:"due_at"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (q Quiz) MaxScore() int {
	var max int
	for _, qn := range q.Questions {
		max += qn.Points
	}
	return max
}

func (q Quiz) question(id string) (Question, bool) {
	for _, qn := range q.Questions {
		if qn.ID == id {
			return qn, true
		}
	}
	return Question{}, false
}

type OptionInput struct {
	ID      string `json:"id"`
	Text    string `json:"text" validate:"required,max=500"`
	Correct bool   `json:"correct"`
}

type QuestionInput struct {
	ID      string        `json:"id"`
	Kind    string        `json:"kind" validate:"required,questionkind"`
	Prompt  string        `json:"prompt" validate:"required,max=2000"`
	Points  int           `json:"points" validate:"min=1,max=1000"`
	Options []OptionInput `json:"options" validate:"dive"`
}

// QuizInput is used to create a Quiz or replace the content of a draft.
type QuizInput struct {
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description" validate:"max=5000"`
	TagIDs           []string        `json:"tag_ids"`
	Questions        []QuestionInput `json:"questions" validate:"dive"`
	TimeLimitMinutes int             `json:"time_limit_minutes" validate:"min=0,max=1440"`
	MaxAttempts      int             `json:"max_attempts" validate:"min=0,max=100"`
	PassMark         *int            `json:"pass_mark" validate:"omitempty,min=0,max=100"`
	ShuffleQuestions bool            `json:"shuffle_questions"`
	DueAt            *time.Time      `json:"due_at"`
}

func (qi *QuizInput) Validate() error {
	qi.Title = core.CleanString(qi.Title)
	qi.Description = core.CleanString(qi.Description)
	qi.TagIDs = core.UniqueStrings(qi.TagIDs)
	for i := range qi.Questions {
		qn := &qi.Questions[i]
		qn.Kind = core.CleanString(qn.Kind, true /* lower */)
		qn.Prompt = core.CleanString(qn.Prompt)
		if qn.Points == 0 {
			qn.Points = 1
		}
		for j := range qn.Options {
			qn.Options[j].Text = core.CleanString(qn.Options[j].Text)
		}
	}
	if qi.PassMark == nil {
		pm := defaultPassMark
		qi.PassMark = &pm
	}
	if err := core.Validate.Struct(qi); err != nil {
		return err
	}

	var flds []core.FieldError
	for i, qn := range qi.Questions {
		if msg := checkOptions(qn); msg != "" {
			flds = append(flds, core.FieldError{Field: fmt.Sprintf("questions[%d].options", i), Error: msg})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func checkOptions(qn QuestionInput) string {
	var correct int
	for _, o := range qn.Options {
		if o.Correct {
			correct++
		}
	}
	switch qn.Kind {
	case KindSingle:
		if len(qn.Options) < 2 {
			return errTwoOptions
		}
		if correct != 1 {
			return errOneCorrect
		}
	case KindMultiple:
		if len(qn.Options) < 2 {
			return errTwoOptions
		}
		if correct < 1 {
			return errSomeCorrect
		}
	case KindTrueFalse:
		if len(qn.Options) != 2 {
			return errTrueFalseOpts
		}
		if correct != 1 {
			return errOneCorrect
		}
	}
	return ""
}

type QueryFilter struct {
	TenantID string `query:"-"`
	Status   string `query:"status"`
	TagID    string `query:"tag"`
	Search   string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.TagID = core.CleanString(qf.TagID)
	qf.Search = core.CleanString(qf.Search)
}

var OrderingFields = []string{"title", "status", "due_at", "created_at", "updated_at"}

// Attempt is one sitting of a quiz by a student.
type Attempt struct {
	ID            string              `json:"id"`
	QuizID        string              `json:"quiz_id"`
	TenantID      string              `json:"tenant_id"`
	UserID        string              `json:"user_id"`
	Number        int                 `json:"number"`
	Status        string              `json:"status"`
	QuestionOrder []string            `json:"question_order"`
	OptionOrder   map[string][]string `json:"option_order"` // {questionID: optionIDs}
	Answers       map[string][]string `json:"answers"`      // {questionID: optionIDs}
	Results       []QuestionResult    `json:"results"`
	Score         int                 `json:"score"`
	MaxScore      int                 `json:"max_score"`
	Percent       float64             `json:"percent"`
	Passed        bool                `json:"passed"`
	Late          bool                `json:"late"`
	StartedAt     time.Time           `json:"started_at"`
	SubmittedAt   *time.Time          `json:"submitted_at"`
}

func (a Attempt) Open() bool {
	return a.Status == AttemptInProgress
}

type QuestionResult struct {
	QuestionID string   `json:"question_id"`
	Correct    bool     `json:"correct"`
	Points     int      `json:"points"`
	Awarded    int      `json:"awarded"`
	CorrectIDs []string `json:"correct_ids"`
}

// StudentOption is an Option without its correct flag.
type StudentOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type StudentQuestion struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Prompt  string          `json:"prompt"`
	Points  int             `json:"points"`
	Options []StudentOption `json:"options"`
}

// AttemptView is what a student sees while taking a quiz.
type AttemptView struct {
	Attempt
	Title     string            `json:"title"`
	Deadline  *time.Time        `json:"deadline"`
	Questions []StudentQuestion `json:"questions"`
}

type Submission struct {
	Answers map[string][]string `json:"answers" validate:"required"`
}

func (s *Submission) Validate() error {
	for qid, ids := range s.Answers {
		s.Answers[qid] = core.UniqueStrings(ids)
	}
	return core.Validate.Struct(s)
}

type AttemptFilter struct {
	TenantID    string    `query:"-"`
	QuizID      string    `query:"-"`
	UserID      string    `query:"user_id"`
	Status      string    `query:"status"`
	StartedFrom time.Time `query:"-"`
}

var AttemptOrderingFields = []string{"number", "started_at", "submitted_at", "percent"}
