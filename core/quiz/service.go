package quiz

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("quiz not found")
	ErrAttemptNotFound = errors.New("attempt not found")

	errNotDraft         = "only draft quizzes can be edited"
	errNoQuestions      = "a quiz needs at least one question to be published"
	errNotPublished     = "the quiz is not published"
	errAlreadyArchived  = "the quiz is already archived"
	errAttemptOpen      = "an attempt is already in progress"
	errMaxAttempts      = "maximum number of attempts reached (%d)"
	errAttemptSubmitted = "the attempt was already submitted"
	errUnknownQuestion  = "unknown question"
	errUnknownOption    = "unknown option"
	errSingleAnswer     = "only one option can be selected"

	copySuffix = " (copy)"

	// ShuffleFunc randomizes the question and option order of attempts.
	ShuffleFunc = rand.Shuffle
)

type (
	Repository interface {
		CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		QueryQuizzes(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error)
		GetQuiz(ctx context.Context, tenantID, id string) (Quiz, error)
		UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		// DeleteQuiz also deletes the quiz's attempts.
		DeleteQuiz(ctx context.Context, tenantID, id string) error

		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		GetAttempt(ctx context.Context, tenantID, id string) (Attempt, error)
		QueryAttempts(ctx context.Context, filter *AttemptFilter, ordering []core.DBOrdering) ([]Attempt, error)
	}

	TagChecker interface {
		CheckIDs(ctx context.Context, tenantID, field string, ids []string) error
	}

	Inbox interface {
		Notify(ctx context.Context, recipients []user.User, msg notification.Message) error
	}

	Service struct {
		repo   Repository
		tags   TagChecker
		inbox  Inbox
		logger core.Logger
	}
)

func NewService(repo Repository, tags TagChecker, inbox Inbox, logger core.Logger) *Service {
	return &Service{repo: repo, tags: tags, inbox: inbox, logger: logger}
}

// Builder

func (svc *Service) Create(ctx context.Context, tenantID, createdBy string, qi QuizInput) (Quiz, error) {
	if err := svc.tags.CheckIDs(ctx, tenantID, "tag_ids", qi.TagIDs); err != nil {
		return Quiz{}, err
	}
	now := core.NowFunc()
	q := Quiz{
		TenantID:  tenantID,
		Status:    StatusDraft,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	qi.apply(&q)
	return svc.repo.CreateQuiz(ctx, q)
}

func (qi QuizInput) apply(q *Quiz) {
	q.Title = qi.Title
	q.Description = qi.Description
	q.TagIDs = qi.TagIDs
	q.TimeLimitMinutes = qi.TimeLimitMinutes
	q.MaxAttempts = qi.MaxAttempts
	q.PassMark = defaultPassMark
	if qi.PassMark != nil {
		q.PassMark = *qi.PassMark
	}
	q.ShuffleQuestions = qi.ShuffleQuestions
	q.DueAt = nil
	if qi.DueAt != nil {
		q.DueAt = core.TimePtr(qi.DueAt.UTC())
	}

	q.Questions = make([]Question, 0, len(qi.Questions))
	seenQ := make(map[string]bool, len(qi.Questions))
	for _, in := range qi.Questions {
		qn := Question{ID: freshID(in.ID, seenQ), Kind: in.Kind, Prompt: in.Prompt, Points: in.Points}
		seenO := make(map[string]bool, len(in.Options))
		for _, o := range in.Options {
			qn.Options = append(qn.Options, Option{ID: freshID(o.ID, seenO), Text: o.Text, Correct: o.Correct})
		}
		q.Questions = append(q.Questions, qn)
	}
}

// freshID keeps id when given and not yet seen, else generates one.
func freshID(id string, seen map[string]bool) string {
	if id == "" || seen[id] {
		id = uuid.NewString()
	}
	seen[id] = true
	return id
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error) {
	filter.Clean()
	return svc.repo.QueryQuizzes(ctx, filter, core.CleanOrdering(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, tenantID, id)
}

func (svc *Service) Update(ctx context.Context, q Quiz, qi QuizInput) (Quiz, error) {
	if q.Status != StatusDraft {
		return Quiz{}, core.NewFieldError("status", errNotDraft)
	}
	if err := svc.tags.CheckIDs(ctx, q.TenantID, "tag_ids", qi.TagIDs); err != nil {
		return Quiz{}, err
	}
	qi.apply(&q)
	q.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateQuiz(ctx, q)
}

func (svc *Service) Delete(ctx context.Context, q Quiz) error {
	return svc.repo.DeleteQuiz(ctx, q.TenantID, q.ID)
}

func (svc *Service) Publish(ctx context.Context, q Quiz) (Quiz, error) {
	if q.Status != StatusDraft {
		return Quiz{}, core.NewFieldError("status", errNotDraft)
	}
	if len(q.Questions) == 0 {
		return Quiz{}, core.NewFieldError("questions", errNoQuestions)
	}
	return svc.setStatus(ctx, q, StatusPublished)
}

func (svc *Service) Archive(ctx context.Context, q Quiz) (Quiz, error) {
	if q.Status == StatusArchived {
		return Quiz{}, core.NewFieldError("status", errAlreadyArchived)
	}
	return svc.setStatus(ctx, q, StatusArchived)
}

func (svc *Service) setStatus(ctx context.Context, q Quiz, status string) (Quiz, error) {
	q.Status = status
	q.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateQuiz(ctx, q)
}

// Duplicate copies q, with new question and option IDs, as a draft owned by createdBy.
func (svc *Service) Duplicate(ctx context.Context, q Quiz, createdBy string) (Quiz, error) {
	now := core.NowFunc()
	cp := q
	cp.ID = ""
	cp.Title = q.Title + copySuffix
	cp.Status = StatusDraft
	cp.CreatedBy = createdBy
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.TagIDs = append([]string{}, q.TagIDs...)
	cp.Questions = make([]Question, len(q.Questions))
	for i, qn := range q.Questions {
		qn.ID = uuid.NewString()
		opts := make([]Option, len(qn.Options))
		for j, o := range qn.Options {
			o.ID = uuid.NewString()
			opts[j] = o
		}
		qn.Options = opts
		cp.Questions[i] = qn
	}
	return svc.repo.CreateQuiz(ctx, cp)
}

// Attempts

func (svc *Service) QueryAttempts(ctx context.Context, filter *AttemptFilter, ordering []core.DBOrdering) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, filter, core.CleanOrdering(ordering, AttemptOrderingFields...))
}

func (svc *Service) GetAttempt(ctx context.Context, tenantID, id string) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, tenantID, id)
}

// StartAttempt opens a new attempt of q for the student.
func (svc *Service) StartAttempt(ctx context.Context, q Quiz, student user.User) (AttemptView, error) {
	if q.Status != StatusPublished {
		return AttemptView{}, core.NewFieldError("status", errNotPublished)
	}
	prev, err := svc.repo.QueryAttempts(ctx, &AttemptFilter{TenantID: q.TenantID, QuizID: q.ID, UserID: student.ID}, nil)
	if err != nil {
		return AttemptView{}, errors.Wrap(err, "querying attempts")
	}
	for _, a := range prev {
		if a.Open() {
			return AttemptView{}, core.NewFieldError("attempt", errAttemptOpen)
		}
	}
	if q.MaxAttempts > 0 && len(prev) >= q.MaxAttempts {
		return AttemptView{}, core.NewFieldError("attempt", fmt.Sprintf(errMaxAttempts, q.MaxAttempts))
	}

	a := Attempt{
		QuizID:        q.ID,
		TenantID:      q.TenantID,
		UserID:        student.ID,
		Number:        len(prev) + 1,
		Status:        AttemptInProgress,
		QuestionOrder: make([]string, len(q.Questions)),
		OptionOrder:   make(map[string][]string, len(q.Questions)),
		Answers:       map[string][]string{},
		MaxScore:      q.MaxScore(),
		StartedAt:     core.NowFunc(),
	}
	for i, qn := range q.Questions {
		a.QuestionOrder[i] = qn.ID
		opts := make([]string, len(qn.Options))
		for j, o := range qn.Options {
			opts[j] = o.ID
		}
		if q.ShuffleQuestions {
			ShuffleFunc(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
		}
		a.OptionOrder[qn.ID] = opts
	}
	if q.ShuffleQuestions {
		order := a.QuestionOrder
		ShuffleFunc(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	if a, err = svc.repo.CreateAttempt(ctx, a); err != nil {
		return AttemptView{}, errors.Wrap(err, "creating attempt")
	}
	return View(q, a), nil
}

// View renders the attempt the way the student sees it: in the attempt's order, without correct flags.
func View(q Quiz, a Attempt) AttemptView {
	v := AttemptView{Attempt: a, Title: q.Title, Deadline: deadline(q, a)}
	for _, qid := range a.QuestionOrder {
		qn, ok := q.question(qid)
		if !ok {
			continue
		}
		sq := StudentQuestion{ID: qn.ID, Kind: qn.Kind, Prompt: qn.Prompt, Points: qn.Points}
		for _, oid := range a.OptionOrder[qid] {
			if o, ok := qn.option(oid); ok {
				sq.Options = append(sq.Options, StudentOption{ID: o.ID, Text: o.Text})
			}
		}
		v.Questions = append(v.Questions, sq)
	}
	if a.Open() {
		v.Results = nil
	}
	return v
}

// deadline is the earliest of the due date and the end of the time limit.
func deadline(q Quiz, a Attempt) *time.Time {
	var dl *time.Time
	if q.TimeLimitMinutes > 0 {
		dl = core.TimePtr(a.StartedAt.Add(time.Duration(q.TimeLimitMinutes) * time.Minute))
	}
	if q.DueAt != nil && (dl == nil || q.DueAt.Before(*dl)) {
		dl = core.TimePtr(*q.DueAt)
	}
	return dl
}

// SubmitAttempt grades the student's answers. Late submissions are graded and flagged.
func (svc *Service) SubmitAttempt(ctx context.Context, q Quiz, a Attempt, student user.User, sub Submission) (Attempt, error) {
	if !a.Open() {
		return Attempt{}, core.NewFieldError("status", errAttemptSubmitted)
	}
	if err := checkAnswers(q, sub.Answers); err != nil {
		return Attempt{}, err
	}

	now := core.NowFunc()
	a.Answers = sub.Answers
	grade(q, &a)
	a.Status = AttemptSubmitted
	a.SubmittedAt = core.TimePtr(now)
	if dl := deadline(q, a); dl != nil && now.After(*dl) {
		a.Late = true
	}

	a, err := svc.repo.UpdateAttempt(ctx, a)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "updating attempt")
	}

	// the attempt is graded even when the student cannot be notified
	if err = svc.notifyResult(ctx, q, a, student); err != nil && svc.logger != nil {
		svc.logger.Error(fmt.Sprintf("notifying result of attempt %s: %v", a.ID, err), err)
	}
	return a, nil
}

func checkAnswers(q Quiz, answers map[string][]string) error {
	var flds []core.FieldError
	qids := make([]string, 0, len(answers))
	for qid := range answers {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	for _, qid := range qids {
		field := "answers." + qid
		qn, ok := q.question(qid)
		if !ok {
			flds = append(flds, core.FieldError{Field: field, Error: errUnknownQuestion})
			continue
		}
		if qn.Kind != KindMultiple && len(answers[qid]) > 1 {
			flds = append(flds, core.FieldError{Field: field, Error: errSingleAnswer})
			continue
		}
		for _, oid := range answers[qid] {
			if _, ok := qn.option(oid); !ok {
				flds = append(flds, core.FieldError{Field: field, Error: errUnknownOption})
				break
			}
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// grade awards a question's points only when the selected options are exactly the correct ones.
func grade(q Quiz, a *Attempt) {
	a.Score, a.MaxScore = 0, 0
	a.Results = make([]QuestionResult, 0, len(q.Questions))
	for _, qn := range q.Questions {
		correctIDs := qn.CorrectIDs()
		res := QuestionResult{
			QuestionID: qn.ID,
			Points:     qn.Points,
			Correct:    sameSet(a.Answers[qn.ID], correctIDs),
			CorrectIDs: correctIDs,
		}
		if res.Correct {
			res.Awarded = qn.Points
		}
		a.Score += res.Awarded
		a.MaxScore += qn.Points
		a.Results = append(a.Results, res)
	}
	if a.MaxScore > 0 {
		a.Percent = math.Round(float64(a.Score)/float64(a.MaxScore)*10000) / 100
	}
	a.Passed = a.Percent >= float64(q.PassMark)
}

func sameSet(a, b []string) bool {
	a = core.UniqueStrings(a)
	if len(a) != len(b) {
		return false
	}
	for _, s := range b {
		if !core.ContainsString(a, s) {
			return false
		}
	}
	return true
}

func (svc *Service) notifyResult(ctx context.Context, q Quiz, a Attempt, student user.User) error {
	verdict := "not passed"
	if a.Passed {
		verdict = "passed"
	}
	body := fmt.Sprintf("You scored %d/%d (%s%%) on attempt #%d: %s.",
		a.Score, a.MaxScore, formatPercent(a.Percent), a.Number, verdict)
	if a.Late {
		body += " The attempt was submitted late."
	}
	return svc.inbox.Notify(ctx, []user.User{student}, notification.Message{
		TenantID: a.TenantID,
		Category: notification.CategoryQuizResults,
		Title:    "Results: " + q.Title,
		Body:     body,
	})
}

func formatPercent(p float64) string {
	if p == math.Trunc(p) {
		return fmt.Sprintf("%.0f", p)
	}
	return fmt.Sprintf("%.2f", p)
}
