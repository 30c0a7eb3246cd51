package quiz_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
	inmemdb "github.com/pqasys/langcsebkg5-sub007/storage/database/inmem"
)

type fakeTags map[string]bool // {tagID: exists}

func (tags fakeTags) CheckIDs(_ context.Context, _, field string, ids []string) error {
	for _, id := range ids {
		if !tags[id] {
			return core.NewFieldError(field, "unknown tag")
		}
	}
	return nil
}

type fakeInbox struct {
	msgs []notification.Message
	err  error
}

func (in *fakeInbox) Notify(_ context.Context, _ []user.User, msg notification.Message) error {
	if in.err != nil {
		return in.err
	}
	in.msgs = append(in.msgs, msg)
	return nil
}

type fakeLogger struct {
	core.Logger
	errors []string
}

func (l *fakeLogger) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

type fixture struct {
	svc     *quiz.Service
	inbox   *fakeInbox
	logger  *fakeLogger
	now     time.Time
	student user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		inbox:   &fakeInbox{},
		logger:  &fakeLogger{},
		now:     time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		student: user.User{ID: "s1", TenantID: "t1", Roles: user.StudentRoles},
	}
	f.svc = quiz.NewService(inmemdb.NewQuizRepository(inmemdb.Open()), fakeTags{"algebra": true}, f.inbox, f.logger)

	origNow := core.NowFunc
	core.NowFunc = func() time.Time { return f.now }
	t.Cleanup(func() { core.NowFunc = origNow })
	return f
}

func fractionsInput() quiz.QuizInput {
	return quiz.QuizInput{
		Title:       " Fractions ",
		TagIDs:      []string{"algebra", "algebra"},
		MaxAttempts: 2,
		Questions: []quiz.QuestionInput{
			{ID: "q1", Kind: quiz.KindSingle, Prompt: "1/2 + 1/2?", Points: 2, Options: []quiz.OptionInput{
				{ID: "o1", Text: "1", Correct: true},
				{ID: "o2", Text: "2"},
			}},
			{ID: "q2", Kind: quiz.KindMultiple, Prompt: "Which equal 1/2?", Points: 2, Options: []quiz.OptionInput{
				{ID: "o1", Text: "2/4", Correct: true},
				{ID: "o2", Text: "3/6", Correct: true},
				{ID: "o3", Text: "2/3"},
			}},
			{ID: "q3", Kind: quiz.KindTrueFalse, Prompt: "1/3 > 1/4", Options: []quiz.OptionInput{
				{ID: "t", Text: "True", Correct: true},
				{ID: "f", Text: "False"},
			}},
		},
	}
}

func (f *fixture) publish(t *testing.T, qi quiz.QuizInput) quiz.Quiz {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, qi.Validate())
	q, err := f.svc.Create(ctx, "t1", "teacher-1", qi)
	require.NoError(t, err)
	q, err = f.svc.Publish(ctx, q)
	require.NoError(t, err)
	return q
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	flds := make(map[string]string, len(verr.Fields))
	for _, fe := range verr.Fields {
		flds[fe.Field] = fe.Error
	}
	return flds
}

func TestQuizInput_Validate(t *testing.T) {
	qi := fractionsInput()
	require.NoError(t, qi.Validate())
	assert.Equal(t, "Fractions", qi.Title)
	assert.Equal(t, []string{"algebra"}, qi.TagIDs)
	assert.Equal(t, 50, *qi.PassMark)
	assert.Equal(t, 1, qi.Questions[2].Points)

	qi = fractionsInput()
	qi.Questions[0].Options[1].Correct = true             // two correct answers on a single choice
	qi.Questions[1].Options = qi.Questions[1].Options[2:] // one option, none correct
	qi.Questions[2].Options = append(qi.Questions[2].Options, quiz.OptionInput{Text: "Maybe"})
	assert.Equal(t, map[string]string{
		"questions[0].options": "exactly 1 option must be correct",
		"questions[1].options": "at least 2 options are required",
		"questions[2].options": "exactly 2 options are required",
	}, fieldErrors(t, qi.Validate()))

	qi = fractionsInput()
	qi.Questions[1].Options[0].Correct = false
	qi.Questions[1].Options[1].Correct = false
	assert.Equal(t, map[string]string{"questions[1].options": "at least 1 option must be correct"}, fieldErrors(t, qi.Validate()))

	qi = fractionsInput()
	qi.Questions[0].Kind = "essay"
	assert.Error(t, qi.Validate())

	qi = fractionsInput()
	passMark := 101
	qi.PassMark = &passMark
	assert.Error(t, qi.Validate())
}

func TestService_builder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qi := fractionsInput()
	qi.TagIDs = []string{"history"}
	require.NoError(t, qi.Validate())
	_, err := f.svc.Create(ctx, "t1", "teacher-1", qi)
	assert.Contains(t, fieldErrors(t, err), "tag_ids")

	qi = fractionsInput()
	qi.Questions[1].Options[1].ID = "o1" // duplicate option ID is replaced
	require.NoError(t, qi.Validate())
	q, err := f.svc.Create(ctx, "t1", "teacher-1", qi)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusDraft, q.Status)
	assert.Equal(t, 5, q.MaxScore())
	assert.Equal(t, "q1", q.Questions[0].ID)
	assert.Equal(t, "o1", q.Questions[1].Options[0].ID)
	assert.NotEqual(t, "o1", q.Questions[1].Options[1].ID)
	assert.Equal(t, []string{"t"}, q.Questions[2].CorrectIDs())

	// drafts can be edited, not published ones
	qi.Title = "Fractions 101"
	q, err = f.svc.Update(ctx, q, qi)
	require.NoError(t, err)
	assert.Equal(t, "Fractions 101", q.Title)

	empty := quiz.QuizInput{Title: "Empty"}
	require.NoError(t, empty.Validate())
	e, err := f.svc.Create(ctx, "t1", "teacher-1", empty)
	require.NoError(t, err)
	_, err = f.svc.Publish(ctx, e)
	assert.Equal(t, map[string]string{"questions": "a quiz needs at least one question to be published"}, fieldErrors(t, err))

	q, err = f.svc.Publish(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusPublished, q.Status)
	_, err = f.svc.Publish(ctx, q)
	assert.True(t, core.IsValidationError(err))
	_, err = f.svc.Update(ctx, q, qi)
	assert.True(t, core.IsValidationError(err))

	cp, err := f.svc.Duplicate(ctx, q, "teacher-2")
	require.NoError(t, err)
	assert.NotEqual(t, q.ID, cp.ID)
	assert.Equal(t, "Fractions 101 (copy)", cp.Title)
	assert.Equal(t, quiz.StatusDraft, cp.Status)
	assert.Equal(t, "teacher-2", cp.CreatedBy)
	require.Len(t, cp.Questions, 3)
	assert.NotEqual(t, q.Questions[0].ID, cp.Questions[0].ID)
	assert.NotEqual(t, q.Questions[0].Options[0].ID, cp.Questions[0].Options[0].ID)
	assert.Equal(t, q.Questions[0].Options[0].Correct, cp.Questions[0].Options[0].Correct)

	q, err = f.svc.Archive(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusArchived, q.Status)
	_, err = f.svc.Archive(ctx, q)
	assert.True(t, core.IsValidationError(err))

	drafts, err := f.svc.Query(ctx, &quiz.QueryFilter{TenantID: "t1", Status: quiz.StatusDraft}, nil)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	require.NoError(t, f.svc.Delete(ctx, cp))
	_, err = f.svc.Get(ctx, "t1", cp.ID)
	assert.Equal(t, quiz.ErrNotFound, errors.Cause(err))
	_, err = f.svc.Get(ctx, "t2", q.ID)
	assert.Equal(t, quiz.ErrNotFound, errors.Cause(err))
}

func TestService_attempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.publish(t, fractionsInput())

	view, err := f.svc.StartAttempt(ctx, q, f.student)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Number)
	assert.Equal(t, "Fractions", view.Title)
	assert.Equal(t, 5, view.MaxScore)
	assert.Nil(t, view.Deadline)
	assert.Equal(t, []string{"q1", "q2", "q3"}, view.QuestionOrder)
	require.Len(t, view.Questions, 3)
	assert.Equal(t, []quiz.StudentOption{{ID: "o1", Text: "1"}, {ID: "o2", Text: "2"}}, view.Questions[0].Options)

	_, err = f.svc.StartAttempt(ctx, q, f.student)
	assert.True(t, core.IsValidationError(err))

	a, err := f.svc.GetAttempt(ctx, "t1", view.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAttempt(ctx, q, a, f.student, quiz.Submission{Answers: map[string][]string{
		"q1": {"o1", "o2"},
		"q2": {"o9"},
		"qx": {"o1"},
	}})
	assert.Equal(t, map[string]string{
		"answers.q1": "only one option can be selected",
		"answers.q2": "unknown option",
		"answers.qx": "unknown question",
	}, fieldErrors(t, err))

	// q1 right, q2 partially right (no credit), q3 unanswered
	a, err = f.svc.SubmitAttempt(ctx, q, a, f.student, quiz.Submission{Answers: map[string][]string{
		"q1": {"o1"},
		"q2": {"o1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, quiz.AttemptSubmitted, a.Status)
	assert.Equal(t, 2, a.Score)
	assert.Equal(t, 5, a.MaxScore)
	assert.Equal(t, 40.0, a.Percent)
	assert.False(t, a.Passed)
	assert.False(t, a.Late)
	require.Len(t, a.Results, 3)
	assert.True(t, a.Results[0].Correct)
	assert.Equal(t, 2, a.Results[0].Awarded)
	assert.False(t, a.Results[1].Correct)
	assert.Equal(t, []string{"o1", "o2"}, a.Results[1].CorrectIDs)

	_, err = f.svc.SubmitAttempt(ctx, q, a, f.student, quiz.Submission{Answers: map[string][]string{}})
	assert.True(t, core.IsValidationError(err))

	require.Len(t, f.inbox.msgs, 1)
	assert.Equal(t, notification.CategoryQuizResults, f.inbox.msgs[0].Category)
	assert.Equal(t, "Results: Fractions", f.inbox.msgs[0].Title)
	assert.Equal(t, "You scored 2/5 (40%) on attempt #1: not passed.", f.inbox.msgs[0].Body)

	view, err = f.svc.StartAttempt(ctx, q, f.student)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Number)
	a, err = f.svc.SubmitAttempt(ctx, q, view.Attempt, f.student, quiz.Submission{Answers: map[string][]string{
		"q1": {"o1"},
		"q2": {"o2", "o1"},
		"q3": {"t"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.Percent)
	assert.True(t, a.Passed)
	assert.Equal(t, "You scored 5/5 (100%) on attempt #2: passed.", f.inbox.msgs[1].Body)

	_, err = f.svc.StartAttempt(ctx, q, f.student)
	assert.Equal(t, map[string]string{"attempt": "maximum number of attempts reached (2)"}, fieldErrors(t, err))

	attempts, err := f.svc.QueryAttempts(ctx, &quiz.AttemptFilter{TenantID: "t1", QuizID: q.ID, UserID: f.student.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestService_attemptDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qi := fractionsInput()
	qi.MaxAttempts = 0
	qi.TimeLimitMinutes = 30
	qi.DueAt = core.TimePtr(f.now.Add(time.Hour))
	q := f.publish(t, qi)

	view, err := f.svc.StartAttempt(ctx, q, f.student)
	require.NoError(t, err)
	require.NotNil(t, view.Deadline)
	assert.Equal(t, f.now.Add(30*time.Minute), *view.Deadline)

	// the due date wins when it comes first
	f.now = f.now.Add(45 * time.Minute)
	a, err := f.svc.SubmitAttempt(ctx, q, view.Attempt, f.student, quiz.Submission{Answers: map[string][]string{"q3": {"t"}}})
	require.NoError(t, err)
	assert.True(t, a.Late)
	assert.Contains(t, f.inbox.msgs[0].Body, "submitted late")

	view, err = f.svc.StartAttempt(ctx, q, f.student)
	require.NoError(t, err)
	assert.Equal(t, *q.DueAt, *view.Deadline)
}

func TestService_SubmitAttempt_inboxDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.publish(t, fractionsInput())
	f.inbox.err = errors.New("inbox down")

	view, err := f.svc.StartAttempt(ctx, q, f.student)
	require.NoError(t, err)
	a, err := f.svc.SubmitAttempt(ctx, q, view.Attempt, f.student, quiz.Submission{Answers: map[string][]string{"q1": {"o1"}}})
	require.NoError(t, err, "the result is kept when the student cannot be notified")
	assert.Equal(t, quiz.AttemptSubmitted, a.Status)
	assert.Equal(t, 2, a.Score)
	require.Len(t, f.logger.errors, 1)
	assert.Contains(t, f.logger.errors[0], "inbox down")

	stored, err := f.svc.GetAttempt(ctx, "t1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.AttemptSubmitted, stored.Status)
	assert.Equal(t, 2, stored.Score)
}

func TestService_shuffle(t *testing.T) {
	f := newFixture(t)
	origShuffle := quiz.ShuffleFunc
	quiz.ShuffleFunc = func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	t.Cleanup(func() { quiz.ShuffleFunc = origShuffle })

	qi := fractionsInput()
	qi.ShuffleQuestions = true
	q := f.publish(t, qi)

	view, err := f.svc.StartAttempt(context.Background(), q, f.student)
	require.NoError(t, err)
	assert.Equal(t, []string{"q3", "q2", "q1"}, view.QuestionOrder)
	assert.Equal(t, "q3", view.Questions[0].ID)
	assert.Equal(t, []string{"o3", "o2", "o1"}, view.OptionOrder["q2"])
	assert.Equal(t, "o3", view.Questions[1].Options[0].ID)
}

func TestService_startRequiresPublished(t *testing.T) {
	f := newFixture(t)
	qi := fractionsInput()
	require.NoError(t, qi.Validate())
	q, err := f.svc.Create(context.Background(), "t1", "teacher-1", qi)
	require.NoError(t, err)

	_, err = f.svc.StartAttempt(context.Background(), q, f.student)
	assert.Equal(t, map[string]string{"status": "the quiz is not published"}, fieldErrors(t, err))
}
