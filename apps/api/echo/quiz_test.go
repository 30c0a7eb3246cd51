package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

func testQuizInput() quiz.QuizInput {
	return quiz.QuizInput{
		Title:       "Fractions",
		MaxAttempts: 2,
		Questions: []quiz.QuestionInput{
			{ID: "q1", Kind: quiz.KindSingle, Prompt: "1/2 + 1/4 = ?", Points: 2, Options: []quiz.OptionInput{
				{ID: "o1", Text: "3/4", Correct: true},
				{ID: "o2", Text: "2/6"},
			}},
			{ID: "q2", Kind: quiz.KindMultiple, Prompt: "Which equal 1/2?", Points: 2, Options: []quiz.OptionInput{
				{ID: "o1", Text: "2/4", Correct: true},
				{ID: "o2", Text: "3/6", Correct: true},
				{ID: "o3", Text: "2/3"},
			}},
		},
	}
}

func Test_quizApi(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	other := env.createTenant(t, "blue_lake")
	teacher := env.createUser(t, school.ID, "teacher1", user.RoleTeacher)
	student := env.createUser(t, school.ID, "student1", user.RoleStudent)
	outsider := env.createUser(t, other.ID, "teacher2", user.RoleTeacher)
	teacherTok, studentTok := env.token(t, teacher), env.token(t, student)

	t.Run("invalid options", func(t *testing.T) {
		in := testQuizInput()
		in.Questions[0].Options[1].Correct = true
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/quizzes", token: teacherTok, body: in})
		requireCode(t, rec, http.StatusBadRequest)
		assert.Contains(t, rec.Body.String(), "questions[0].options")
	})

	t.Run("students cannot build", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/v1/quizzes", token: studentTok, body: testQuizInput()})
		requireCode(t, rec, http.StatusForbidden)
	})

	rec := env.do(t, request{method: http.MethodPost, path: "/v1/quizzes", token: teacherTok, body: testQuizInput()})
	requireCode(t, rec, http.StatusCreated)
	var q quiz.Quiz
	decode(t, rec, &q)
	assert.Equal(t, quiz.StatusDraft, q.Status)
	assert.Equal(t, 50, q.PassMark)
	assert.Equal(t, teacher.ID, q.CreatedBy)
	assert.Equal(t, 4, q.MaxScore())
	path := "/v1/quizzes/" + q.ID

	t.Run("drafts are hidden from students", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: path, token: studentTok})
		requireCode(t, rec, http.StatusNotFound)

		rec = env.do(t, request{method: http.MethodGet, path: "/v1/quizzes", token: studentTok})
		requireCode(t, rec, http.StatusOK)
		var got []studentQuiz
		decode(t, rec, &got)
		assert.Empty(t, got)
	})

	t.Run("other institutions cannot see it", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: path, token: env.token(t, outsider)})
		requireCode(t, rec, http.StatusNotFound)
	})

	rec = env.do(t, request{method: http.MethodPost, path: path + "/publish", token: teacherTok})
	requireCode(t, rec, http.StatusOK)
	decode(t, rec, &q)
	assert.Equal(t, quiz.StatusPublished, q.Status)

	t.Run("published quizzes are read-only", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPut, path: path, token: teacherTok, body: testQuizInput()})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("catalogue hides answers", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: path, token: studentTok})
		requireCode(t, rec, http.StatusOK)
		assert.NotContains(t, rec.Body.String(), "correct")
		var got studentQuiz
		decode(t, rec, &got)
		assert.Equal(t, 2, got.QuestionCount)
		assert.Equal(t, 4, got.MaxScore)
	})

	t.Run("teachers do not take quizzes", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: path + "/attempts", token: teacherTok})
		requireCode(t, rec, http.StatusForbidden)
	})

	rec = env.do(t, request{method: http.MethodPost, path: path + "/attempts", token: studentTok})
	requireCode(t, rec, http.StatusCreated)
	assert.NotContains(t, rec.Body.String(), "\"correct\"")
	var view quiz.AttemptView
	decode(t, rec, &view)
	assert.Equal(t, 1, view.Number)
	assert.Equal(t, quiz.AttemptInProgress, view.Status)
	require.Len(t, view.Questions, 2)
	attemptPath := path + "/attempts/" + view.ID

	t.Run("one open attempt at a time", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: path + "/attempts", token: studentTok})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("unknown option", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: attemptPath + "/submit", token: studentTok,
			body: quiz.Submission{Answers: map[string][]string{"q1": {"o9"}}}})
		requireCode(t, rec, http.StatusBadRequest)
		assert.Contains(t, rec.Body.String(), "answers.q1")
	})

	rec = env.do(t, request{method: http.MethodPost, path: attemptPath + "/submit", token: studentTok,
		body: quiz.Submission{Answers: map[string][]string{"q1": {"o1"}, "q2": {"o1"}}}})
	requireCode(t, rec, http.StatusOK)
	var a quiz.Attempt
	decode(t, rec, &a)
	assert.Equal(t, quiz.AttemptSubmitted, a.Status)
	assert.Equal(t, 2, a.Score)
	assert.Equal(t, 4, a.MaxScore)
	assert.Equal(t, 50.0, a.Percent)
	assert.True(t, a.Passed)
	assert.False(t, a.Late)
	require.Len(t, a.Results, 2)
	assert.False(t, a.Results[1].Correct)
	assert.ElementsMatch(t, []string{"o1", "o2"}, a.Results[1].CorrectIDs)

	t.Run("already submitted", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: attemptPath + "/submit", token: studentTok,
			body: quiz.Submission{Answers: map[string][]string{"q1": {"o1"}}}})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("result notification", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/v1/notifications?category=quiz_results", token: studentTok})
		requireCode(t, rec, http.StatusOK)
		var ns []notification.Notification
		decode(t, rec, &ns)
		require.Len(t, ns, 1)
		assert.Equal(t, "Results: Fractions", ns[0].Title)
		assert.Contains(t, ns[0].Body, "2/4 (50%)")
	})

	t.Run("attempts", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: attemptPath, token: teacherTok})
		requireCode(t, rec, http.StatusOK)

		other := env.createUser(t, school.ID, "student2", user.RoleStudent)
		rec = env.do(t, request{method: http.MethodGet, path: attemptPath, token: env.token(t, other)})
		requireCode(t, rec, http.StatusNotFound)

		rec = env.do(t, request{method: http.MethodGet, path: path + "/attempts", token: env.token(t, other)})
		requireCode(t, rec, http.StatusOK)
		var got []quiz.Attempt
		decode(t, rec, &got)
		assert.Empty(t, got)

		rec = env.do(t, request{method: http.MethodGet, path: path + "/attempts", token: teacherTok})
		requireCode(t, rec, http.StatusOK)
		decode(t, rec, &got)
		assert.Len(t, got, 1)
	})

	t.Run("max attempts", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: path + "/attempts", token: studentTok})
		requireCode(t, rec, http.StatusCreated)
		decode(t, rec, &view)
		rec = env.do(t, request{method: http.MethodPost, path: path + "/attempts/" + view.ID + "/submit", token: studentTok,
			body: quiz.Submission{Answers: map[string][]string{"q1": {"o1"}, "q2": {"o1", "o2"}}}})
		requireCode(t, rec, http.StatusOK)
		decode(t, rec, &a)
		assert.Equal(t, 2, a.Number)
		assert.Equal(t, 100.0, a.Percent)

		rec = env.do(t, request{method: http.MethodPost, path: path + "/attempts", token: studentTok})
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("duplicate and archive", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: path + "/duplicate", token: teacherTok})
		requireCode(t, rec, http.StatusCreated)
		var cp quiz.Quiz
		decode(t, rec, &cp)
		assert.Equal(t, "Fractions (copy)", cp.Title)
		assert.Equal(t, quiz.StatusDraft, cp.Status)
		assert.NotEqual(t, q.Questions[0].ID, cp.Questions[0].ID)

		rec = env.do(t, request{method: http.MethodPost, path: path + "/archive", token: teacherTok})
		requireCode(t, rec, http.StatusOK)
		rec = env.do(t, request{method: http.MethodPost, path: path + "/archive", token: teacherTok})
		requireCode(t, rec, http.StatusBadRequest)

		rec = env.do(t, request{method: http.MethodGet, path: "/v1/quizzes?status=draft", token: teacherTok})
		requireCode(t, rec, http.StatusOK)
		var got []quiz.Quiz
		decode(t, rec, &got)
		require.Len(t, got, 1)
		assert.Equal(t, cp.ID, got[0].ID)

		rec = env.do(t, request{method: http.MethodDelete, path: "/v1/quizzes/" + cp.ID, token: teacherTok})
		requireCode(t, rec, http.StatusNoContent)
	})
}

func Test_quizApi_unknownTag(t *testing.T) {
	env := newTestEnv(t)
	school := env.createTenant(t, "green_hill")
	teacher := env.createUser(t, school.ID, "teacher1", user.RoleTeacher)

	in := testQuizInput()
	in.TagIDs = []string{"nope"}
	rec := env.do(t, request{method: http.MethodPost, path: "/v1/quizzes", token: env.token(t, teacher), body: in})
	requireCode(t, rec, http.StatusBadRequest)
	assert.Contains(t, rec.Body.String(), "tag_ids")
}
