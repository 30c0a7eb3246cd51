package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

const contextAttemptKey = "attempt"

type quizApi struct {
	*Server
}

func registerQuizAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := quizApi{s}

	qg := g.Group("/quizzes", append(authed, requireTenant)...)
	qg.GET("", api.query)
	qg.POST("", api.create, teachersOnly)

	dg := qg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teachersOnly)
	dg.DELETE("", api.destroy, teachersOnly)
	dg.POST("/publish", api.publish, teachersOnly)
	dg.POST("/archive", api.archive, teachersOnly)
	dg.POST("/duplicate", api.duplicate, teachersOnly)

	dg.GET("/attempts", api.queryAttempts)
	dg.POST("/attempts", api.startAttempt, studentsOnly)
	adg := dg.Group("/attempts/:attempt_id", api.attemptMiddleware)
	adg.GET("", api.retrieveAttempt)
	adg.POST("/submit", api.submitAttempt, studentsOnly)
}

// studentQuiz is the catalogue view of a quiz; questions are only revealed through attempts.
type studentQuiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TagIDs           []string   `json:"tag_ids"`
	QuestionCount    int        `json:"question_count"`
	MaxScore         int        `json:"max_score"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	MaxAttempts      int        `json:"max_attempts"`
	PassMark         int        `json:"pass_mark"`
	DueAt            *time.Time `json:"due_at"`
}

func newStudentQuiz(q quiz.Quiz) studentQuiz {
	return studentQuiz{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		TagIDs:           q.TagIDs,
		QuestionCount:    len(q.Questions),
		MaxScore:         q.MaxScore(),
		TimeLimitMinutes: q.TimeLimitMinutes,
		MaxAttempts:      q.MaxAttempts,
		PassMark:         q.PassMark,
		DueAt:            q.DueAt,
	}
}

// isBuilder reports whether the requester may see quizzes in full.
func isBuilder(ctx echo.Context) bool {
	claims, _ := getContextClaims(ctx)
	return claims.HasRolePrefix(user.RoleStaff, user.RoleAdmin, user.RoleTeacher)
}

func (api quizApi) create(ctx echo.Context) error {
	var data quiz.QuizInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	q, err := api.deps.QuizSvc.Create(ctx.Request().Context(), contextTenant(ctx), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api quizApi) query(ctx echo.Context) error {
	filter := &quiz.QueryFilter{
		TenantID: contextTenant(ctx),
		Status:   ctx.QueryParam("status"),
		TagID:    ctx.QueryParam("tag"),
		Search:   ctx.QueryParam("search"),
	}
	builder := isBuilder(ctx)
	if !builder {
		filter.Status = quiz.StatusPublished
	}
	filter.Clean()

	quizzes, err := api.deps.QuizSvc.Query(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying quizzes")
	}
	if builder {
		if quizzes == nil {
			quizzes = []quiz.Quiz{}
		}
		return ctx.JSON(http.StatusOK, quizzes)
	}

	catalogue := make([]studentQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		catalogue = append(catalogue, newStudentQuiz(q))
	}
	return ctx.JSON(http.StatusOK, catalogue)
}

func (api quizApi) retrieve(ctx echo.Context) error {
	q := ctx.Get(contextObjectKey).(quiz.Quiz)
	if isBuilder(ctx) {
		return ctx.JSON(http.StatusOK, q)
	}
	return ctx.JSON(http.StatusOK, newStudentQuiz(q))
}

func (api quizApi) update(ctx echo.Context) error {
	q := ctx.Get(contextObjectKey).(quiz.Quiz)

	var data quiz.QuizInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	q, err := api.deps.QuizSvc.Update(ctx.Request().Context(), q, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api quizApi) destroy(ctx echo.Context) error {
	if err := api.deps.QuizSvc.Delete(ctx.Request().Context(), ctx.Get(contextObjectKey).(quiz.Quiz)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api quizApi) publish(ctx echo.Context) error {
	return api.setStatus(ctx, api.deps.QuizSvc.Publish)
}

func (api quizApi) archive(ctx echo.Context) error {
	return api.setStatus(ctx, api.deps.QuizSvc.Archive)
}

func (api quizApi) setStatus(ctx echo.Context, fn func(context.Context, quiz.Quiz) (quiz.Quiz, error)) error {
	q, err := fn(ctx.Request().Context(), ctx.Get(contextObjectKey).(quiz.Quiz))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api quizApi) duplicate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	q, err := api.deps.QuizSvc.Duplicate(ctx.Request().Context(), ctx.Get(contextObjectKey).(quiz.Quiz), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "duplicating quiz")
	}
	return ctx.JSON(http.StatusCreated, q)
}

// Attempts

func (api quizApi) queryAttempts(ctx echo.Context) error {
	q := ctx.Get(contextObjectKey).(quiz.Quiz)
	filter := &quiz.AttemptFilter{
		TenantID: q.TenantID,
		QuizID:   q.ID,
		UserID:   ctx.QueryParam("user_id"),
		Status:   core.CleanString(ctx.QueryParam("status"), true /* lower */),
	}
	if !isBuilder(ctx) {
		claims, _ := getContextClaims(ctx)
		filter.UserID = claims.Subject
	}

	attempts, err := api.deps.QuizSvc.QueryAttempts(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []quiz.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api quizApi) startAttempt(ctx echo.Context) error {
	student, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	view, err := api.deps.QuizSvc.StartAttempt(ctx.Request().Context(), ctx.Get(contextObjectKey).(quiz.Quiz), student)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, view)
}

func (api quizApi) retrieveAttempt(ctx echo.Context) error {
	q := ctx.Get(contextObjectKey).(quiz.Quiz)
	a := ctx.Get(contextAttemptKey).(quiz.Attempt)
	if a.Open() {
		return ctx.JSON(http.StatusOK, quiz.View(q, a))
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api quizApi) submitAttempt(ctx echo.Context) error {
	var data quiz.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	student, err := api.contextUser(ctx)
	if err != nil {
		return err
	}

	q := ctx.Get(contextObjectKey).(quiz.Quiz)
	a := ctx.Get(contextAttemptKey).(quiz.Attempt)
	a, err = api.deps.QuizSvc.SubmitAttempt(ctx.Request().Context(), q, a, student, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

// objectMiddleware loads the quiz; students only ever see published ones.
func (api quizApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		q, err := api.deps.QuizSvc.Get(ctx.Request().Context(), contextTenant(ctx), ctx.Param("id"))
		if err != nil {
			return err
		}
		if q.Status != quiz.StatusPublished && !isBuilder(ctx) {
			return quiz.ErrNotFound
		}
		ctx.Set(contextObjectKey, q)
		return next(ctx)
	}
}

// attemptMiddleware loads an attempt of the quiz; students only ever see their own.
func (api quizApi) attemptMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		q := ctx.Get(contextObjectKey).(quiz.Quiz)
		a, err := api.deps.QuizSvc.GetAttempt(ctx.Request().Context(), q.TenantID, ctx.Param("attempt_id"))
		if err != nil {
			return err
		}
		claims, _ := getContextClaims(ctx)
		if a.QuizID != q.ID || (!isBuilder(ctx) && a.UserID != claims.Subject) {
			return quiz.ErrAttemptNotFound
		}
		ctx.Set(contextAttemptKey, a)
		return next(ctx)
	}
}
