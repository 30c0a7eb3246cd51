package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
)

const (
	quizColumns = `id, tenant_id, title, description, tag_ids, questions, time_limit_minutes, max_attempts,
		pass_mark, shuffle_questions, status, due_at, created_by, created_at, updated_at`
	attemptColumns = `id, quiz_id, tenant_id, user_id, number, status, question_order, option_order, answers,
		results, score, max_score, percent, passed, late, started_at, submitted_at`
)

type quizRow struct {
	ID               string         `db:"id"`
	TenantID         string         `db:"tenant_id"`
	Title            string         `db:"title"`
	Description      string         `db:"description"`
	TagIDs           pq.StringArray `db:"tag_ids"`
	Questions        null.JSON      `db:"questions"`
	TimeLimitMinutes int            `db:"time_limit_minutes"`
	MaxAttempts      int            `db:"max_attempts"`
	PassMark         int            `db:"pass_mark"`
	ShuffleQuestions bool           `db:"shuffle_questions"`
	Status           string         `db:"status"`
	DueAt            null.Time      `db:"due_at"`
	CreatedBy        string         `db:"created_by"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func newQuizRow(q quiz.Quiz) (quizRow, error) {
	questions, err := toJSON(q.Questions, "[]")
	if err != nil {
		return quizRow{}, err
	}
	tagIDs := q.TagIDs
	if tagIDs == nil {
		tagIDs = []string{}
	}
	return quizRow{
		ID:               q.ID,
		TenantID:         q.TenantID,
		Title:            q.Title,
		Description:      q.Description,
		TagIDs:           tagIDs,
		Questions:        questions,
		TimeLimitMinutes: q.TimeLimitMinutes,
		MaxAttempts:      q.MaxAttempts,
		PassMark:         q.PassMark,
		ShuffleQuestions: q.ShuffleQuestions,
		Status:           q.Status,
		DueAt:            null.TimeFromPtr(q.DueAt),
		CreatedBy:        q.CreatedBy,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}, nil
}

func (r quizRow) quiz() (quiz.Quiz, error) {
	q := quiz.Quiz{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Title:            r.Title,
		Description:      r.Description,
		TagIDs:           []string(r.TagIDs),
		TimeLimitMinutes: r.TimeLimitMinutes,
		MaxAttempts:      r.MaxAttempts,
		PassMark:         r.PassMark,
		ShuffleQuestions: r.ShuffleQuestions,
		Status:           r.Status,
		DueAt:            r.DueAt.Ptr(),
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if err := fromJSON(r.Questions, &q.Questions); err != nil {
		return quiz.Quiz{}, err
	}
	return q, nil
}

type attemptRow struct {
	ID            string         `db:"id"`
	QuizID        string         `db:"quiz_id"`
	TenantID      string         `db:"tenant_id"`
	UserID        string         `db:"user_id"`
	Number        int            `db:"number"`
	Status        string         `db:"status"`
	QuestionOrder pq.StringArray `db:"question_order"`
	OptionOrder   null.JSON      `db:"option_order"`
	Answers       null.JSON      `db:"answers"`
	Results       null.JSON      `db:"results"`
	Score         int            `db:"score"`
	MaxScore      int            `db:"max_score"`
	Percent       float64        `db:"percent"`
	Passed        bool           `db:"passed"`
	Late          bool           `db:"late"`
	StartedAt     time.Time      `db:"started_at"`
	SubmittedAt   null.Time      `db:"submitted_at"`
}

func newAttemptRow(a quiz.Attempt) (attemptRow, error) {
	row := attemptRow{
		ID:            a.ID,
		QuizID:        a.QuizID,
		TenantID:      a.TenantID,
		UserID:        a.UserID,
		Number:        a.Number,
		Status:        a.Status,
		QuestionOrder: a.QuestionOrder,
		Score:         a.Score,
		MaxScore:      a.MaxScore,
		Percent:       a.Percent,
		Passed:        a.Passed,
		Late:          a.Late,
		StartedAt:     a.StartedAt,
		SubmittedAt:   null.TimeFromPtr(a.SubmittedAt),
	}
	if row.QuestionOrder == nil {
		row.QuestionOrder = []string{}
	}
	var err error
	if row.OptionOrder, err = toJSON(a.OptionOrder, "{}"); err != nil {
		return row, err
	}
	if row.Answers, err = toJSON(a.Answers, "{}"); err != nil {
		return row, err
	}
	if row.Results, err = toJSON(a.Results, "[]"); err != nil {
		return row, err
	}
	return row, nil
}

func (r attemptRow) attempt() (quiz.Attempt, error) {
	a := quiz.Attempt{
		ID:            r.ID,
		QuizID:        r.QuizID,
		TenantID:      r.TenantID,
		UserID:        r.UserID,
		Number:        r.Number,
		Status:        r.Status,
		QuestionOrder: []string(r.QuestionOrder),
		Score:         r.Score,
		MaxScore:      r.MaxScore,
		Percent:       r.Percent,
		Passed:        r.Passed,
		Late:          r.Late,
		StartedAt:     r.StartedAt,
		SubmittedAt:   r.SubmittedAt.Ptr(),
	}
	if err := fromJSON(r.OptionOrder, &a.OptionOrder); err != nil {
		return quiz.Attempt{}, err
	}
	if err := fromJSON(r.Answers, &a.Answers); err != nil {
		return quiz.Attempt{}, err
	}
	if err := fromJSON(r.Results, &a.Results); err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

type quizRepository struct {
	db *sqlx.DB
}

var _ quiz.Repository = (*quizRepository)(nil)

func NewQuizRepository(db *sqlx.DB) quiz.Repository {
	return &quizRepository{db: db}
}

func (repo *quizRepository) CreateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	q.ID = newID()
	row, err := newQuizRow(q)
	if err != nil {
		return quiz.Quiz{}, err
	}
	stmt := `INSERT INTO quizzes (` + quizColumns + `) VALUES (:id, :tenant_id, :title, :description, :tag_ids,
		:questions, :time_limit_minutes, :max_attempts, :pass_mark, :shuffle_questions, :status, :due_at,
		:created_by, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, row); err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return q, nil
}

func (repo *quizRepository) QueryQuizzes(ctx context.Context, filter *quiz.QueryFilter, ordering []core.DBOrdering) ([]quiz.Quiz, error) {
	var where conditions
	where.add("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.TagID != "" {
		where.add("? = ANY(tag_ids)", filter.TagID)
	}
	if filter.Search != "" {
		pat := likePattern(filter.Search)
		where.add("(title ILIKE ? OR description ILIKE ?)", pat, pat)
	}
	q := `SELECT ` + quizColumns + ` FROM quizzes` + where.String() + orderBy(ordering, core.DBOrdering{Field: "created_at"})

	var rows []quizRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting quizzes")
	}
	quizzes := make([]quiz.Quiz, len(rows))
	for i, r := range rows {
		qz, err := r.quiz()
		if err != nil {
			return nil, err
		}
		quizzes[i] = qz
	}
	return quizzes, nil
}

func (repo *quizRepository) GetQuiz(ctx context.Context, tenantID, id string) (quiz.Quiz, error) {
	var row quizRow
	q := `SELECT ` + quizColumns + ` FROM quizzes WHERE tenant_id = $1 AND id::text = $2`
	if err := repo.db.GetContext(ctx, &row, q, tenantID, id); err != nil {
		if isNoRows(err) {
			return quiz.Quiz{}, quiz.ErrNotFound
		}
		return quiz.Quiz{}, errors.Wrap(err, "selecting quiz")
	}
	return row.quiz()
}

func (repo *quizRepository) UpdateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	row, err := newQuizRow(q)
	if err != nil {
		return quiz.Quiz{}, err
	}
	stmt := `UPDATE quizzes SET title = :title, description = :description, tag_ids = :tag_ids,
		questions = :questions, time_limit_minutes = :time_limit_minutes, max_attempts = :max_attempts,
		pass_mark = :pass_mark, shuffle_questions = :shuffle_questions, status = :status, due_at = :due_at,
		updated_at = :updated_at WHERE tenant_id = :tenant_id AND id = :id`
	res, err := repo.db.NamedExecContext(ctx, stmt, row)
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "updating quiz")
	}
	if _, err := affected(res, quiz.ErrNotFound); err != nil {
		return quiz.Quiz{}, err
	}
	return q, nil
}

func (repo *quizRepository) DeleteQuiz(ctx context.Context, tenantID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM quizzes WHERE tenant_id = $1 AND id::text = $2`, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	_, err = affected(res, quiz.ErrNotFound)
	return err
}

func (repo *quizRepository) CreateAttempt(ctx context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	a.ID = newID()
	row, err := newAttemptRow(a)
	if err != nil {
		return quiz.Attempt{}, err
	}
	stmt := `INSERT INTO quiz_attempts (` + attemptColumns + `) VALUES (:id, :quiz_id, :tenant_id, :user_id, :number,
		:status, :question_order, :option_order, :answers, :results, :score, :max_score, :percent, :passed, :late,
		:started_at, :submitted_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, row); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo *quizRepository) UpdateAttempt(ctx context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	row, err := newAttemptRow(a)
	if err != nil {
		return quiz.Attempt{}, err
	}
	stmt := `UPDATE quiz_attempts SET status = :status, answers = :answers, results = :results, score = :score,
		max_score = :max_score, percent = :percent, passed = :passed, late = :late, submitted_at = :submitted_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, stmt, row)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	if _, err := affected(res, quiz.ErrAttemptNotFound); err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

func (repo *quizRepository) GetAttempt(ctx context.Context, tenantID, id string) (quiz.Attempt, error) {
	var row attemptRow
	q := `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE tenant_id = $1 AND id::text = $2`
	if err := repo.db.GetContext(ctx, &row, q, tenantID, id); err != nil {
		if isNoRows(err) {
			return quiz.Attempt{}, quiz.ErrAttemptNotFound
		}
		return quiz.Attempt{}, errors.Wrap(err, "selecting attempt")
	}
	return row.attempt()
}

func (repo *quizRepository) QueryAttempts(ctx context.Context, filter *quiz.AttemptFilter, ordering []core.DBOrdering) ([]quiz.Attempt, error) {
	var where conditions
	where.add("tenant_id = ?", filter.TenantID)
	if filter.QuizID != "" {
		where.add("quiz_id = ?", filter.QuizID)
	}
	if filter.UserID != "" {
		where.add("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if !filter.StartedFrom.IsZero() {
		where.add("started_at >= ?", filter.StartedFrom)
	}
	q := `SELECT ` + attemptColumns + ` FROM quiz_attempts` + where.String() +
		orderBy(ordering, core.DBOrdering{Field: "started_at", Ascending: true})

	var rows []attemptRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting attempts")
	}
	attempts := make([]quiz.Attempt, len(rows))
	for i, r := range rows {
		a, err := r.attempt()
		if err != nil {
			return nil, err
		}
		attempts[i] = a
	}
	return attempts, nil
}
