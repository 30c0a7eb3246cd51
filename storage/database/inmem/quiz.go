package inmemdb

import (
	"context"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
)

type quizRepository struct {
	db *DB
}

var _ quiz.Repository = (*quizRepository)(nil)

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db}
}

var (
	quizFields = fieldGetter[quiz.Quiz]{
		"title":      func(q quiz.Quiz) interface{} { return q.Title },
		"status":     func(q quiz.Quiz) interface{} { return q.Status },
		"due_at":     func(q quiz.Quiz) interface{} { return q.DueAt },
		"created_at": func(q quiz.Quiz) interface{} { return q.CreatedAt },
		"updated_at": func(q quiz.Quiz) interface{} { return q.UpdatedAt },
	}
	attemptFields = fieldGetter[quiz.Attempt]{
		"number":       func(a quiz.Attempt) interface{} { return a.Number },
		"started_at":   func(a quiz.Attempt) interface{} { return a.StartedAt },
		"submitted_at": func(a quiz.Attempt) interface{} { return a.SubmittedAt },
		"percent":      func(a quiz.Attempt) interface{} { return a.Percent },
	}
)

func copyQuiz(q quiz.Quiz) quiz.Quiz {
	q.TagIDs = cloneStrings(q.TagIDs)
	questions := make([]quiz.Question, len(q.Questions))
	for i, qn := range q.Questions {
		qn.Options = append([]quiz.Option{}, qn.Options...)
		questions[i] = qn
	}
	q.Questions = questions
	return q
}

func copyAttempt(a quiz.Attempt) quiz.Attempt {
	a.QuestionOrder = cloneStrings(a.QuestionOrder)
	a.OptionOrder = cloneStringMap(a.OptionOrder)
	a.Answers = cloneStringMap(a.Answers)
	if a.Results != nil {
		results := make([]quiz.QuestionResult, len(a.Results))
		for i, r := range a.Results {
			r.CorrectIDs = cloneStrings(r.CorrectIDs)
			results[i] = r
		}
		a.Results = results
	}
	return a
}

func cloneStringMap(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = cloneStrings(v)
	}
	return cp
}

func (repo *quizRepository) CreateQuiz(_ context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	q.ID = newID()
	repo.db.quizzes[q.ID] = copyQuiz(q)
	return q, nil
}

func (repo *quizRepository) QueryQuizzes(_ context.Context, filter *quiz.QueryFilter, ordering []core.DBOrdering) ([]quiz.Quiz, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	quizzes := make([]quiz.Quiz, 0)
	for _, q := range repo.db.quizzes {
		if q.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if filter.TagID != "" && !core.ContainsString(q.TagIDs, filter.TagID) {
			continue
		}
		if filter.Search != "" && !contains(q.Title, filter.Search) && !contains(q.Description, filter.Search) {
			continue
		}
		quizzes = append(quizzes, copyQuiz(q))
	}
	order(quizzes, ordering, quizFields, core.DBOrdering{Field: "created_at"})
	return quizzes, nil
}

func (repo *quizRepository) GetQuiz(_ context.Context, tenantID, id string) (quiz.Quiz, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if q, ok := repo.db.quizzes[id]; ok && q.TenantID == tenantID {
		return copyQuiz(q), nil
	}
	return quiz.Quiz{}, quiz.ErrNotFound
}

func (repo *quizRepository) UpdateQuiz(_ context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.quizzes[q.ID]; !ok || orig.TenantID != q.TenantID {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	repo.db.quizzes[q.ID] = copyQuiz(q)
	return q, nil
}

func (repo *quizRepository) DeleteQuiz(_ context.Context, tenantID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if q, ok := repo.db.quizzes[id]; !ok || q.TenantID != tenantID {
		return quiz.ErrNotFound
	}
	delete(repo.db.quizzes, id)
	for k, a := range repo.db.attempts {
		if a.QuizID == id {
			delete(repo.db.attempts, k)
		}
	}
	return nil
}

func (repo *quizRepository) CreateAttempt(_ context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a.ID = newID()
	repo.db.attempts[a.ID] = copyAttempt(a)
	return a, nil
}

func (repo *quizRepository) UpdateAttempt(_ context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attempts[a.ID]; !ok {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	repo.db.attempts[a.ID] = copyAttempt(a)
	return a, nil
}

func (repo *quizRepository) GetAttempt(_ context.Context, tenantID, id string) (quiz.Attempt, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.attempts[id]; ok && a.TenantID == tenantID {
		return copyAttempt(a), nil
	}
	return quiz.Attempt{}, quiz.ErrAttemptNotFound
}

func (repo *quizRepository) QueryAttempts(_ context.Context, filter *quiz.AttemptFilter, ordering []core.DBOrdering) ([]quiz.Attempt, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	attempts := make([]quiz.Attempt, 0)
	for _, a := range repo.db.attempts {
		if a.TenantID != filter.TenantID {
			continue
		}
		if filter.QuizID != "" && a.QuizID != filter.QuizID {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if !filter.StartedFrom.IsZero() && a.StartedAt.Before(filter.StartedFrom) {
			continue
		}
		attempts = append(attempts, copyAttempt(a))
	}
	order(attempts, ordering, attemptFields, core.DBOrdering{Field: "started_at", Ascending: true})
	return attempts, nil
}
