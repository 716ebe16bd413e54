package inmemdb

import (
	"context"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
)

type evaluationRepository struct {
	db *DB
}

func NewEvaluationRepository(db *DB) evaluation.Repository {
	return &evaluationRepository{db: db}
}

// clone copies `e` so stored scores are never shared with callers.
func clone(e evaluation.Evaluation) evaluation.Evaluation {
	scores := make(evaluation.Scores, len(e.Scores))
	for k, v := range e.Scores {
		scores[k] = v
	}
	e.Scores = scores
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		e.CompletedAt = &at
	}
	return e
}

func (repo *evaluationRepository) followUpTaken(e evaluation.Evaluation) bool {
	if e.InitialID == "" {
		return false
	}
	for _, other := range repo.db.evaluations {
		if other.ID != e.ID && other.InitialID == e.InitialID {
			return true
		}
	}
	return false
}

func (repo *evaluationRepository) CreateEvaluation(_ context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.followUpTaken(e) {
		return evaluation.Evaluation{}, evaluation.FollowUpExistsError()
	}
	e.ID = newID()
	stored := clone(e)
	repo.db.evaluations[e.ID] = &stored
	return clone(stored), nil
}

func (repo *evaluationRepository) QueryEvaluations(
	_ context.Context,
	filter *evaluation.QueryFilter,
	ordering []core.DBOrdering,
) ([]evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	list := make([]evaluation.Evaluation, 0, len(repo.db.evaluations))
	for _, e := range repo.db.evaluations {
		if filter == nil || matchEvaluation(*e, filter) {
			list = append(list, clone(*e))
		}
	}
	sortRecords(list, ordering, evaluation.OrderingFields, evaluation.DefaultOrdering, compareEvaluations)
	return list, nil
}

func matchEvaluation(e evaluation.Evaluation, filter *evaluation.QueryFilter) bool {
	switch {
	case filter.StaffID != "" && e.StaffID != filter.StaffID:
		return false
	case filter.ThemeID != "" && e.ThemeID != filter.ThemeID:
		return false
	case filter.Kind != "" && e.Kind != filter.Kind:
		return false
	case filter.Status != "" && e.Status != filter.Status:
		return false
	case !filter.From.IsZero() && e.EvaluationDate.Before(filter.From):
		return false
	case !filter.To.IsZero() && e.EvaluationDate.After(filter.To):
		return false
	case filter.Initials != nil && !isExcluded(e.InitialID, filter.Initials):
		return false
	}
	return true
}

func compareEvaluations(a, b evaluation.Evaluation, field string) int {
	switch field {
	case "evaluation_date":
		return compareTimes(a.EvaluationDate, b.EvaluationDate)
	case "training_date":
		return compareTimes(a.TrainingDate, b.TrainingDate)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "average":
		return compareFloats(a.Average, b.Average)
	}
	return 0
}

func (repo *evaluationRepository) GetEvaluation(_ context.Context, id string) (evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.evaluations[id]; ok {
		return clone(*e), nil
	}
	return evaluation.Evaluation{}, evaluation.ErrNotFound
}

func (repo *evaluationRepository) GetFollowUp(_ context.Context, initialID string) (evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, e := range repo.db.evaluations {
		if initialID != "" && e.InitialID == initialID {
			return clone(*e), nil
		}
	}
	return evaluation.Evaluation{}, evaluation.ErrNotFound
}

func (repo *evaluationRepository) UpdateEvaluation(_ context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.evaluations[e.ID]; !ok {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	stored := clone(e)
	repo.db.evaluations[e.ID] = &stored
	return clone(stored), nil
}

func (repo *evaluationRepository) DeleteEvaluation(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.evaluations[id]; !ok {
		return evaluation.ErrNotFound
	}
	delete(repo.db.evaluations, id)
	return nil
}

func (repo *evaluationRepository) CountEvaluationsByTheme(_ context.Context, themeID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, e := range repo.db.evaluations {
		if e.ThemeID == themeID {
			cnt++
		}
	}
	return cnt, nil
}
