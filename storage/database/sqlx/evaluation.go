package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
)

const evaluationColumns = "id, staff_id, theme_id, kind, status, initial_id, training_date, evaluation_date, " +
	"trainer, scores, average, comments, recommendations, completed_at, created_at, updated_at"

type evaluationRow struct {
	ID              string         `db:"id"`
	StaffID         string         `db:"staff_id"`
	ThemeID         string         `db:"theme_id"`
	Kind            string         `db:"kind"`
	Status          string         `db:"status"`
	InitialID       null.String    `db:"initial_id"`
	TrainingDate    time.Time      `db:"training_date"`
	EvaluationDate  time.Time      `db:"evaluation_date"`
	Trainer         string         `db:"trainer"`
	Scores          types.JSONText `db:"scores"`
	Average         float64        `db:"average"`
	Comments        string         `db:"comments"`
	Recommendations string         `db:"recommendations"`
	CompletedAt     null.Time      `db:"completed_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func newEvaluationRow(e evaluation.Evaluation) (evaluationRow, error) {
	scores := e.Scores
	if scores == nil {
		scores = evaluation.Scores{}
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return evaluationRow{}, errors.Wrap(err, "encoding scores")
	}
	var completedAt null.Time
	if e.CompletedAt != nil {
		completedAt = null.TimeFrom(e.CompletedAt.UTC())
	}
	return evaluationRow{
		ID:              e.ID,
		StaffID:         e.StaffID,
		ThemeID:         e.ThemeID,
		Kind:            string(e.Kind),
		Status:          string(e.Status),
		InitialID:       null.NewString(e.InitialID, e.InitialID != ""),
		TrainingDate:    e.TrainingDate.UTC(),
		EvaluationDate:  e.EvaluationDate.UTC(),
		Trainer:         e.Trainer,
		Scores:          types.JSONText(raw),
		Average:         e.Average,
		Comments:        e.Comments,
		Recommendations: e.Recommendations,
		CompletedAt:     completedAt,
		CreatedAt:       e.CreatedAt.UTC(),
		UpdatedAt:       e.UpdatedAt.UTC(),
	}, nil
}

func (row evaluationRow) toEvaluation() (evaluation.Evaluation, error) {
	scores := evaluation.Scores{}
	if len(row.Scores) > 0 {
		if err := row.Scores.Unmarshal(&scores); err != nil {
			return evaluation.Evaluation{}, errors.Wrapf(err, "decoding scores of evaluation %s", row.ID)
		}
	}
	e := evaluation.Evaluation{
		ID:              row.ID,
		StaffID:         row.StaffID,
		ThemeID:         row.ThemeID,
		Kind:            evaluation.Kind(row.Kind),
		Status:          evaluation.Status(row.Status),
		InitialID:       row.InitialID.String,
		TrainingDate:    row.TrainingDate.UTC(),
		EvaluationDate:  row.EvaluationDate.UTC(),
		Trainer:         row.Trainer,
		Scores:          scores,
		Average:         row.Average,
		Comments:        row.Comments,
		Recommendations: row.Recommendations,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		at := row.CompletedAt.Time.UTC()
		e.CompletedAt = &at
	}
	return e, nil
}

type evaluationRepository struct {
	db core.DB
}

func NewEvaluationRepository(db core.DB) evaluation.Repository {
	return &evaluationRepository{db: db}
}

func uniqueEvaluationErr(err error) error {
	if isUniqueViolation(err) {
		return evaluation.FollowUpExistsError()
	}
	return err
}

func (repo *evaluationRepository) CreateEvaluation(ctx context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	e.ID = newID()
	row, err := newEvaluationRow(e)
	if err != nil {
		return evaluation.Evaluation{}, err
	}
	q := repo.db.Rebind(
		"INSERT INTO evaluations (" + evaluationColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)
	_, err = repo.db.ExecContext(
		ctx, q,
		row.ID, row.StaffID, row.ThemeID, row.Kind, row.Status, row.InitialID, row.TrainingDate, row.EvaluationDate,
		row.Trainer, row.Scores, row.Average, row.Comments, row.Recommendations, row.CompletedAt,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return evaluation.Evaluation{}, errors.Wrap(uniqueEvaluationErr(err), "creating evaluation")
	}
	return row.toEvaluation()
}

func (repo *evaluationRepository) QueryEvaluations(
	ctx context.Context,
	filter *evaluation.QueryFilter,
	ordering []core.DBOrdering,
) ([]evaluation.Evaluation, error) {
	w := &where{}
	if filter != nil {
		if filter.StaffID != "" {
			w.add("staff_id = ?", filter.StaffID)
		}
		if filter.ThemeID != "" {
			w.add("theme_id = ?", filter.ThemeID)
		}
		if filter.Kind != "" {
			w.add("kind = ?", string(filter.Kind))
		}
		if filter.Status != "" {
			w.add("status = ?", string(filter.Status))
		}
		if !filter.From.IsZero() {
			w.add("evaluation_date >= ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			w.add("evaluation_date <= ?", filter.To.UTC())
		}
		if filter.Initials != nil {
			if err := w.in("initial_id", filter.Initials); err != nil {
				return nil, err
			}
		}
	}

	q := "SELECT " + evaluationColumns + " FROM evaluations" + w.String() +
		" ORDER BY " + core.OrderByClause(ordering, evaluation.OrderingFields, "evaluation_date DESC, created_at DESC")
	var rows []evaluationRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying evaluations")
	}
	list := make([]evaluation.Evaluation, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEvaluation()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, nil
}

func (repo *evaluationRepository) getEvaluation(ctx context.Context, cond string, args ...interface{}) (evaluation.Evaluation, error) {
	var row evaluationRow
	q := repo.db.Rebind("SELECT " + evaluationColumns + " FROM evaluations WHERE " + cond)
	if err := sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Evaluation{}, evaluation.ErrNotFound
		}
		return evaluation.Evaluation{}, errors.Wrap(err, "getting evaluation")
	}
	return row.toEvaluation()
}

func (repo *evaluationRepository) GetEvaluation(ctx context.Context, id string) (evaluation.Evaluation, error) {
	return repo.getEvaluation(ctx, "id = ?", id)
}

func (repo *evaluationRepository) GetFollowUp(ctx context.Context, initialID string) (evaluation.Evaluation, error) {
	if initialID == "" {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	return repo.getEvaluation(ctx, "initial_id = ?", initialID)
}

func (repo *evaluationRepository) UpdateEvaluation(ctx context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	row, err := newEvaluationRow(e)
	if err != nil {
		return evaluation.Evaluation{}, err
	}
	q := repo.db.Rebind(`UPDATE evaluations
		SET status = ?, training_date = ?, evaluation_date = ?, trainer = ?, scores = ?, average = ?,
			comments = ?, recommendations = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`)
	res, err := repo.db.ExecContext(
		ctx, q,
		row.Status, row.TrainingDate, row.EvaluationDate, row.Trainer, row.Scores, row.Average,
		row.Comments, row.Recommendations, row.CompletedAt, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return evaluation.Evaluation{}, errors.Wrap(err, "updating evaluation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	return row.toEvaluation()
}

func (repo *evaluationRepository) DeleteEvaluation(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM evaluations WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting evaluation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.ErrNotFound
	}
	return nil
}

func (repo *evaluationRepository) CountEvaluationsByTheme(ctx context.Context, themeID string) (int, error) {
	var cnt int
	q := repo.db.Rebind("SELECT COUNT(*) FROM evaluations WHERE theme_id = ?")
	if err := sqlx.GetContext(ctx, repo.db, &cnt, q, themeID); err != nil {
		return 0, errors.Wrap(err, "counting theme evaluations")
	}
	return cnt, nil
}
