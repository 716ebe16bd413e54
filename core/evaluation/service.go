package evaluation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
)

const (
	entity = "evaluation"

	DefaultFollowUpMonths = 6
)

var (
	// errors
	ErrNotFound         = errors.New("evaluation not found")
	ErrAlreadyCompleted = errors.New("evaluation is already completed")
	ErrFollowUpExists   = errors.New("a follow-up evaluation already exists for this initial evaluation")
	ErrHasFollowUp      = errors.New("evaluation has a follow-up evaluation")
)

type (
	Repository interface {
		CreateEvaluation(ctx context.Context, e Evaluation) (Evaluation, error)
		// QueryEvaluations applies AND operation on available QueryFilter fields.
		QueryEvaluations(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Evaluation, error)
		GetEvaluation(ctx context.Context, id string) (Evaluation, error)
		// GetFollowUp returns the follow-up of the initial evaluation `initialID`.
		GetFollowUp(ctx context.Context, initialID string) (Evaluation, error)
		UpdateEvaluation(ctx context.Context, e Evaluation) (Evaluation, error)
		DeleteEvaluation(ctx context.Context, id string) error
		CountEvaluationsByTheme(ctx context.Context, themeID string) (int, error)
	}

	StaffGetter interface {
		GetByID(ctx context.Context, id string) (staff.Staff, error)
	}

	ThemeGetter interface {
		GetByID(ctx context.Context, id string) (theme.Theme, error)
	}

	Service struct {
		repo           Repository
		staff          StaffGetter
		themes         ThemeGetter
		bus            core.EventBus
		followUpMonths int
	}
)

func NewService(repo Repository, staffs StaffGetter, themes ThemeGetter, bus core.EventBus, followUpMonths int) *Service {
	if bus == nil {
		bus = core.NopEventBus
	}
	if followUpMonths <= 0 {
		followUpMonths = DefaultFollowUpMonths
	}
	return &Service{
		repo:           repo,
		staff:          staffs,
		themes:         themes,
		bus:            bus,
		followUpMonths: followUpMonths,
	}
}

type fieldErr struct {
	field, msg string
}

func (e fieldErr) Error() string { return e.field + ": " + e.msg }

// resolveInitial returns the completed initial Evaluation a new follow-up may reference.
// FollowUpExistsError reports ErrFollowUpExists on the initial_id field.
func FollowUpExistsError() error {
	return core.NewValidationError(ErrFollowUpExists, core.FieldError{Field: "initial_id", Error: ErrFollowUpExists.Error()})
}

func (svc *Service) resolveInitial(ctx context.Context, id string) (Evaluation, error) {
	if id == "" {
		return Evaluation{}, fieldErr{"initial_id", "this field is required"}
	}
	initial, err := svc.repo.GetEvaluation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Evaluation{}, fieldErr{"initial_id", "initial evaluation not found"}
		}
		return Evaluation{}, err
	}
	if initial.Kind != KindInitial {
		return Evaluation{}, fieldErr{"initial_id", "must reference an initial evaluation"}
	}
	if !initial.IsCompleted() {
		return Evaluation{}, fieldErr{"initial_id", "the initial evaluation must be completed first"}
	}

	_, err = svc.repo.GetFollowUp(ctx, id)
	switch {
	case err == nil:
		return Evaluation{}, FollowUpExistsError()
	case !errors.Is(err, ErrNotFound):
		return Evaluation{}, err
	}
	return initial, nil
}

func (svc *Service) checkRefs(ctx context.Context, staffID, themeID string, addErr func(field, msg string)) error {
	if staffID == "" {
		addErr("staff_id", "this field is required")
	} else if _, err := svc.staff.GetByID(ctx, staffID); err != nil {
		if !errors.Is(err, staff.ErrNotFound) {
			return err
		}
		addErr("staff_id", "staff not found")
	}

	if themeID == "" {
		addErr("theme_id", "this field is required")
	} else if _, err := svc.themes.GetByID(ctx, themeID); err != nil {
		if !errors.Is(err, theme.ErrNotFound) {
			return err
		}
		addErr("theme_id", "theme not found")
	}
	return nil
}

func missingErr(missing []string) error {
	return core.NewValidationError(nil, core.FieldError{
		Field: "scores",
		Error: "missing scores: " + strings.Join(missing, ", "),
	})
}

// Create saves a draft Evaluation from `ne` (validated beforehand), completed right away if ne.Complete.
func (svc *Service) Create(ctx context.Context, ne NewEvaluation) (Evaluation, error) {
	form, _ := FormOf(ne.Kind)
	if ne.Complete {
		if missing := form.missing(ne.Scores); len(missing) > 0 {
			return Evaluation{}, missingErr(missing)
		}
	}

	now := time.Now().UTC()
	e := Evaluation{
		StaffID:         ne.StaffID,
		ThemeID:         ne.ThemeID,
		Kind:            ne.Kind,
		Status:          StatusDraft,
		TrainingDate:    ne.trainingDate,
		EvaluationDate:  ne.evaluationDate,
		Trainer:         ne.Trainer,
		Scores:          ne.Scores.copy(),
		Average:         ne.Scores.Average(),
		Comments:        ne.Comments,
		Recommendations: ne.Recommendations,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if ne.Kind == KindFollowUp {
		e.InitialID = ne.InitialID
	}

	e, err := svc.repo.CreateEvaluation(ctx, e)
	if err != nil {
		return Evaluation{}, err
	}
	svc.bus.Publish(core.NewEvent(entity, "created", e.ID))

	if ne.Complete {
		return svc.Complete(ctx, e)
	}
	return e, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Evaluation, error) {
	return svc.repo.QueryEvaluations(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Evaluation, error) {
	return svc.repo.GetEvaluation(ctx, id)
}

// Update merges `ue` into the draft `orig`.
func (svc *Service) Update(ctx context.Context, orig Evaluation, ue UpdateEvaluation) (Evaluation, error) {
	if err := ue.Validate(orig); err != nil {
		return Evaluation{}, err
	}
	e := ue.merged
	e.Average = e.Scores.Average()
	e.UpdatedAt = time.Now().UTC()

	e, err := svc.repo.UpdateEvaluation(ctx, e)
	if err != nil {
		return Evaluation{}, err
	}
	svc.bus.Publish(core.NewEvent(entity, "updated", e.ID))
	return e, nil
}

// Complete marks the draft `orig` as completed once every criterion of its form is scored.
func (svc *Service) Complete(ctx context.Context, orig Evaluation) (Evaluation, error) {
	if orig.IsCompleted() {
		return Evaluation{}, core.NewValidationError(ErrAlreadyCompleted)
	}
	form, _ := FormOf(orig.Kind)
	if missing := form.missing(orig.Scores); len(missing) > 0 {
		return Evaluation{}, missingErr(missing)
	}

	now := time.Now().UTC()
	e := orig
	e.Status = StatusCompleted
	e.Average = e.Scores.Average()
	e.CompletedAt = &now
	e.UpdatedAt = now

	e, err := svc.repo.UpdateEvaluation(ctx, e)
	if err != nil {
		return Evaluation{}, err
	}
	svc.bus.Publish(core.NewEvent(entity, "completed", e.ID))
	return e, nil
}

// Delete deletes the Evaluation unless it is an initial evaluation with a follow-up.
func (svc *Service) Delete(ctx context.Context, id string) error {
	e, err := svc.repo.GetEvaluation(ctx, id)
	if err != nil {
		return err
	}
	if e.Kind == KindInitial {
		_, err := svc.repo.GetFollowUp(ctx, id)
		switch {
		case err == nil:
			return core.NewValidationError(ErrHasFollowUp)
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	if err := svc.repo.DeleteEvaluation(ctx, id); err != nil {
		return err
	}
	svc.bus.Publish(core.NewEvent(entity, "deleted", id))
	return nil
}

func (svc *Service) CountEvaluationsByTheme(ctx context.Context, themeID string) (int, error) {
	return svc.repo.CountEvaluationsByTheme(ctx, themeID)
}

// FollowUpMonths is the delay between a training and its follow-up evaluation.
func (svc *Service) FollowUpMonths() int {
	return svc.followUpMonths
}

// DueDate returns the date the follow-up of the initial evaluation `e` is due.
func (svc *Service) DueDate(e Evaluation) time.Time {
	return core.TruncateDay(e.TrainingDate).AddDate(0, svc.followUpMonths, 0)
}

// FollowUpsDue lists the completed initial evaluations without any follow-up,
// due on or before asOf + within, by due date.
func (svc *Service) FollowUpsDue(ctx context.Context, asOf time.Time, within time.Duration) ([]DueFollowUp, error) {
	initials, err := svc.repo.QueryEvaluations(
		ctx,
		&QueryFilter{Kind: KindInitial, Status: StatusCompleted},
		[]core.DBOrdering{{Field: "training_date", Ascending: true}},
	)
	if err != nil {
		return nil, err
	}
	if len(initials) == 0 {
		return []DueFollowUp{}, nil
	}

	followUps, err := svc.repo.QueryEvaluations(ctx, &QueryFilter{Kind: KindFollowUp}, nil)
	if err != nil {
		return nil, err
	}
	followedUp := make(map[string]bool, len(followUps))
	for _, fu := range followUps {
		followedUp[fu.InitialID] = true
	}

	today := core.TruncateDay(asOf)
	limit := today.Add(within)
	due := make([]DueFollowUp, 0)
	for _, initial := range initials {
		if followedUp[initial.ID] {
			continue
		}
		dueDate := svc.DueDate(initial)
		if dueDate.After(limit) {
			continue
		}
		due = append(due, DueFollowUp{
			Initial: initial,
			DueDate: dueDate,
			Overdue: dueDate.Before(today),
		})
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].DueDate.Before(due[j].DueDate) })
	return due, nil
}
