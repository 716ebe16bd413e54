package evaluation

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/evalua/core"
)

type (
	Kind   string
	Status string

	// Scores maps a Criterion key to its score.
	Scores map[string]int
)

const (
	KindInitial  Kind = "initial"
	KindFollowUp Kind = "followUp"

	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// Average returns the mean of the scores rounded to 2 decimals, 0 without scores.
func (s Scores) Average() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum int
	for _, v := range s {
		sum += v
	}
	return core.Round2(float64(sum) / float64(len(s)))
}

func (s Scores) copy() Scores {
	c := make(Scores, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

type Evaluation struct {
	ID              string     `json:"id"`
	StaffID         string     `json:"staff_id"`
	ThemeID         string     `json:"theme_id"`
	Kind            Kind       `json:"kind"`
	Status          Status     `json:"status"`
	InitialID       string     `json:"initial_id,omitempty"`
	TrainingDate    time.Time  `json:"training_date"`   // UTC, day
	EvaluationDate  time.Time  `json:"evaluation_date"` // UTC, day
	Trainer         string     `json:"trainer"`
	Scores          Scores     `json:"scores"`
	Average         float64    `json:"average"`
	Comments        string     `json:"comments"`
	Recommendations string     `json:"recommendations"`
	CompletedAt     *time.Time `json:"completed_at"` // UTC
	CreatedAt       time.Time  `json:"created_at"`   // UTC
	UpdatedAt       time.Time  `json:"updated_at"`   // UTC
}

func (e Evaluation) IsDraft() bool     { return e.Status == StatusDraft }
func (e Evaluation) IsCompleted() bool { return e.Status == StatusCompleted }

// NewEvaluation contains information needed to create a new (draft) Evaluation.
type NewEvaluation struct {
	Kind            Kind   `json:"kind" validate:"required,oneof=initial followUp"`
	StaffID         string `json:"staff_id"`
	ThemeID         string `json:"theme_id"`
	InitialID       string `json:"initial_id"`
	TrainingDate    string `json:"training_date"`
	EvaluationDate  string `json:"evaluation_date"`
	Trainer         string `json:"trainer" validate:"max=255"`
	Scores          Scores `json:"scores"`
	Comments        string `json:"comments" validate:"max=10000"`
	Recommendations string `json:"recommendations" validate:"max=10000"`
	// Complete completes the evaluation right after its creation.
	Complete bool `json:"complete"`

	trainingDate   time.Time
	evaluationDate time.Time
}

// Validate checks `ne` and resolves the references (staff, theme and initial evaluation).
func (ne *NewEvaluation) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ne.StaffID = core.CleanString(ne.StaffID)
	ne.ThemeID = core.CleanString(ne.ThemeID)
	ne.InitialID = core.CleanString(ne.InitialID)
	ne.Trainer = core.CleanString(ne.Trainer)
	ne.Comments = core.CleanString(ne.Comments)
	ne.Recommendations = core.CleanString(ne.Recommendations)
	if ne.Scores == nil {
		ne.Scores = Scores{}
	}

	if err := validate.Struct(ne); err != nil {
		return err
	}

	var fldErrs []core.FieldError
	addErr := func(field, msg string) { fldErrs = append(fldErrs, core.FieldError{Field: field, Error: msg}) }

	unresolved := false // follow-up whose initial evaluation is unusable
	if ne.Kind == KindFollowUp {
		initial, err := svc.resolveInitial(ctx, ne.InitialID)
		if err != nil {
			if fErr, ok := err.(fieldErr); ok {
				addErr(fErr.field, fErr.msg)
				unresolved = true
			} else {
				return err
			}
		} else {
			if ne.StaffID != "" && ne.StaffID != initial.StaffID {
				addErr("staff_id", "must match the staff of the initial evaluation")
			}
			if ne.ThemeID != "" && ne.ThemeID != initial.ThemeID {
				addErr("theme_id", "must match the theme of the initial evaluation")
			}
			ne.StaffID = initial.StaffID
			ne.ThemeID = initial.ThemeID
			if ne.TrainingDate == "" {
				ne.trainingDate = initial.TrainingDate
			}
		}
	} else {
		if ne.InitialID != "" {
			addErr("initial_id", "only follow-up evaluations reference an initial evaluation")
		}
		if err := svc.checkRefs(ctx, ne.StaffID, ne.ThemeID, addErr); err != nil {
			return err
		}
	}

	if ne.TrainingDate != "" {
		d, err := core.ParseDate(ne.TrainingDate)
		if err != nil {
			addErr("training_date", "invalid date")
		}
		ne.trainingDate = core.TruncateDay(d)
	} else if ne.trainingDate.IsZero() && !unresolved {
		addErr("training_date", "this field is required")
	}

	if ne.EvaluationDate != "" {
		d, err := core.ParseDate(ne.EvaluationDate)
		if err != nil {
			addErr("evaluation_date", "invalid date")
		}
		ne.evaluationDate = core.TruncateDay(d)
	} else {
		ne.evaluationDate = core.TruncateDay(time.Now())
	}
	if !ne.trainingDate.IsZero() && !ne.evaluationDate.IsZero() && ne.evaluationDate.Before(ne.trainingDate) {
		addErr("evaluation_date", "cannot be before the training date")
	}

	form, _ := FormOf(ne.Kind)
	if msgs := form.checkScores(ne.Scores); len(msgs) > 0 {
		addErr("scores", joinMsgs(msgs))
	}

	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	return nil
}

// UpdateEvaluation defines what may be modified on a draft Evaluation.
// A score of 0 clears the criterion.
type UpdateEvaluation struct {
	TrainingDate    *string `json:"training_date"`
	EvaluationDate  *string `json:"evaluation_date"`
	Trainer         *string `json:"trainer"`
	Scores          Scores  `json:"scores"`
	Comments        *string `json:"comments"`
	Recommendations *string `json:"recommendations"`

	merged Evaluation
}

func (ue *UpdateEvaluation) Validate(orig Evaluation) error {
	if !orig.IsDraft() {
		return core.NewValidationError(ErrAlreadyCompleted)
	}

	var fldErrs []core.FieldError
	addErr := func(field, msg string) { fldErrs = append(fldErrs, core.FieldError{Field: field, Error: msg}) }

	e := orig
	e.Scores = orig.Scores.copy()
	if ue.TrainingDate != nil {
		if d, err := core.ParseDate(*ue.TrainingDate); err != nil {
			addErr("training_date", "invalid date")
		} else {
			e.TrainingDate = core.TruncateDay(d)
		}
	}
	if ue.EvaluationDate != nil {
		if d, err := core.ParseDate(*ue.EvaluationDate); err != nil {
			addErr("evaluation_date", "invalid date")
		} else {
			e.EvaluationDate = core.TruncateDay(d)
		}
	}
	if e.EvaluationDate.Before(e.TrainingDate) {
		addErr("evaluation_date", "cannot be before the training date")
	}
	if ue.Trainer != nil {
		e.Trainer = core.CleanString(*ue.Trainer)
		if len(e.Trainer) > 255 {
			addErr("trainer", "trainer must be a maximum of 255 characters in length")
		}
	}
	if ue.Comments != nil {
		e.Comments = core.CleanString(*ue.Comments)
	}
	if ue.Recommendations != nil {
		e.Recommendations = core.CleanString(*ue.Recommendations)
	}

	for key, val := range ue.Scores {
		if val == 0 {
			delete(e.Scores, key)
			continue
		}
		e.Scores[key] = val
	}
	form, _ := FormOf(e.Kind)
	if msgs := form.checkScores(e.Scores); len(msgs) > 0 {
		addErr("scores", joinMsgs(msgs))
	}

	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	ue.merged = e
	return nil
}

type QueryFilter struct {
	StaffID  string
	ThemeID  string
	Kind     Kind
	Status   Status
	From     time.Time // evaluation_date >= From
	To       time.Time // evaluation_date <= To
	Initials []string  // follow-ups of these initial evaluations
}

func (qf *QueryFilter) Clean() {
	qf.StaffID = core.CleanString(qf.StaffID)
	qf.ThemeID = core.CleanString(qf.ThemeID)
	if !qf.From.IsZero() {
		qf.From = core.TruncateDay(qf.From)
	}
	if !qf.To.IsZero() {
		qf.To = core.TruncateDay(qf.To)
	}
}

// OrderingFields holds the fields Evaluations can be ordered by.
var OrderingFields = map[string]bool{
	"evaluation_date": true,
	"training_date":   true,
	"created_at":      true,
	"updated_at":      true,
	"average":         true,
}

var DefaultOrdering = []core.DBOrdering{
	{Field: "evaluation_date", Ascending: false},
	{Field: "created_at", Ascending: false},
}

// DueFollowUp is a completed initial Evaluation with no follow-up yet.
type DueFollowUp struct {
	Initial Evaluation `json:"initial"`
	DueDate time.Time  `json:"due_date"`
	Overdue bool       `json:"overdue"`
}
