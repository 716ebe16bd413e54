package theme

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/evalua/core"
)

type Theme struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NameKey is the case and accent insensitive form of a Theme name, used for uniqueness.
func NameKey(name string) string {
	return core.NormalizeText(name)
}

type NewTheme struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

func (nt *NewTheme) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nt.Name)
}

type UpdateTheme struct {
	Name        string  `json:"name" validate:"max=255"`
	Description *string `json:"description"`
}

func (ut *UpdateTheme) Validate(ctx context.Context, orig Theme, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(ut.Name); name != "" {
		ut.Name = name
	} else {
		ut.Name = orig.Name
	}
	if ut.Description != nil {
		desc := core.CleanString(*ut.Description)
		ut.Description = &desc
	}

	if err := validate.Struct(ut); err != nil {
		return err
	}
	if ut.Description != nil {
		if err := validate.Var(*ut.Description, "max=5000"); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "description", Error: "description is too long"})
		}
	}
	return svc.CheckUniqueness(ctx, ut.Name, orig)
}

type QueryFilter struct {
	Search string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// OrderingFields holds the fields Themes can be ordered by.
var OrderingFields = map[string]bool{
	"name":       true,
	"created_at": true,
	"updated_at": true,
}

var DefaultOrdering = []core.DBOrdering{{Field: "name", Ascending: true}}
