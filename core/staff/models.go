package staff

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/evalua/core"
)

type Staff struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Position      string    `json:"position"`
	Establishment string    `json:"establishment"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (s Staff) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// NewStaff contains information needed to create a new Staff.
type NewStaff struct {
	FirstName     string `json:"first_name" validate:"required,max=150"`
	LastName      string `json:"last_name" validate:"required,max=150"`
	Email         string `json:"email" validate:"omitempty,email,max=255"`
	Phone         string `json:"phone" validate:"omitempty,phone"`
	Position      string `json:"position" validate:"max=255"`
	Establishment string `json:"establishment" validate:"max=255"`
}

func (ns *NewStaff) Clean() {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.Position = core.CleanString(ns.Position)
	ns.Establishment = core.CleanString(ns.Establishment)
}

func (ns *NewStaff) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ns.Clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ns.Email)
}

// UpdateStaff defines what information may be provided to modify an existing Staff.
// Empty fields keep their original values.
type UpdateStaff struct {
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Position      *string `json:"position"`
	Establishment *string `json:"establishment"`
}

func (us *UpdateStaff) Validate(ctx context.Context, orig Staff, validate *validator.Validate, svc *Service) error {
	if fname := core.CleanString(us.FirstName); fname != "" {
		us.FirstName = fname
	} else {
		us.FirstName = orig.FirstName
	}
	if lname := core.CleanString(us.LastName); lname != "" {
		us.LastName = lname
	} else {
		us.LastName = orig.LastName
	}
	us.Email = cleanPtr(us.Email, true)
	us.Phone = cleanPtr(us.Phone, false)
	us.Position = cleanPtr(us.Position, false)
	us.Establishment = cleanPtr(us.Establishment, false)

	// the updated record must satisfy the creation rules
	merged := us.apply(orig)
	ns := NewStaff{
		FirstName:     merged.FirstName,
		LastName:      merged.LastName,
		Email:         merged.Email,
		Phone:         merged.Phone,
		Position:      merged.Position,
		Establishment: merged.Establishment,
	}
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if us.Email == nil {
		return nil
	}
	return svc.CheckUniqueness(ctx, *us.Email, orig)
}

// apply returns `orig` modified by `us`.
func (us UpdateStaff) apply(orig Staff) Staff {
	s := orig
	s.FirstName = us.FirstName
	s.LastName = us.LastName
	if us.Email != nil && *us.Email != "" {
		s.Email = *us.Email
	}
	if us.Phone != nil && *us.Phone != "" {
		s.Phone = *us.Phone
	}
	if us.Position != nil && *us.Position != "" {
		s.Position = *us.Position
	}
	if us.Establishment != nil && *us.Establishment != "" {
		s.Establishment = *us.Establishment
	}
	return s
}

func cleanPtr(s *string, lower bool) *string {
	if s == nil {
		return nil
	}
	v := core.CleanString(*s, lower)
	if v == "" {
		return nil
	}
	return &v
}

type QueryFilter struct {
	Search        string
	Establishment string
	Position      string
	IDs           []string
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Establishment == "" && qf.Position == "" && qf.IDs == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Establishment = core.CleanString(qf.Establishment)
	qf.Position = core.CleanString(qf.Position)
}

// OrderingFields holds the fields Staff can be ordered by.
var OrderingFields = map[string]bool{
	"first_name":    true,
	"last_name":     true,
	"email":         true,
	"position":      true,
	"establishment": true,
	"created_at":    true,
	"updated_at":    true,
}

// DefaultOrdering is applied when no valid ordering is requested.
var DefaultOrdering = []core.DBOrdering{
	{Field: "last_name", Ascending: true},
	{Field: "first_name", Ascending: true},
}
