package staff

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/evalua/core"
)

const entity = "staff"

var (
	// errors
	ErrNotFound    = errors.New("staff not found")
	ErrEmailExists = errors.New("a staff member with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excluded ...Staff) error
		CreateStaff(ctx context.Context, s Staff) (Staff, error)
		// QueryStaff applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of names, email or position.
		QueryStaff(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Staff, error)
		GetStaff(ctx context.Context, id string) (Staff, error)
		GetStaffByEmail(ctx context.Context, email string) (Staff, error)
		UpdateStaff(ctx context.Context, s Staff) (Staff, error)
		// DeleteStaffByID also deletes the evaluations of the deleted Staff.
		DeleteStaffByID(ctx context.Context, ids ...string) (int, error)
		Establishments(ctx context.Context) ([]string, error)
	}

	Service struct {
		repo Repository
		bus  core.EventBus
	}
)

func NewService(repo Repository, bus core.EventBus) *Service {
	if bus == nil {
		bus = core.NopEventBus
	}
	return &Service{repo: repo, bus: bus}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email string, excluded ...Staff) error {
	if email == "" {
		return nil
	}
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excluded...); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStaff) (Staff, error) {
	now := time.Now().UTC()
	s, err := svc.repo.CreateStaff(ctx, Staff{
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		Email:         ns.Email,
		Phone:         ns.Phone,
		Position:      ns.Position,
		Establishment: ns.Establishment,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Staff{}, err
	}
	svc.bus.Publish(core.NewEvent(entity, "created", s.ID))
	return s, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Staff, error) {
	return svc.repo.QueryStaff(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Staff, error) {
	return svc.repo.GetStaff(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Staff, error) {
	return svc.repo.GetStaffByEmail(ctx, core.CleanString(email, true /* lower */))
}

// Update saves `us` (validated against `orig`) over `orig`.
func (svc *Service) Update(ctx context.Context, orig Staff, us UpdateStaff) (Staff, error) {
	s := us.apply(orig)
	s.UpdatedAt = time.Now().UTC()
	s, err := svc.repo.UpdateStaff(ctx, s)
	if err != nil {
		return Staff{}, err
	}
	svc.bus.Publish(core.NewEvent(entity, "updated", s.ID))
	return s, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cnt, err := svc.repo.DeleteStaffByID(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if cnt > 0 {
		svc.bus.Publish(core.NewEvent(entity, "deleted", ids...))
	}
	return cnt, nil
}

func (svc *Service) Establishments(ctx context.Context) ([]string, error) {
	return svc.repo.Establishments(ctx)
}
