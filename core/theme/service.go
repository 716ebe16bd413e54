package theme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trezcool/evalua/core"
)

const entity = "theme"

var (
	// errors
	ErrNotFound   = errors.New("theme not found")
	ErrNameExists = errors.New("a theme with this name already exists")
)

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, name string, excluded ...Theme) error
		CreateTheme(ctx context.Context, t Theme) (Theme, error)
		// QueryThemes does a case-insensitive match of QueryFilter.Search on name or description.
		QueryThemes(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Theme, error)
		GetTheme(ctx context.Context, id string) (Theme, error)
		UpdateTheme(ctx context.Context, t Theme) (Theme, error)
		DeleteTheme(ctx context.Context, id string) error
	}

	// UsageCounter counts the evaluations referencing a Theme.
	UsageCounter interface {
		CountEvaluationsByTheme(ctx context.Context, themeID string) (int, error)
	}

	Service struct {
		repo  Repository
		usage UsageCounter
		bus   core.EventBus
	}
)

func NewService(repo Repository, usage UsageCounter, bus core.EventBus) *Service {
	if bus == nil {
		bus = core.NopEventBus
	}
	return &Service{repo: repo, usage: usage, bus: bus}
}

func (svc *Service) CheckUniqueness(ctx context.Context, name string, excluded ...Theme) error {
	if err := svc.repo.CheckNameUniqueness(ctx, name, excluded...); err != nil {
		if errors.Is(err, ErrNameExists) {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nt NewTheme) (Theme, error) {
	now := time.Now().UTC()
	t, err := svc.repo.CreateTheme(ctx, Theme{
		Name:        nt.Name,
		Description: nt.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Theme{}, err
	}
	svc.bus.Publish(core.NewEvent(entity, "created", t.ID))
	return t, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Theme, error) {
	return svc.repo.QueryThemes(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Theme, error) {
	return svc.repo.GetTheme(ctx, id)
}

func (svc *Service) Update(ctx context.Context, orig Theme, ut UpdateTheme) (Theme, error) {
	t := orig
	t.Name = ut.Name
	if ut.Description != nil {
		t.Description = *ut.Description
	}
	t.UpdatedAt = time.Now().UTC()
	t, err := svc.repo.UpdateTheme(ctx, t)
	if err != nil {
		return Theme{}, err
	}
	svc.bus.Publish(core.NewEvent(entity, "updated", t.ID))
	return t, nil
}

// Delete deletes the Theme unless evaluations still reference it.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if svc.usage != nil {
		cnt, err := svc.usage.CountEvaluationsByTheme(ctx, id)
		if err != nil {
			return err
		}
		if cnt > 0 {
			return core.NewValidationError(fmt.Errorf("theme is used by %d evaluation(s)", cnt))
		}
	}
	if err := svc.repo.DeleteTheme(ctx, id); err != nil {
		return err
	}
	svc.bus.Publish(core.NewEvent(entity, "deleted", id))
	return nil
}
