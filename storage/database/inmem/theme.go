package inmemdb

import (
	"context"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/theme"
)

type themeRepository struct {
	db *DB
}

func NewThemeRepository(db *DB) theme.Repository {
	return &themeRepository{db: db}
}

func (repo *themeRepository) nameTaken(name string, excluded ...string) bool {
	key := theme.NameKey(name)
	for _, t := range repo.db.themes {
		if theme.NameKey(t.Name) == key && !isExcluded(t.ID, excluded) {
			return true
		}
	}
	return false
}

func (repo *themeRepository) CheckNameUniqueness(_ context.Context, name string, excluded ...theme.Theme) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	exclIDs := make([]string, 0, len(excluded))
	for _, t := range excluded {
		exclIDs = append(exclIDs, t.ID)
	}
	if repo.nameTaken(name, exclIDs...) {
		return theme.ErrNameExists
	}
	return nil
}

func (repo *themeRepository) CreateTheme(_ context.Context, t theme.Theme) (theme.Theme, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.nameTaken(t.Name) {
		return theme.Theme{}, theme.ErrNameExists
	}
	t.ID = newID()
	repo.db.themes[t.ID] = &t
	return t, nil
}

func (repo *themeRepository) QueryThemes(_ context.Context, filter *theme.QueryFilter, ordering []core.DBOrdering) ([]theme.Theme, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	list := make([]theme.Theme, 0, len(repo.db.themes))
	for _, t := range repo.db.themes {
		if filter != nil && filter.Search != "" && !(contains(t.Name, filter.Search) || contains(t.Description, filter.Search)) {
			continue
		}
		list = append(list, *t)
	}
	sortRecords(list, ordering, theme.OrderingFields, theme.DefaultOrdering, compareThemes)
	return list, nil
}

func compareThemes(a, b theme.Theme, field string) int {
	switch field {
	case "name":
		return compareStrings(a.Name, b.Name)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func (repo *themeRepository) GetTheme(_ context.Context, id string) (theme.Theme, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.themes[id]; ok {
		return *t, nil
	}
	return theme.Theme{}, theme.ErrNotFound
}

func (repo *themeRepository) UpdateTheme(_ context.Context, t theme.Theme) (theme.Theme, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.themes[t.ID]; !ok {
		return theme.Theme{}, theme.ErrNotFound
	}
	if repo.nameTaken(t.Name, t.ID) {
		return theme.Theme{}, theme.ErrNameExists
	}
	repo.db.themes[t.ID] = &t
	return t, nil
}

func (repo *themeRepository) DeleteTheme(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.themes[id]; !ok {
		return theme.ErrNotFound
	}
	delete(repo.db.themes, id)
	return nil
}
