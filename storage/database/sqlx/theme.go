package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/theme"
)

const themeColumns = "id, name, name_key, description, created_at, updated_at"

type themeRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	NameKey     string    `db:"name_key"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func newThemeRow(t theme.Theme) themeRow {
	return themeRow{
		ID:          t.ID,
		Name:        t.Name,
		NameKey:     theme.NameKey(t.Name),
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

func (row themeRow) toTheme() theme.Theme {
	return theme.Theme{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type themeRepository struct {
	db core.DB
}

func NewThemeRepository(db core.DB) theme.Repository {
	return &themeRepository{db: db}
}

func uniqueThemeErr(err error) error {
	if isUniqueViolation(err) {
		return theme.ErrNameExists
	}
	return err
}

func (repo *themeRepository) CheckNameUniqueness(ctx context.Context, name string, excluded ...theme.Theme) error {
	w := &where{}
	w.add("name_key = ?", theme.NameKey(name))
	ids := make([]string, 0, len(excluded))
	for _, t := range excluded {
		ids = append(ids, t.ID)
	}
	if ids = excludedIDs(ids); len(ids) > 0 {
		cond, args, err := sqlx.In("id NOT IN (?)", ids)
		if err != nil {
			return err
		}
		w.add(cond, args...)
	}

	var cnt int
	q := repo.db.Rebind("SELECT COUNT(*) FROM themes" + w.String())
	if err := sqlx.GetContext(ctx, repo.db, &cnt, q, w.args...); err != nil {
		return errors.Wrap(err, "checking theme name uniqueness")
	}
	if cnt > 0 {
		return theme.ErrNameExists
	}
	return nil
}

func (repo *themeRepository) CreateTheme(ctx context.Context, t theme.Theme) (theme.Theme, error) {
	t.ID = newID()
	row := newThemeRow(t)
	q := repo.db.Rebind("INSERT INTO themes (" + themeColumns + ") VALUES (?, ?, ?, ?, ?, ?)")
	_, err := repo.db.ExecContext(ctx, q, row.ID, row.Name, row.NameKey, row.Description, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return theme.Theme{}, errors.Wrap(uniqueThemeErr(err), "creating theme")
	}
	return row.toTheme(), nil
}

func (repo *themeRepository) QueryThemes(ctx context.Context, filter *theme.QueryFilter, ordering []core.DBOrdering) ([]theme.Theme, error) {
	w := &where{}
	if filter != nil && filter.Search != "" {
		w.search(filter.Search, "name", "description")
	}

	q := "SELECT " + themeColumns + " FROM themes" + w.String() +
		" ORDER BY " + core.OrderByClause(ordering, theme.OrderingFields, "name ASC")
	var rows []themeRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying themes")
	}
	list := make([]theme.Theme, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toTheme())
	}
	return list, nil
}

func (repo *themeRepository) GetTheme(ctx context.Context, id string) (theme.Theme, error) {
	var row themeRow
	q := repo.db.Rebind("SELECT " + themeColumns + " FROM themes WHERE id = ?")
	if err := sqlx.GetContext(ctx, repo.db, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return theme.Theme{}, theme.ErrNotFound
		}
		return theme.Theme{}, errors.Wrap(err, "getting theme")
	}
	return row.toTheme(), nil
}

func (repo *themeRepository) UpdateTheme(ctx context.Context, t theme.Theme) (theme.Theme, error) {
	row := newThemeRow(t)
	q := repo.db.Rebind("UPDATE themes SET name = ?, name_key = ?, description = ?, updated_at = ? WHERE id = ?")
	res, err := repo.db.ExecContext(ctx, q, row.Name, row.NameKey, row.Description, row.UpdatedAt, row.ID)
	if err != nil {
		return theme.Theme{}, errors.Wrap(uniqueThemeErr(err), "updating theme")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return theme.Theme{}, theme.ErrNotFound
	}
	return row.toTheme(), nil
}

func (repo *themeRepository) DeleteTheme(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM themes WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting theme")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return theme.ErrNotFound
	}
	return nil
}
