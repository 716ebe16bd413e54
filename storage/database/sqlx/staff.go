package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/staff"
)

const staffColumns = "id, first_name, last_name, email, phone, position, establishment, created_at, updated_at"

type staffRow struct {
	ID            string      `db:"id"`
	FirstName     string      `db:"first_name"`
	LastName      string      `db:"last_name"`
	Email         null.String `db:"email"`
	Phone         string      `db:"phone"`
	Position      string      `db:"position"`
	Establishment string      `db:"establishment"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func newStaffRow(s staff.Staff) staffRow {
	return staffRow{
		ID:            s.ID,
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		Email:         null.NewString(s.Email, s.Email != ""),
		Phone:         s.Phone,
		Position:      s.Position,
		Establishment: s.Establishment,
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
}

func (row staffRow) toStaff() staff.Staff {
	return staff.Staff{
		ID:            row.ID,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Email:         row.Email.String,
		Phone:         row.Phone,
		Position:      row.Position,
		Establishment: row.Establishment,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type staffRepository struct {
	db core.DB
}

func NewStaffRepository(db core.DB) staff.Repository {
	return &staffRepository{db: db}
}

func uniqueStaffErr(err error) error {
	if isUniqueViolation(err) {
		return staff.ErrEmailExists
	}
	return err
}

func (repo *staffRepository) CheckEmailUniqueness(ctx context.Context, email string, excluded ...staff.Staff) error {
	if email == "" {
		return nil
	}
	w := &where{}
	w.add("email = ?", email)
	ids := make([]string, 0, len(excluded))
	for _, s := range excluded {
		ids = append(ids, s.ID)
	}
	if ids = excludedIDs(ids); len(ids) > 0 {
		cond, args, err := sqlx.In("id NOT IN (?)", ids)
		if err != nil {
			return err
		}
		w.add(cond, args...)
	}

	var cnt int
	q := repo.db.Rebind("SELECT COUNT(*) FROM staff" + w.String())
	if err := sqlx.GetContext(ctx, repo.db, &cnt, q, w.args...); err != nil {
		return errors.Wrap(err, "checking staff email uniqueness")
	}
	if cnt > 0 {
		return staff.ErrEmailExists
	}
	return nil
}

func (repo *staffRepository) CreateStaff(ctx context.Context, s staff.Staff) (staff.Staff, error) {
	s.ID = newID()
	row := newStaffRow(s)
	q := repo.db.Rebind("INSERT INTO staff (" + staffColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	_, err := repo.db.ExecContext(
		ctx, q,
		row.ID, row.FirstName, row.LastName, row.Email, row.Phone, row.Position, row.Establishment,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return staff.Staff{}, errors.Wrap(uniqueStaffErr(err), "creating staff")
	}
	return row.toStaff(), nil
}

func (repo *staffRepository) QueryStaff(ctx context.Context, filter *staff.QueryFilter, ordering []core.DBOrdering) ([]staff.Staff, error) {
	w := &where{}
	if filter != nil {
		if filter.Search != "" {
			w.search(filter.Search, "first_name", "last_name", "email", "position")
		}
		if filter.Establishment != "" {
			w.equalFold("establishment", filter.Establishment)
		}
		if filter.Position != "" {
			w.equalFold("position", filter.Position)
		}
		if filter.IDs != nil {
			if err := w.in("id", filter.IDs); err != nil {
				return nil, err
			}
		}
	}

	q := "SELECT " + staffColumns + " FROM staff" + w.String() +
		" ORDER BY " + core.OrderByClause(ordering, staff.OrderingFields, "last_name ASC, first_name ASC")
	var rows []staffRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying staff")
	}
	list := make([]staff.Staff, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toStaff())
	}
	return list, nil
}

func (repo *staffRepository) getStaff(ctx context.Context, cond string, args ...interface{}) (staff.Staff, error) {
	var row staffRow
	q := repo.db.Rebind("SELECT " + staffColumns + " FROM staff WHERE " + cond)
	if err := sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return staff.Staff{}, staff.ErrNotFound
		}
		return staff.Staff{}, errors.Wrap(err, "getting staff")
	}
	return row.toStaff(), nil
}

func (repo *staffRepository) GetStaff(ctx context.Context, id string) (staff.Staff, error) {
	return repo.getStaff(ctx, "id = ?", id)
}

func (repo *staffRepository) GetStaffByEmail(ctx context.Context, email string) (staff.Staff, error) {
	if email == "" {
		return staff.Staff{}, staff.ErrNotFound
	}
	return repo.getStaff(ctx, "email = ?", email)
}

func (repo *staffRepository) UpdateStaff(ctx context.Context, s staff.Staff) (staff.Staff, error) {
	row := newStaffRow(s)
	q := repo.db.Rebind(`UPDATE staff
		SET first_name = ?, last_name = ?, email = ?, phone = ?, position = ?, establishment = ?, updated_at = ?
		WHERE id = ?`)
	res, err := repo.db.ExecContext(
		ctx, q,
		row.FirstName, row.LastName, row.Email, row.Phone, row.Position, row.Establishment, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return staff.Staff{}, errors.Wrap(uniqueStaffErr(err), "updating staff")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return staff.Staff{}, staff.ErrNotFound
	}
	return row.toStaff(), nil
}

// DeleteStaffByID relies on the ON DELETE CASCADE of evaluations.staff_id.
func (repo *staffRepository) DeleteStaffByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In("DELETE FROM staff WHERE id IN (?)", ids)
	if err != nil {
		return 0, err
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting staff")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo *staffRepository) Establishments(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	q := "SELECT DISTINCT establishment FROM staff WHERE establishment <> '' ORDER BY establishment"
	if err := sqlx.SelectContext(ctx, repo.db, &names, q); err != nil {
		return nil, errors.Wrap(err, "querying establishments")
	}
	return names, nil
}
