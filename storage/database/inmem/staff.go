package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/staff"
)

type staffRepository struct {
	db *DB
}

func NewStaffRepository(db *DB) staff.Repository {
	return &staffRepository{db: db}
}

func (repo *staffRepository) CheckEmailUniqueness(_ context.Context, email string, excluded ...staff.Staff) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	exclIDs := make([]string, 0, len(excluded))
	for _, s := range excluded {
		exclIDs = append(exclIDs, s.ID)
	}
	for _, s := range repo.db.staff {
		if email != "" && s.Email == email && !isExcluded(s.ID, exclIDs) {
			return staff.ErrEmailExists
		}
	}
	return nil
}

func (repo *staffRepository) emailTaken(s staff.Staff) bool {
	if s.Email == "" {
		return false
	}
	for _, other := range repo.db.staff {
		if other.ID != s.ID && other.Email == s.Email {
			return true
		}
	}
	return false
}

func (repo *staffRepository) CreateStaff(_ context.Context, s staff.Staff) (staff.Staff, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = newID()
	if repo.emailTaken(s) {
		return staff.Staff{}, staff.ErrEmailExists
	}
	repo.db.staff[s.ID] = &s
	return s, nil
}

func (repo *staffRepository) QueryStaff(_ context.Context, filter *staff.QueryFilter, ordering []core.DBOrdering) ([]staff.Staff, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	list := make([]staff.Staff, 0, len(repo.db.staff))
	for _, s := range repo.db.staff {
		if filter == nil || matchStaff(*s, filter) {
			list = append(list, *s)
		}
	}
	sortRecords(list, ordering, staff.OrderingFields, staff.DefaultOrdering, compareStaff)
	return list, nil
}

func matchStaff(s staff.Staff, filter *staff.QueryFilter) bool {
	if filter.Search != "" &&
		!(contains(s.FirstName, filter.Search) || contains(s.LastName, filter.Search) ||
			contains(s.Email, filter.Search) || contains(s.Position, filter.Search)) {
		return false
	}
	if filter.Establishment != "" && compareStrings(s.Establishment, filter.Establishment) != 0 {
		return false
	}
	if filter.Position != "" && compareStrings(s.Position, filter.Position) != 0 {
		return false
	}
	if filter.IDs != nil && !isExcluded(s.ID, filter.IDs) {
		return false
	}
	return true
}

func compareStaff(a, b staff.Staff, field string) int {
	switch field {
	case "first_name":
		return compareStrings(a.FirstName, b.FirstName)
	case "last_name":
		return compareStrings(a.LastName, b.LastName)
	case "email":
		return compareStrings(a.Email, b.Email)
	case "position":
		return compareStrings(a.Position, b.Position)
	case "establishment":
		return compareStrings(a.Establishment, b.Establishment)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func (repo *staffRepository) GetStaff(_ context.Context, id string) (staff.Staff, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.staff[id]; ok {
		return *s, nil
	}
	return staff.Staff{}, staff.ErrNotFound
}

func (repo *staffRepository) GetStaffByEmail(_ context.Context, email string) (staff.Staff, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.staff {
		if email != "" && s.Email == email {
			return *s, nil
		}
	}
	return staff.Staff{}, staff.ErrNotFound
}

func (repo *staffRepository) UpdateStaff(_ context.Context, s staff.Staff) (staff.Staff, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.staff[s.ID]; !ok {
		return staff.Staff{}, staff.ErrNotFound
	}
	if repo.emailTaken(s) {
		return staff.Staff{}, staff.ErrEmailExists
	}
	repo.db.staff[s.ID] = &s
	return s, nil
}

func (repo *staffRepository) DeleteStaffByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.staff[id]; !ok {
			continue
		}
		delete(repo.db.staff, id)
		cnt++
		for evID, ev := range repo.db.evaluations {
			if ev.StaffID == id {
				delete(repo.db.evaluations, evID)
			}
		}
	}
	return cnt, nil
}

func (repo *staffRepository) Establishments(_ context.Context) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, s := range repo.db.staff {
		if s.Establishment != "" && !seen[s.Establishment] {
			seen[s.Establishment] = true
			names = append(names, s.Establishment)
		}
	}
	sort.Strings(names)
	return names, nil
}
