package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/core/user"
)

// DB keeps every table behind one lock so deletes can cascade.
type DB struct {
	mutex       sync.RWMutex
	users       map[string]*user.User
	staff       map[string]*staff.Staff
	themes      map[string]*theme.Theme
	evaluations map[string]*evaluation.Evaluation
}

func Open() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		staff:       make(map[string]*staff.Staff),
		themes:      make(map[string]*theme.Theme),
		evaluations: make(map[string]*evaluation.Evaluation),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.users = make(map[string]*user.User)
	db.staff = make(map[string]*staff.Staff)
	db.themes = make(map[string]*theme.Theme)
	db.evaluations = make(map[string]*evaluation.Evaluation)
}

func newID() string {
	return uuid.NewString()
}

func contains(s, substr string) bool {
	return strings.Contains(core.FoldText(s), core.FoldText(substr))
}

func isExcluded(id string, excluded []string) bool {
	for _, ex := range excluded {
		if ex == id {
			return true
		}
	}
	return false
}

func compareStrings(a, b string) int {
	return strings.Compare(core.FoldText(a), core.FoldText(b))
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// sortRecords sorts `records` by the allowed orderings (or `fallback`); `cmp` compares 2 records on a field.
func sortRecords[T any](
	records []T,
	ordering []core.DBOrdering,
	allowed map[string]bool,
	fallback []core.DBOrdering,
	cmp func(a, b T, field string) int,
) {
	valid := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if allowed[ord.Field] {
			valid = append(valid, ord)
		}
	}
	if len(valid) == 0 {
		valid = fallback
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range valid {
			c := cmp(records[i], records[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}
