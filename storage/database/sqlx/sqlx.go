// Package sqlxrepos implements the repositories on top of jmoiron/sqlx, for SQLite and PostgreSQL.
package sqlxrepos

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/storage/database"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

const pqUniqueViolation = "23505"

func newID() string {
	return uuid.NewString()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch code := liteErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			// extended codes disabled
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

// where accumulates AND-ed conditions written with `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// in adds "col IN (...)"; nothing matches an empty `vals`.
func (w *where) in(col string, vals []string) error {
	if len(vals) == 0 {
		w.add("1 = 0")
		return nil
	}
	cond, args, err := sqlx.In(col+" IN (?)", vals)
	if err != nil {
		return err
	}
	w.add(cond, args...)
	return nil
}

// search adds a case and accent insensitive match of `term` on one of `cols`.
func (w *where) search(term string, cols ...string) {
	like := "%" + likeEscaper.Replace(core.FoldText(term)) + "%"
	ors := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		ors = append(ors, database.FoldFunc+"("+col+`) LIKE ? ESCAPE '\'`)
		args = append(args, like)
	}
	w.add("("+strings.Join(ors, " OR ")+")", args...)
}

// equalFold adds a case and accent insensitive equality of `col` and `val`.
func (w *where) equalFold(col, val string) {
	w.add(database.FoldFunc+"("+col+") = ?", core.FoldText(val))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func excludedIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
