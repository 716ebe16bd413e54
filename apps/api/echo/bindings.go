package echoapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/evalua/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// queryParams reads typed query params, collecting the invalid ones.
type queryParams struct {
	values url.Values
	errs   []core.FieldError
}

func newQueryParams(ctx echo.Context) *queryParams {
	return &queryParams{values: ctx.QueryParams()}
}

func (q *queryParams) addErr(name, msg string) {
	q.errs = append(q.errs, core.FieldError{Field: name, Error: msg})
}

func (q *queryParams) str(name string) string {
	return q.values.Get(name)
}

// strs returns every non-empty value of `name`, nil if none.
func (q *queryParams) strs(name string) []string {
	var vals []string
	for _, v := range q.values[name] {
		if v = strings.TrimSpace(v); v != "" {
			vals = append(vals, v)
		}
	}
	return vals
}

func (q *queryParams) boolPtr(name string) *bool {
	s := q.values.Get(name)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		q.addErr(name, "invalid boolean")
		return nil
	}
	return &b
}

func (q *queryParams) date(name string) time.Time {
	s := q.values.Get(name)
	if s == "" {
		return time.Time{}
	}
	t, err := core.ParseDate(s)
	if err != nil {
		q.addErr(name, "invalid date")
	}
	return t
}

// positiveInt returns `def` when `name` is missing.
func (q *queryParams) positiveInt(name string, def int) int {
	s := q.values.Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		q.addErr(name, "must be a positive integer")
		return def
	}
	return n
}

// err returns a validation error listing the invalid params.
func (q *queryParams) err() error {
	if len(q.errs) == 0 {
		return nil
	}
	return core.NewValidationError(nil, q.errs...)
}
