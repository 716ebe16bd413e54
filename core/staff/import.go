package staff

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
)

type (
	// ImportRecord is a Staff read from row `Row` (1-based) of a spreadsheet.
	ImportRecord struct {
		Row  int
		Data NewStaff
	}

	ImportOptions struct {
		UpdateExisting bool
		DryRun         bool

		Validate   *validator.Validate
		Translator ut.Translator
		Runner     core.OperationRunner // defaults to core.DirectRunner
	}

	RowError struct {
		Row    int               `json:"row"`
		Fields map[string]string `json:"fields"`
	}

	ImportResult struct {
		DryRun  bool       `json:"dry_run"`
		Total   int        `json:"total"`
		Created int        `json:"created"`
		Updated int        `json:"updated"`
		Skipped int        `json:"skipped"`
		Errors  []RowError `json:"errors"`
	}
)

// importIndex finds existing Staff by email, then by full name.
type importIndex struct {
	byEmail map[string]Staff
	byName  map[string]Staff
}

func nameKey(first, last string) string {
	return core.NormalizeText(first + " " + last)
}

func newImportIndex(all []Staff) *importIndex {
	idx := &importIndex{
		byEmail: make(map[string]Staff, len(all)),
		byName:  make(map[string]Staff, len(all)),
	}
	for _, s := range all {
		idx.add(s)
	}
	return idx
}

func (idx *importIndex) add(s Staff) {
	if s.Email != "" {
		idx.byEmail[s.Email] = s
	}
	idx.byName[nameKey(s.FirstName, s.LastName)] = s
}

func (idx *importIndex) remove(s Staff) {
	if s.Email != "" {
		delete(idx.byEmail, s.Email)
	}
	delete(idx.byName, nameKey(s.FirstName, s.LastName))
}

func (idx *importIndex) find(ns NewStaff) (Staff, bool) {
	if ns.Email != "" {
		if s, ok := idx.byEmail[ns.Email]; ok {
			return s, true
		}
	}
	s, ok := idx.byName[nameKey(ns.FirstName, ns.LastName)]
	return s, ok
}

// merge overwrites the fields of `orig` with the non-empty fields of `ns`.
func merge(orig Staff, ns NewStaff) Staff {
	s := orig
	s.FirstName = ns.FirstName
	s.LastName = ns.LastName
	if ns.Email != "" {
		s.Email = ns.Email
	}
	if ns.Phone != "" {
		s.Phone = ns.Phone
	}
	if ns.Position != "" {
		s.Position = ns.Position
	}
	if ns.Establishment != "" {
		s.Establishment = ns.Establishment
	}
	return s
}

// Import creates (or updates, when opts.UpdateExisting) the Staff of `records`.
// Invalid rows are reported in ImportResult.Errors and do not stop the import.
func (svc *Service) Import(ctx context.Context, records []ImportRecord, opts ImportOptions) (ImportResult, error) {
	res := ImportResult{DryRun: opts.DryRun, Total: len(records), Errors: []RowError{}}
	runner := opts.Runner
	if runner == nil {
		runner = core.DirectRunner
	}

	all, err := svc.repo.QueryStaff(ctx, nil, nil)
	if err != nil {
		return res, errors.Wrap(err, "querying staff")
	}
	idx := newImportIndex(all)

	rowErr := func(row int, err error) {
		fields, ok := core.FieldErrors(err, opts.Translator)
		if !ok {
			fields = map[string]string{"row": err.Error()}
		}
		res.Errors = append(res.Errors, RowError{Row: row, Fields: fields})
	}

	var written []string
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ns := rec.Data
		ns.Clean()
		if err := opts.Validate.Struct(ns); err != nil {
			rowErr(rec.Row, err)
			continue
		}

		now := time.Now().UTC()
		orig, exists := idx.find(ns)
		if exists {
			if !opts.UpdateExisting {
				res.Skipped++
				continue
			}
			s := merge(orig, ns)
			s.UpdatedAt = now
			if other, taken := idx.byEmail[s.Email]; s.Email != "" && taken && other.ID != orig.ID {
				rowErr(rec.Row, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()}))
				continue
			}
			if !opts.DryRun {
				err := runner.Do(ctx, core.PriorityLow, "staff.import.update", func(ctx context.Context) error {
					var err error
					s, err = svc.repo.UpdateStaff(ctx, s)
					return err
				})
				if err != nil {
					if ctx.Err() != nil {
						return res, ctx.Err()
					}
					rowErr(rec.Row, err)
					continue
				}
				written = append(written, s.ID)
			}
			idx.remove(orig)
			idx.add(s)
			res.Updated++
			continue
		}

		s := Staff{
			FirstName:     ns.FirstName,
			LastName:      ns.LastName,
			Email:         ns.Email,
			Phone:         ns.Phone,
			Position:      ns.Position,
			Establishment: ns.Establishment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if !opts.DryRun {
			err := runner.Do(ctx, core.PriorityLow, "staff.import.create", func(ctx context.Context) error {
				var err error
				s, err = svc.repo.CreateStaff(ctx, s)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				rowErr(rec.Row, err)
				continue
			}
			written = append(written, s.ID)
		}
		idx.add(s)
		res.Created++
	}

	if len(written) > 0 {
		svc.bus.Publish(core.NewEvent(entity, "imported", written...))
	}
	return res, nil
}
