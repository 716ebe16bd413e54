package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/services/spreadsheet"
)

const defaultDueWithinDays = 30

var errUnknownKind = errors.New("kind must be one of [staff evaluations followups]")

func (cli *commandLine) export(kind, out string, withinDays int) error {
	ctx := context.Background()
	var buf bytes.Buffer

	switch kind {
	case "staff":
		staffs, err := cli.staffSvc.Query(ctx, nil, nil)
		if err != nil {
			return errors.Wrap(err, "querying staff")
		}
		if err := spreadsheet.WriteStaff(&buf, staffs); err != nil {
			return err
		}
	case "evaluations":
		evals, err := cli.evalSvc.Query(ctx, nil, nil)
		if err != nil {
			return errors.Wrap(err, "querying evaluations")
		}
		staffs, themes, err := cli.names(ctx)
		if err != nil {
			return err
		}
		if err := spreadsheet.WriteEvaluations(&buf, spreadsheet.NewEvaluationExports(evals, staffs, themes)); err != nil {
			return err
		}
	case "followups":
		due, err := cli.dueFollowUps(ctx, withinDays)
		if err != nil {
			return err
		}
		if err := spreadsheet.WriteFollowUps(&buf, due); err != nil {
			return err
		}
	default:
		return errUnknownKind
	}

	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "writing spreadsheet")
	}
	fmt.Fprintf(cli.out, "%s exported to %s\n", kind, out)
	return nil
}

func (cli *commandLine) names(ctx context.Context) ([]staff.Staff, []theme.Theme, error) {
	staffs, err := cli.staffSvc.Query(ctx, nil, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying staff")
	}
	themes, err := cli.themeSvc.Query(ctx, nil, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying themes")
	}
	return staffs, themes, nil
}

// dueFollowUps lists the follow-ups due within `withinDays` days from today.
func (cli *commandLine) dueFollowUps(ctx context.Context, withinDays int) ([]spreadsheet.FollowUpExport, error) {
	if withinDays < 0 {
		return nil, errors.New("within must be a positive number of days")
	}
	due, err := cli.evalSvc.FollowUpsDue(ctx, timeNow(), time.Duration(withinDays)*24*time.Hour)
	if err != nil {
		return nil, errors.Wrap(err, "listing due follow-ups")
	}
	staffs, themes, err := cli.names(ctx)
	if err != nil {
		return nil, err
	}
	return spreadsheet.NewFollowUpExports(due, staffs, themes), nil
}
