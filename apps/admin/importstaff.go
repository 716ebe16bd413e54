package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/services/spreadsheet"
)

func (cli *commandLine) importStaff(path string, updateExisting, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer func() { _ = f.Close() }()

	rows, err := spreadsheet.ReadRows(f, path)
	if err != nil {
		return err
	}
	records, mapping, err := spreadsheet.ParseStaff(rows)
	if err != nil {
		return err
	}

	res, err := cli.staffSvc.Import(context.Background(), records, staff.ImportOptions{
		UpdateExisting: updateExisting,
		DryRun:         dryRun,
		Validate:       cli.validate,
		Translator:     cli.translator,
	})
	if err != nil {
		return errors.Wrap(err, "importing staff")
	}

	fmt.Fprintf(cli.out, "header row %d:", mapping.HeaderRow)
	fields := make([]string, 0, len(mapping.Headers))
	for fld, header := range mapping.Headers {
		fields = append(fields, fmt.Sprintf(" %s=%q", fld, header))
	}
	sort.Strings(fields)
	fmt.Fprintln(cli.out, strings.Join(fields, ""))

	if res.DryRun {
		fmt.Fprint(cli.out, "[dry run] ")
	}
	fmt.Fprintf(cli.out, "%d rows: %d created, %d updated, %d skipped, %d errors\n",
		res.Total, res.Created, res.Updated, res.Skipped, len(res.Errors))
	for _, rowErr := range res.Errors {
		msgs := make([]string, 0, len(rowErr.Fields))
		for fld, msg := range rowErr.Fields {
			msgs = append(msgs, fld+": "+msg)
		}
		sort.Strings(msgs)
		fmt.Fprintf(cli.out, "  row %d: %s\n", rowErr.Row, strings.Join(msgs, "; "))
	}
	return nil
}
