package spreadsheet

import (
	"io"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	minColWidth = 8
	maxColWidth = 60
)

type (
	// EvaluationExport is an Evaluation with the names of its Staff and Theme.
	EvaluationExport struct {
		evaluation.Evaluation
		StaffName string `json:"staff_name"`
		ThemeName string `json:"theme_name"`
	}

	// FollowUpExport is a due follow-up with the names of its Staff and Theme.
	FollowUpExport struct {
		evaluation.DueFollowUp
		StaffName     string `json:"staff_name"`
		Establishment string `json:"establishment"`
		ThemeName     string `json:"theme_name"`
	}
)

// NewEvaluationExports resolves the names of the Staff and Themes of `evals`.
func NewEvaluationExports(evals []evaluation.Evaluation, staffs []staff.Staff, themes []theme.Theme) []EvaluationExport {
	stfNames, thmNames := names(staffs, themes)
	exports := make([]EvaluationExport, 0, len(evals))
	for _, e := range evals {
		exports = append(exports, EvaluationExport{Evaluation: e, StaffName: stfNames[e.StaffID].FullName(), ThemeName: thmNames[e.ThemeID]})
	}
	return exports
}

// NewFollowUpExports resolves the names of the Staff and Themes of `due`.
func NewFollowUpExports(due []evaluation.DueFollowUp, staffs []staff.Staff, themes []theme.Theme) []FollowUpExport {
	stfs, thmNames := names(staffs, themes)
	exports := make([]FollowUpExport, 0, len(due))
	for _, d := range due {
		s := stfs[d.Initial.StaffID]
		exports = append(exports, FollowUpExport{
			DueFollowUp:   d,
			StaffName:     s.FullName(),
			Establishment: s.Establishment,
			ThemeName:     thmNames[d.Initial.ThemeID],
		})
	}
	return exports
}

func names(staffs []staff.Staff, themes []theme.Theme) (map[string]staff.Staff, map[string]string) {
	stfs := make(map[string]staff.Staff, len(staffs))
	for _, s := range staffs {
		stfs[s.ID] = s
	}
	thmNames := make(map[string]string, len(themes))
	for _, t := range themes {
		thmNames[t.ID] = t.Name
	}
	return stfs, thmNames
}

// WriteStaff writes `staffs` as an xlsx workbook to `w`.
func WriteStaff(w io.Writer, staffs []staff.Staff) error {
	header := []string{"First name", "Last name", "Email", "Phone", "Position", "Establishment", "Created at"}
	rows := make([][]interface{}, 0, len(staffs))
	for _, s := range staffs {
		rows = append(rows, []interface{}{
			s.FirstName, s.LastName, s.Email, s.Phone, s.Position, s.Establishment, formatDate(s.CreatedAt),
		})
	}
	return write(w, "Staff", header, rows)
}

// WriteEvaluations writes `evals` as an xlsx workbook to `w`, with a column per criterion of both forms.
func WriteEvaluations(w io.Writer, evals []EvaluationExport) error {
	header := []string{"Staff", "Theme", "Kind", "Status", "Training date", "Evaluation date", "Trainer"}
	var criteria []string
	for _, form := range evaluation.Forms {
		for _, c := range form.Criteria {
			header = append(header, c.Label)
			criteria = append(criteria, c.Key)
		}
	}
	header = append(header, "Average", "Comments", "Recommendations", "Completed at")

	rows := make([][]interface{}, 0, len(evals))
	for _, e := range evals {
		row := []interface{}{
			e.StaffName, e.ThemeName, string(e.Kind), string(e.Status),
			formatDate(e.TrainingDate), formatDate(e.EvaluationDate), e.Trainer,
		}
		for _, key := range criteria {
			if score, ok := e.Scores[key]; ok {
				row = append(row, score)
			} else {
				row = append(row, "")
			}
		}
		completedAt := ""
		if e.CompletedAt != nil {
			completedAt = formatDate(*e.CompletedAt)
		}
		row = append(row, e.Average, e.Comments, e.Recommendations, completedAt)
		rows = append(rows, row)
	}
	return write(w, "Evaluations", header, rows)
}

// WriteFollowUps writes the due follow-ups as an xlsx workbook to `w`.
func WriteFollowUps(w io.Writer, due []FollowUpExport) error {
	header := []string{"Staff", "Establishment", "Theme", "Training date", "Initial average", "Due date", "Overdue"}
	rows := make([][]interface{}, 0, len(due))
	for _, d := range due {
		rows = append(rows, []interface{}{
			d.StaffName, d.Establishment, d.ThemeName, formatDate(d.Initial.TrainingDate), d.Initial.Average,
			formatDate(d.DueDate), yesNo(d.Overdue),
		})
	}
	return write(w, "Follow-ups", header, rows)
}

func write(w io.Writer, sheet string, header []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for i, row := range rows {
		for j, v := range row {
			if s, ok := v.(string); ok && j < len(widths) {
				if n := utf8.RuneCountInString(s); n > widths[j] {
					widths[j] = n
				}
			}
		}
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &row); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err = f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}
	err = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	if err != nil {
		return errors.Wrap(err, "freezing header")
	}
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err = f.SetColWidth(sheet, col, col, float64(clamp(width+2, minColWidth, maxColWidth))); err != nil {
			return errors.Wrap(err, "sizing columns")
		}
	}

	return errors.Wrap(f.Write(w), "writing xlsx")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(core.DateLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
