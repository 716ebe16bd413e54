package spreadsheet_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/services/spreadsheet"
)

func xlsxFile(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		row := row
		start, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, start, &row))
	}
	buf := new(bytes.Buffer)
	require.NoError(t, f.Write(buf))
	return buf
}

func TestMapColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   map[spreadsheet.Field]int
	}{
		{
			name:   "exact french headers",
			header: []string{"N°", "Nom", "Prénom", "E-mail", "Téléphone", "Fonction", "Établissement"},
			want: map[spreadsheet.Field]int{
				spreadsheet.FieldLastName: 1, spreadsheet.FieldFirstName: 2, spreadsheet.FieldEmail: 3,
				spreadsheet.FieldPhone: 4, spreadsheet.FieldPosition: 5, spreadsheet.FieldEstablishment: 6,
			},
		},
		{
			name:   "contained aliases",
			header: []string{"Prénom(s)", "NOM DE FAMILLE ", "Adresse e-mail pro", "Poste occupé"},
			want: map[spreadsheet.Field]int{
				spreadsheet.FieldFirstName: 0, spreadsheet.FieldLastName: 1, spreadsheet.FieldEmail: 2, spreadsheet.FieldPosition: 3,
			},
		},
		{
			name:   "misspelled headers",
			header: []string{"Full Name", "Etablisement", "Positon"},
			want: map[spreadsheet.Field]int{
				spreadsheet.FieldFullName: 0, spreadsheet.FieldEstablishment: 1, spreadsheet.FieldPosition: 2,
			},
		},
		{
			name:   "a field maps once",
			header: []string{"Email", "Mail", "Remarks"},
			want:   map[spreadsheet.Field]int{spreadsheet.FieldEmail: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spreadsheet.MapColumns(tt.header))
		})
	}
}

func TestParseStaff(t *testing.T) {
	t.Run("xlsx with a title above the header", func(t *testing.T) {
		buf := xlsxFile(t, [][]interface{}{
			{"Liste du personnel 2024"},
			{},
			{"Nom", "Prénom", "Email", "Service", "Observations"},
			{"Diallo", "Amina", "amina@test.cd", "Kinshasa", "ok"},
			{},
			{"Mbala", "Paul", "", "Goma"},
		})
		rows, err := spreadsheet.ReadRows(buf, "staff.xlsx")
		require.NoError(t, err)

		records, mapping, err := spreadsheet.ParseStaff(rows)
		require.NoError(t, err)
		assert.Equal(t, 3, mapping.HeaderRow)
		assert.Equal(t, "Service", mapping.Headers[spreadsheet.FieldEstablishment])
		assert.Equal(t, []string{"Observations"}, mapping.Unmapped)
		assert.False(t, mapping.SplitName)
		assert.Equal(t, []staff.ImportRecord{
			{Row: 4, Data: staff.NewStaff{FirstName: "Amina", LastName: "Diallo", Email: "amina@test.cd", Establishment: "Kinshasa"}},
			{Row: 6, Data: staff.NewStaff{FirstName: "Paul", LastName: "Mbala", Establishment: "Goma"}},
		}, records)
	})

	t.Run("csv with a full name column", func(t *testing.T) {
		content := "\xef\xbb\xbfNom complet;Fonction;Téléphone\nJean Paul Mbala;Infirmier;+243 81 000 0000\nZoe;;\n"
		rows, err := spreadsheet.ReadRows(strings.NewReader(content), "STAFF.CSV")
		require.NoError(t, err)

		records, mapping, err := spreadsheet.ParseStaff(rows)
		require.NoError(t, err)
		assert.True(t, mapping.SplitName)
		require.Len(t, records, 2)
		assert.Equal(t, staff.NewStaff{FirstName: "Jean", LastName: "Paul Mbala", Position: "Infirmier", Phone: "+243 81 000 0000"}, records[0].Data)
		assert.Equal(t, staff.NewStaff{FirstName: "Zoe"}, records[1].Data)
		assert.Equal(t, 3, records[1].Row)
	})

	t.Run("no header", func(t *testing.T) {
		rows := [][]string{{"a", "b"}, {"1", "2"}}
		_, _, err := spreadsheet.ParseStaff(rows)
		assert.True(t, errors.Is(err, spreadsheet.ErrNoHeader))
	})
}

func TestReadRows_Delimiters(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "comma", content: "Prénom,Nom,Email\nAmina,Diallo,amina@test.cd\n"},
		{name: "semicolon", content: "Prénom;Nom;Email\nAmina;Diallo;amina@test.cd\n"},
		{name: "tab", content: "Prénom\tNom\tEmail\nAmina\tDiallo\tamina@test.cd\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := spreadsheet.ReadRows(strings.NewReader(tt.content), "staff.csv")
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, []string{"Amina", "Diallo", "amina@test.cd"}, rows[1])
		})
	}
}

func TestReadRows_Errors(t *testing.T) {
	_, err := spreadsheet.ReadRows(strings.NewReader("x"), "staff.pdf")
	assert.True(t, errors.Is(err, spreadsheet.ErrUnsupportedFormat))

	_, err = spreadsheet.ReadRows(strings.NewReader("\n\n"), "empty.csv")
	assert.True(t, errors.Is(err, spreadsheet.ErrEmptySheet))

	_, err = spreadsheet.ReadRows(strings.NewReader("not a zip"), "broken.xlsx")
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	amina := staff.Staff{ID: "s1", FirstName: "Amina", LastName: "Diallo", Email: "amina@test.cd", Establishment: "Kinshasa", CreatedAt: created}
	hygiene := theme.Theme{ID: "t1", Name: "Hygiène"}
	initial := evaluation.Evaluation{
		ID: "e1", StaffID: "s1", ThemeID: "t1", Kind: evaluation.KindInitial, Status: evaluation.StatusCompleted,
		TrainingDate: created, EvaluationDate: created, Scores: evaluation.Scores{"pedagogy": 4}, Average: 4,
	}

	readBack := func(t *testing.T, buf *bytes.Buffer, sheet string) [][]string {
		f, err := excelize.OpenReader(buf)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{sheet}, f.GetSheetList())
		rows, err := f.GetRows(sheet)
		require.NoError(t, err)
		return rows
	}

	t.Run("staff", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, spreadsheet.WriteStaff(buf, []staff.Staff{amina}))
		rows := readBack(t, buf, "Staff")
		require.Len(t, rows, 2)
		assert.Equal(t, "First name", rows[0][0])
		assert.Equal(t, []string{"Amina", "Diallo", "amina@test.cd", "", "", "Kinshasa", "2024-03-01"}, rows[1])
	})

	t.Run("evaluations", func(t *testing.T) {
		exports := spreadsheet.NewEvaluationExports([]evaluation.Evaluation{initial}, []staff.Staff{amina}, []theme.Theme{hygiene})
		buf := new(bytes.Buffer)
		require.NoError(t, spreadsheet.WriteEvaluations(buf, exports))
		rows := readBack(t, buf, "Evaluations")
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"Amina Diallo", "Hygiène", "initial", "completed"}, rows[1][:4])

		col := -1
		for i, h := range rows[0] {
			if h == "Teaching methods and materials" {
				col = i
			}
		}
		require.NotEqual(t, -1, col)
		assert.Equal(t, "4", rows[1][col])
	})

	t.Run("follow-ups", func(t *testing.T) {
		due := []evaluation.DueFollowUp{{Initial: initial, DueDate: created.AddDate(0, 6, 0), Overdue: true}}
		exports := spreadsheet.NewFollowUpExports(due, []staff.Staff{amina}, []theme.Theme{hygiene})
		buf := new(bytes.Buffer)
		require.NoError(t, spreadsheet.WriteFollowUps(buf, exports))
		rows := readBack(t, buf, "Follow-ups")
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"Amina Diallo", "Kinshasa", "Hygiène", "2024-03-01", "4", "2024-09-01", "yes", "no"}, rows[1])
	})
}
