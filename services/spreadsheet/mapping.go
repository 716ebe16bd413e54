package spreadsheet

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/staff"
)

// Field is a staff attribute a column can be mapped to.
type Field string

const (
	FieldFirstName     Field = "first_name"
	FieldLastName      Field = "last_name"
	FieldFullName      Field = "full_name"
	FieldEmail         Field = "email"
	FieldPhone         Field = "phone"
	FieldPosition      Field = "position"
	FieldEstablishment Field = "establishment"
)

const (
	headerScanRows  = 10
	minHeaderFields = 2
	minSimilarity   = 0.8
)

var ErrNoHeader = errors.New("no header row found: at least 2 known columns are expected in the first 10 rows")

type fieldAliases struct {
	field   Field
	aliases []string // normalized
}

// staffAliases lists the french and english headers of each field.
var staffAliases = []fieldAliases{
	{FieldFirstName, []string{"prenom", "prenoms", "first name", "firstname", "given name", "forename"}},
	{FieldLastName, []string{"nom", "nom de famille", "last name", "lastname", "surname", "family name"}},
	{FieldFullName, []string{
		"nom complet", "nom et prenom", "nom et prenoms", "nom prenom", "nom prenoms", "noms et prenoms",
		"full name", "fullname", "name", "agent", "employe", "collaborateur",
	}},
	{FieldEmail, []string{"email", "e mail", "mail", "courriel", "adresse email", "adresse mail", "email address"}},
	{FieldPhone, []string{"telephone", "tel", "phone", "mobile", "portable", "numero de telephone", "phone number", "contact"}},
	{FieldPosition, []string{"poste", "fonction", "position", "job title", "titre", "emploi", "role", "qualification"}},
	{FieldEstablishment, []string{
		"etablissement", "structure", "site", "service", "establishment", "formation sanitaire",
		"hopital", "centre", "departement", "department", "facility", "workplace", "lieu de travail",
	}},
}

// Mapping reports how the columns of a sheet were mapped.
type Mapping struct {
	HeaderRow int              `json:"header_row"` // 1-based
	Columns   map[Field]int    `json:"columns"`    // 0-based column index
	Headers   map[Field]string `json:"headers"`
	Unmapped  []string         `json:"unmapped"`
	SplitName bool             `json:"split_name"` // first/last names taken from the full name column
}

func (m Mapping) has(f Field) bool {
	_, ok := m.Columns[f]
	return ok
}

// MapColumns maps the cells of `header` to fields.
// Columns are matched on exact aliases, then on aliases they contain, then on similar aliases;
// a column maps to one field at most and earlier passes win.
func MapColumns(header []string) map[Field]int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = core.NormalizeText(h)
	}

	cols := make(map[Field]int)
	taken := make(map[int]bool)
	passes := []func(h, alias string) float64{exactMatch, containsMatch, similarMatch}
	for _, match := range passes {
		for i, h := range normalized {
			if h == "" || taken[i] {
				continue
			}
			var (
				best      Field
				bestScore float64
			)
			for _, fa := range staffAliases {
				if _, ok := cols[fa.field]; ok {
					continue
				}
				for _, alias := range fa.aliases {
					if score := match(h, alias); score > bestScore {
						best, bestScore = fa.field, score
					}
				}
			}
			if bestScore > 0 {
				cols[best] = i
				taken[i] = true
			}
		}
	}
	return cols
}

func exactMatch(h, alias string) float64 {
	if h == alias {
		return 1
	}
	return 0
}

// containsMatch prefers the longest alias found as whole words in `h`.
func containsMatch(h, alias string) float64 {
	if strings.Contains(" "+h+" ", " "+alias+" ") {
		return float64(len(alias))
	}
	return 0
}

func similarMatch(h, alias string) float64 {
	m := difflib.NewMatcher(strings.Split(h, ""), strings.Split(alias, ""))
	if ratio := m.Ratio(); ratio >= minSimilarity {
		return ratio
	}
	return 0
}

// detectHeader returns the index of the first row (among the first 10) that maps at least 2 fields.
func detectHeader(rows [][]string) (int, map[Field]int, error) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if cols := MapColumns(rows[i]); len(cols) >= minHeaderFields {
			return i, cols, nil
		}
	}
	return 0, nil, ErrNoHeader
}

// ParseStaff detects the header of `rows` and returns a record per non-empty row below it.
func ParseStaff(rows [][]string) ([]staff.ImportRecord, Mapping, error) {
	rows = trimRows(rows)
	hIdx, cols, err := detectHeader(rows)
	if err != nil {
		return nil, Mapping{}, err
	}

	mapping := Mapping{HeaderRow: hIdx + 1, Columns: cols, Headers: make(map[Field]string, len(cols))}
	mapped := make(map[int]bool, len(cols))
	for f, i := range cols {
		mapping.Headers[f] = cell(rows[hIdx], i)
		mapped[i] = true
	}
	for i, h := range rows[hIdx] {
		if h = strings.TrimSpace(h); h != "" && !mapped[i] {
			mapping.Unmapped = append(mapping.Unmapped, h)
		}
	}
	sort.Strings(mapping.Unmapped)
	mapping.SplitName = mapping.has(FieldFullName) && !(mapping.has(FieldFirstName) && mapping.has(FieldLastName))

	get := func(row []string, f Field) string {
		if i, ok := cols[f]; ok {
			return cell(row, i)
		}
		return ""
	}

	records := make([]staff.ImportRecord, 0, len(rows)-hIdx-1)
	for i := hIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}
		ns := staff.NewStaff{
			FirstName:     get(row, FieldFirstName),
			LastName:      get(row, FieldLastName),
			Email:         get(row, FieldEmail),
			Phone:         get(row, FieldPhone),
			Position:      get(row, FieldPosition),
			Establishment: get(row, FieldEstablishment),
		}
		if mapping.SplitName {
			first, last := splitFullName(get(row, FieldFullName))
			if ns.FirstName == "" {
				ns.FirstName = first
			}
			if ns.LastName == "" {
				ns.LastName = last
			}
		}
		records = append(records, staff.ImportRecord{Row: i + 1, Data: ns})
	}
	return records, mapping, nil
}

// splitFullName splits "Jean Paul Mbala" into "Jean" and "Paul Mbala".
func splitFullName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
