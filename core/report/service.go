// Package report aggregates staff, themes and evaluations into dashboards.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
)

const (
	// DueWithin is the horizon of the pending follow-ups of the Dashboard.
	DueWithin = 30 * 24 * time.Hour

	dashboardMonths = 12
	monthLayout     = "2006-01"
)

type (
	StaffQuerier interface {
		Query(ctx context.Context, filter *staff.QueryFilter, ordering []core.DBOrdering) ([]staff.Staff, error)
		GetByID(ctx context.Context, id string) (staff.Staff, error)
	}

	ThemeQuerier interface {
		Query(ctx context.Context, filter *theme.QueryFilter, ordering []core.DBOrdering) ([]theme.Theme, error)
	}

	EvaluationQuerier interface {
		Query(ctx context.Context, filter *evaluation.QueryFilter, ordering []core.DBOrdering) ([]evaluation.Evaluation, error)
		FollowUpsDue(ctx context.Context, asOf time.Time, within time.Duration) ([]evaluation.DueFollowUp, error)
	}

	Service struct {
		staff  StaffQuerier
		themes ThemeQuerier
		evals  EvaluationQuerier
	}
)

func NewService(staffs StaffQuerier, themes ThemeQuerier, evals EvaluationQuerier) *Service {
	return &Service{staff: staffs, themes: themes, evals: evals}
}

type (
	MonthCount struct {
		Month    string `json:"month"` // YYYY-MM
		Initial  int    `json:"initial"`
		FollowUp int    `json:"follow_up"`
	}

	EstablishmentCount struct {
		Name  string `json:"name"`
		Staff int    `json:"staff"`
	}

	Dashboard struct {
		AsOf             time.Time                 `json:"as_of"`
		TotalStaff       int                       `json:"total_staff"`
		TotalThemes      int                       `json:"total_themes"`
		TotalEvaluations int                       `json:"total_evaluations"`
		ByKind           map[evaluation.Kind]int   `json:"by_kind"`
		ByStatus         map[evaluation.Status]int `json:"by_status"`
		CompletionRate   float64                   `json:"completion_rate"` // % of completed evaluations
		InitialAverage   float64                   `json:"initial_average"`
		FollowUpAverage  float64                   `json:"follow_up_average"`
		PendingFollowUps int                       `json:"pending_follow_ups"` // due within DueWithin, overdue included
		OverdueFollowUps int                       `json:"overdue_follow_ups"`
		Monthly          []MonthCount              `json:"monthly"`
		Establishments   []EstablishmentCount      `json:"establishments"`
	}
)

// Dashboard summarizes the activity as of `asOf`.
func (svc *Service) Dashboard(ctx context.Context, asOf time.Time) (Dashboard, error) {
	staffs, err := svc.staff.Query(ctx, nil, nil)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "querying staff")
	}
	themes, err := svc.themes.Query(ctx, nil, nil)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "querying themes")
	}
	evals, err := svc.evals.Query(ctx, nil, nil)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "querying evaluations")
	}
	due, err := svc.evals.FollowUpsDue(ctx, asOf, DueWithin)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "listing due follow-ups")
	}

	today := core.TruncateDay(asOf)
	d := Dashboard{
		AsOf:             today,
		TotalStaff:       len(staffs),
		TotalThemes:      len(themes),
		TotalEvaluations: len(evals),
		ByKind:           map[evaluation.Kind]int{evaluation.KindInitial: 0, evaluation.KindFollowUp: 0},
		ByStatus:         map[evaluation.Status]int{evaluation.StatusDraft: 0, evaluation.StatusCompleted: 0},
		PendingFollowUps: len(due),
	}
	for _, entry := range due {
		if entry.Overdue {
			d.OverdueFollowUps++
		}
	}

	// last 12 months, oldest first
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1-dashboardMonths, 0)
	d.Monthly = make([]MonthCount, dashboardMonths)
	months := make(map[string]int, dashboardMonths)
	for i := range d.Monthly {
		m := first.AddDate(0, i, 0).Format(monthLayout)
		d.Monthly[i].Month = m
		months[m] = i
	}

	var initials, followUps averager
	for _, e := range evals {
		d.ByKind[e.Kind]++
		d.ByStatus[e.Status]++
		if !e.IsCompleted() {
			continue
		}
		i, inRange := months[e.EvaluationDate.Format(monthLayout)]
		switch e.Kind {
		case evaluation.KindInitial:
			initials.add(e.Average)
			if inRange {
				d.Monthly[i].Initial++
			}
		case evaluation.KindFollowUp:
			followUps.add(e.Average)
			if inRange {
				d.Monthly[i].FollowUp++
			}
		}
	}
	d.InitialAverage = initials.mean()
	d.FollowUpAverage = followUps.mean()
	if len(evals) > 0 {
		d.CompletionRate = core.Round2(float64(d.ByStatus[evaluation.StatusCompleted]) * 100 / float64(len(evals)))
	}

	byEstablishment := make(map[string]int)
	for _, s := range staffs {
		byEstablishment[s.Establishment]++
	}
	d.Establishments = make([]EstablishmentCount, 0, len(byEstablishment))
	for name, cnt := range byEstablishment {
		d.Establishments = append(d.Establishments, EstablishmentCount{Name: name, Staff: cnt})
	}
	sort.Slice(d.Establishments, func(i, j int) bool {
		a, b := d.Establishments[i], d.Establishments[j]
		if a.Staff != b.Staff {
			return a.Staff > b.Staff
		}
		return a.Name < b.Name
	})
	return d, nil
}

type ThemeStats struct {
	Theme           theme.Theme `json:"theme"`
	Evaluations     int         `json:"evaluations"`
	Completed       int         `json:"completed"`
	Initials        int         `json:"initials"`
	FollowUps       int         `json:"follow_ups"`
	InitialAverage  float64     `json:"initial_average"`
	FollowUpAverage float64     `json:"follow_up_average"`
	// Progression is the mean of (follow-up average - initial average) over the completed pairs.
	Progression float64 `json:"progression"`
	Pairs       int     `json:"pairs"`
}

// ThemeStats returns the statistics of every Theme, by name.
func (svc *Service) ThemeStats(ctx context.Context) ([]ThemeStats, error) {
	themes, err := svc.themes.Query(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying themes")
	}
	evals, err := svc.evals.Query(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying evaluations")
	}

	byTheme := make(map[string][]evaluation.Evaluation, len(themes))
	for _, e := range evals {
		byTheme[e.ThemeID] = append(byTheme[e.ThemeID], e)
	}

	stats := make([]ThemeStats, 0, len(themes))
	for _, t := range themes {
		st := ThemeStats{Theme: t}
		s := summarize(byTheme[t.ID])
		st.Evaluations = len(byTheme[t.ID])
		st.Completed, st.Initials, st.FollowUps = s.completed, s.initialCount, s.followUpCount
		st.InitialAverage, st.FollowUpAverage = s.initials.mean(), s.followUps.mean()
		st.Progression, st.Pairs = s.progression.mean(), s.progression.n
		stats = append(stats, st)
	}
	return stats, nil
}

type (
	StaffThemeSummary struct {
		ThemeID         string   `json:"theme_id"`
		ThemeName       string   `json:"theme_name"`
		Evaluations     int      `json:"evaluations"`
		InitialAverage  float64  `json:"initial_average"`
		FollowUpAverage float64  `json:"follow_up_average"`
		Progression     *float64 `json:"progression"` // nil without a completed pair
	}

	StaffHistory struct {
		Staff       staff.Staff             `json:"staff"`
		Evaluations []evaluation.Evaluation `json:"evaluations"` // oldest first
		Themes      []StaffThemeSummary     `json:"themes"`
	}
)

// StaffHistory returns the evaluations of the Staff `staffID` and their averages per Theme.
func (svc *Service) StaffHistory(ctx context.Context, staffID string) (StaffHistory, error) {
	s, err := svc.staff.GetByID(ctx, staffID)
	if err != nil {
		return StaffHistory{}, err
	}
	evals, err := svc.evals.Query(
		ctx,
		&evaluation.QueryFilter{StaffID: s.ID},
		[]core.DBOrdering{{Field: "evaluation_date", Ascending: true}, {Field: "created_at", Ascending: true}},
	)
	if err != nil {
		return StaffHistory{}, errors.Wrap(err, "querying evaluations")
	}
	themes, err := svc.themes.Query(ctx, nil, nil)
	if err != nil {
		return StaffHistory{}, errors.Wrap(err, "querying themes")
	}
	themeNames := make(map[string]string, len(themes))
	for _, t := range themes {
		themeNames[t.ID] = t.Name
	}

	var themeOrder []string
	byTheme := make(map[string][]evaluation.Evaluation)
	for _, e := range evals {
		if _, ok := byTheme[e.ThemeID]; !ok {
			themeOrder = append(themeOrder, e.ThemeID)
		}
		byTheme[e.ThemeID] = append(byTheme[e.ThemeID], e)
	}

	h := StaffHistory{Staff: s, Evaluations: evals, Themes: make([]StaffThemeSummary, 0, len(themeOrder))}
	for _, id := range themeOrder {
		sm := summarize(byTheme[id])
		ts := StaffThemeSummary{
			ThemeID:         id,
			ThemeName:       themeNames[id],
			Evaluations:     len(byTheme[id]),
			InitialAverage:  sm.initials.mean(),
			FollowUpAverage: sm.followUps.mean(),
		}
		if sm.progression.n > 0 {
			p := sm.progression.mean()
			ts.Progression = &p
		}
		h.Themes = append(h.Themes, ts)
	}
	return h, nil
}

type averager struct {
	sum float64
	n   int
}

func (a *averager) add(v float64) {
	a.sum += v
	a.n++
}

func (a averager) mean() float64 {
	if a.n == 0 {
		return 0
	}
	return core.Round2(a.sum / float64(a.n))
}

type summary struct {
	completed, initialCount, followUpCount int
	initials, followUps, progression       averager
}

// summarize averages the completed evaluations of `evals`; progression pairs a completed follow-up with its initial.
func summarize(evals []evaluation.Evaluation) summary {
	var s summary
	completedInitials := make(map[string]evaluation.Evaluation)
	for _, e := range evals {
		switch e.Kind {
		case evaluation.KindInitial:
			s.initialCount++
		case evaluation.KindFollowUp:
			s.followUpCount++
		}
		if !e.IsCompleted() {
			continue
		}
		s.completed++
		if e.Kind == evaluation.KindInitial {
			s.initials.add(e.Average)
			completedInitials[e.ID] = e
		} else {
			s.followUps.add(e.Average)
		}
	}
	for _, e := range evals {
		if e.Kind != evaluation.KindFollowUp || !e.IsCompleted() {
			continue
		}
		if initial, ok := completedInitials[e.InitialID]; ok {
			s.progression.add(e.Average - initial.Average)
		}
	}
	return s
}
