package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/report"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/storage/database/inmem"
	"github.com/trezcool/evalua/tests"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	svc              *report.Service
	amina, paul, zoe staff.Staff
	hygiene, aid     theme.Theme
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	staffRepo := inmemdb.NewStaffRepository(db)
	themeRepo := inmemdb.NewThemeRepository(db)
	evalRepo := inmemdb.NewEvaluationRepository(db)
	staffSvc := staff.NewService(staffRepo, nil)
	themeSvc := theme.NewService(themeRepo, evalRepo, nil)
	evalSvc := evaluation.NewService(evalRepo, staffSvc, themeSvc, nil, 6)

	f := fixture{
		svc:     report.NewService(staffSvc, themeSvc, evalSvc),
		amina:   testutil.CreateStaff(t, staffRepo, "Amina", "Diallo", "", "Kinshasa"),
		paul:    testutil.CreateStaff(t, staffRepo, "Paul", "Mbala", "", "Kinshasa"),
		zoe:     testutil.CreateStaff(t, staffRepo, "Zoe", "Abeli", "", "Goma"),
		hygiene: testutil.CreateTheme(t, themeRepo, "Hygiene"),
		aid:     testutil.CreateTheme(t, themeRepo, "Premiers secours"),
	}

	add := func(stf staff.Staff, thm theme.Theme, kind evaluation.Kind, completed bool, score int, day time.Time, initialID string) evaluation.Evaluation {
		e := evaluation.Evaluation{
			StaffID: stf.ID, ThemeID: thm.ID, Kind: kind, InitialID: initialID,
			TrainingDate: day, EvaluationDate: day,
		}
		if score > 0 {
			e.Scores = testutil.FullScores(kind, score)
		}
		if completed {
			e.Status = evaluation.StatusCompleted
		}
		return testutil.CreateEvaluation(t, evalRepo, e)
	}

	i1 := add(f.amina, f.hygiene, evaluation.KindInitial, true, 3, date(2024, 1, 10), "")
	fu := add(f.amina, f.hygiene, evaluation.KindFollowUp, true, 5, date(2024, 7, 20), i1.ID)
	fu.TrainingDate = i1.TrainingDate
	_, err := evalRepo.UpdateEvaluation(context.Background(), fu)
	require.NoError(t, err)
	add(f.paul, f.hygiene, evaluation.KindInitial, true, 4, date(2024, 2, 1), "")
	add(f.zoe, f.aid, evaluation.KindInitial, false, 0, date(2024, 8, 1), "")
	add(f.amina, f.aid, evaluation.KindInitial, true, 2, date(2024, 3, 1), "")
	add(f.paul, f.aid, evaluation.KindInitial, true, 4, date(2023, 1, 5), "")
	return f
}

func TestService_Dashboard(t *testing.T) {
	f := setup(t)
	d, err := f.svc.Dashboard(context.Background(), date(2024, 8, 15).Add(9*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, date(2024, 8, 15), d.AsOf)
	assert.Equal(t, 3, d.TotalStaff)
	assert.Equal(t, 2, d.TotalThemes)
	assert.Equal(t, 6, d.TotalEvaluations)
	assert.Equal(t, map[evaluation.Kind]int{evaluation.KindInitial: 5, evaluation.KindFollowUp: 1}, d.ByKind)
	assert.Equal(t, map[evaluation.Status]int{evaluation.StatusDraft: 1, evaluation.StatusCompleted: 5}, d.ByStatus)
	assert.Equal(t, 83.33, d.CompletionRate)
	assert.Equal(t, 3.25, d.InitialAverage)
	assert.Equal(t, 5.0, d.FollowUpAverage)
	assert.Equal(t, 3, d.PendingFollowUps)
	assert.Equal(t, 2, d.OverdueFollowUps)

	require.Len(t, d.Monthly, 12)
	assert.Equal(t, "2023-09", d.Monthly[0].Month)
	assert.Equal(t, "2024-08", d.Monthly[11].Month)
	assert.Equal(t, report.MonthCount{Month: "2024-01", Initial: 1}, d.Monthly[4])
	assert.Equal(t, report.MonthCount{Month: "2024-07", FollowUp: 1}, d.Monthly[10])
	assert.Equal(t, report.MonthCount{Month: "2024-08"}, d.Monthly[11], "drafts are not counted")

	assert.Equal(t, []report.EstablishmentCount{{Name: "Kinshasa", Staff: 2}, {Name: "Goma", Staff: 1}}, d.Establishments)
}

func TestService_ThemeStats(t *testing.T) {
	f := setup(t)
	stats, err := f.svc.ThemeStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)

	hygiene := stats[0]
	assert.Equal(t, f.hygiene.ID, hygiene.Theme.ID)
	assert.Equal(t, 3, hygiene.Evaluations)
	assert.Equal(t, 3, hygiene.Completed)
	assert.Equal(t, 2, hygiene.Initials)
	assert.Equal(t, 1, hygiene.FollowUps)
	assert.Equal(t, 3.5, hygiene.InitialAverage)
	assert.Equal(t, 5.0, hygiene.FollowUpAverage)
	assert.Equal(t, 2.0, hygiene.Progression)
	assert.Equal(t, 1, hygiene.Pairs)

	aid := stats[1]
	assert.Equal(t, f.aid.ID, aid.Theme.ID)
	assert.Equal(t, 3, aid.Evaluations)
	assert.Equal(t, 2, aid.Completed)
	assert.Equal(t, 3.0, aid.InitialAverage)
	assert.Zero(t, aid.FollowUpAverage)
	assert.Zero(t, aid.Pairs)
}

func TestService_StaffHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.svc.StaffHistory(ctx, f.amina.ID)
	require.NoError(t, err)
	assert.Equal(t, f.amina.ID, h.Staff.ID)
	require.Len(t, h.Evaluations, 3)
	assert.Equal(t, date(2024, 1, 10), h.Evaluations[0].EvaluationDate)
	assert.Equal(t, date(2024, 3, 1), h.Evaluations[1].EvaluationDate)
	assert.Equal(t, evaluation.KindFollowUp, h.Evaluations[2].Kind)

	require.Len(t, h.Themes, 2)
	assert.Equal(t, "Hygiene", h.Themes[0].ThemeName)
	assert.Equal(t, 2, h.Themes[0].Evaluations)
	assert.Equal(t, 3.0, h.Themes[0].InitialAverage)
	assert.Equal(t, 5.0, h.Themes[0].FollowUpAverage)
	require.NotNil(t, h.Themes[0].Progression)
	assert.Equal(t, 2.0, *h.Themes[0].Progression)
	assert.Equal(t, "Premiers secours", h.Themes[1].ThemeName)
	assert.Nil(t, h.Themes[1].Progression)

	_, err = f.svc.StaffHistory(ctx, "unknown")
	assert.True(t, errors.Is(err, staff.ErrNotFound))
}
