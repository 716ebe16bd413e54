package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/report"
	"github.com/trezcool/evalua/core/user"
	"github.com/trezcool/evalua/tests"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Test_reportApi(t *testing.T) {
	e := setup(t)

	viewer := testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleViewer}, true)
	token := e.getToken(t, viewer)

	amina := testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "", "Goma")
	testutil.CreateStaff(t, e.staffRepo, "Paul", "Mbala", "", "Goma")
	testutil.CreateStaff(t, e.staffRepo, "Jean", "Kabila", "", "Kinshasa")
	hygiene := testutil.CreateTheme(t, e.themeRepo, "Hygiene")

	initial := testutil.CreateEvaluation(t, e.evalRepo, evaluation.Evaluation{
		StaffID: amina.ID, ThemeID: hygiene.ID, Kind: evaluation.KindInitial, Status: evaluation.StatusCompleted,
		TrainingDate: day(2026, 1, 10), EvaluationDate: day(2026, 1, 10),
		Scores: testutil.FullScores(evaluation.KindInitial, 3),
	})
	testutil.CreateEvaluation(t, e.evalRepo, evaluation.Evaluation{
		StaffID: amina.ID, ThemeID: hygiene.ID, Kind: evaluation.KindFollowUp, Status: evaluation.StatusCompleted,
		InitialID: initial.ID, TrainingDate: day(2026, 1, 10), EvaluationDate: day(2026, 7, 12),
		Scores: testutil.FullScores(evaluation.KindFollowUp, 5),
	})
	testutil.CreateEvaluation(t, e.evalRepo, evaluation.Evaluation{
		StaffID: amina.ID, ThemeID: hygiene.ID, Kind: evaluation.KindInitial,
		TrainingDate: day(2026, 9, 1), EvaluationDate: day(2026, 9, 1),
	})

	t.Run("auth required", func(t *testing.T) {
		for _, path := range []string{"/v1/reports/dashboard", "/v1/reports/themes"} {
			rec := e.do(httpTest{method: http.MethodGet, path: path})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		}
	})

	t.Run("dashboard", func(t *testing.T) {
		var d report.Dashboard
		e.fetch(t, http.MethodGet, "/v1/reports/dashboard?as_of=2026-10-14", token, nil, http.StatusOK, &d)
		assert.Equal(t, 3, d.TotalStaff)
		assert.Equal(t, 1, d.TotalThemes)
		assert.Equal(t, 3, d.TotalEvaluations)
		assert.Equal(t, map[evaluation.Kind]int{evaluation.KindInitial: 2, evaluation.KindFollowUp: 1}, d.ByKind)
		assert.Equal(t, map[evaluation.Status]int{evaluation.StatusDraft: 1, evaluation.StatusCompleted: 2}, d.ByStatus)
		assert.Equal(t, 66.67, d.CompletionRate)
		assert.Equal(t, 3.0, d.InitialAverage)
		assert.Equal(t, 5.0, d.FollowUpAverage)
		assert.Zero(t, d.PendingFollowUps)
		assert.Zero(t, d.OverdueFollowUps)

		require.Len(t, d.Monthly, 12)
		assert.Equal(t, "2025-11", d.Monthly[0].Month)
		assert.Equal(t, "2026-10", d.Monthly[11].Month)
		assert.Equal(t, report.MonthCount{Month: "2026-01", Initial: 1}, d.Monthly[2])
		assert.Equal(t, report.MonthCount{Month: "2026-07", FollowUp: 1}, d.Monthly[8])

		assert.Equal(t, []report.EstablishmentCount{{Name: "Goma", Staff: 2}, {Name: "Kinshasa", Staff: 1}}, d.Establishments)

		rec := e.do(httpTest{method: http.MethodGet, path: "/v1/reports/dashboard?as_of=someday", token: token})
		checkFields(t, rec, "as_of")
	})

	t.Run("themes", func(t *testing.T) {
		var stats []report.ThemeStats
		e.fetch(t, http.MethodGet, "/v1/reports/themes", token, nil, http.StatusOK, &stats)
		require.Len(t, stats, 1)
		st := stats[0]
		assert.Equal(t, hygiene.ID, st.Theme.ID)
		assert.Equal(t, 3, st.Evaluations)
		assert.Equal(t, 2, st.Completed)
		assert.Equal(t, 1, st.Pairs)
		assert.Equal(t, 2.0, st.Progression)
	})
}
