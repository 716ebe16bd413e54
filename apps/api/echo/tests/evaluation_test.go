package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/user"
	"github.com/trezcool/evalua/services/spreadsheet"
	"github.com/trezcool/evalua/tests"
)

func Test_evaluationApi(t *testing.T) {
	e := setup(t)

	evaluator := testutil.CreateUser(t, e.usrRepo, "Awa", "awa", "awa@test.cd", "", []string{user.RoleEvaluator}, true)
	viewer := testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleViewer}, true)
	evalToken, viewerToken := e.getToken(t, evaluator), e.getToken(t, viewer)

	amina := testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "", "Goma")
	hygiene := testutil.CreateTheme(t, e.themeRepo, "Hygiene")

	newInitial := evaluation.NewEvaluation{
		Kind:           evaluation.KindInitial,
		StaffID:        amina.ID,
		ThemeID:        hygiene.ID,
		TrainingDate:   "2026-01-10",
		EvaluationDate: "2026-01-10",
		Trainer:        " Dr Kasongo ",
		Scores:         testutil.FullScores(evaluation.KindInitial, 4),
		Complete:       true,
	}

	var initial evaluation.Evaluation
	t.Run("create initial", func(t *testing.T) {
		outOfRange := newInitial
		outOfRange.Scores = evaluation.Scores{"pedagogy": 9, "bogus": 3}
		beforeTraining := newInitial
		beforeTraining.EvaluationDate = "2026-01-09"

		tests := []httpTest{
			{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{
				name: "Editor required", token: viewerToken, body: marchallObj(t, newInitial),
				wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
			},
			{
				name: "kind required", token: evalToken, body: []byte("{}"), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"kind": "this field is required"}),
			},
			{
				name: "references required", token: evalToken, body: []byte(`{"kind": "initial"}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{
					"staff_id":      "this field is required",
					"theme_id":      "this field is required",
					"training_date": "this field is required",
				}),
			},
			{
				name: "unknown references", token: evalToken, wantCode: http.StatusBadRequest,
				body: []byte(`{"kind": "initial", "staff_id": "x", "theme_id": "y", "training_date": "10/01/2026"}`),
				wantData: marchallObj(t, map[string]string{
					"staff_id": "staff not found",
					"theme_id": "theme not found",
				}),
			},
			{
				name: "invalid scores", token: evalToken, body: marchallObj(t, outOfRange), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"scores": `pedagogy must be between 1 and 5; unknown criterion "bogus"`}),
			},
			{
				name: "evaluated before training", token: evalToken, body: marchallObj(t, beforeTraining), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"evaluation_date": "cannot be before the training date"}),
			},
			{name: "created", token: evalToken, body: marchallObj(t, newInitial), wantCode: http.StatusCreated},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			tt.path = "/v1/evaluations"

			t.Run(tt.name, func(t *testing.T) {
				rec := e.do(tt)
				checkCodeAndData(t, tt, rec)
				if tt.wantCode == http.StatusCreated {
					require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initial))
				}
			})
		}
	})
	require.NotEmpty(t, initial.ID)
	assert.Equal(t, evaluation.StatusCompleted, initial.Status)
	assert.Equal(t, "Dr Kasongo", initial.Trainer)
	assert.Equal(t, 4.0, initial.Average)
	assert.NotNil(t, initial.CompletedAt)

	t.Run("follow-ups due", func(t *testing.T) {
		var due []spreadsheet.FollowUpExport
		e.fetch(t, http.MethodGet, "/v1/evaluations/followups-due?as_of=2026-05-01", viewerToken, nil, http.StatusOK, &due)
		assert.Empty(t, due)

		e.fetch(t, http.MethodGet, "/v1/evaluations/followups-due?as_of=2026-07-01", viewerToken, nil, http.StatusOK, &due)
		require.Len(t, due, 1)
		assert.Equal(t, initial.ID, due[0].Initial.ID)
		assert.Equal(t, time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), due[0].DueDate.UTC())
		assert.False(t, due[0].Overdue)
		assert.Equal(t, "Amina Diallo", due[0].StaffName)
		assert.Equal(t, "Hygiene", due[0].ThemeName)
		assert.Equal(t, "Goma", due[0].Establishment)

		e.fetch(t, http.MethodGet, "/v1/evaluations/followups-due?as_of=2026-08-01&within=1", viewerToken, nil, http.StatusOK, &due)
		require.Len(t, due, 1)
		assert.True(t, due[0].Overdue)

		rec := e.do(httpTest{method: http.MethodGet, path: "/v1/evaluations/followups-due?within=-3&as_of=nope", token: viewerToken})
		checkFields(t, rec, "within", "as_of")
	})

	var followUp evaluation.Evaluation
	t.Run("create follow-up", func(t *testing.T) {
		draftInitial := testutil.CreateEvaluation(t, e.evalRepo, evaluation.Evaluation{
			StaffID: amina.ID, ThemeID: hygiene.ID, Kind: evaluation.KindInitial,
		})
		partial := evaluation.Scores{"autonomy": 2}

		rec := e.do(httpTest{
			method: http.MethodPost, path: "/v1/evaluations", token: evalToken,
			body: marchallObj(t, evaluation.NewEvaluation{Kind: evaluation.KindFollowUp, InitialID: draftInitial.ID}),
		})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"initial_id": "the initial evaluation must be completed first"}),
		}, rec)

		rec = e.do(httpTest{
			method: http.MethodPost, path: "/v1/evaluations", token: evalToken,
			body: marchallObj(t, evaluation.NewEvaluation{Kind: evaluation.KindFollowUp, InitialID: initial.ID, Scores: partial, EvaluationDate: "2026-07-12"}),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &followUp))
		assert.Equal(t, evaluation.StatusDraft, followUp.Status)
		assert.Equal(t, amina.ID, followUp.StaffID, "inherited from the initial evaluation")
		assert.Equal(t, hygiene.ID, followUp.ThemeID)
		assert.Equal(t, initial.TrainingDate.UTC(), followUp.TrainingDate.UTC())

		rec = e.do(httpTest{
			method: http.MethodPost, path: "/v1/evaluations", token: evalToken,
			body: marchallObj(t, evaluation.NewEvaluation{Kind: evaluation.KindFollowUp, InitialID: initial.ID}),
		})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"initial_id": evaluation.ErrFollowUpExists.Error()}),
		}, rec)

		var due []spreadsheet.FollowUpExport
		e.fetch(t, http.MethodGet, "/v1/evaluations/followups-due?as_of=2026-07-01", viewerToken, nil, http.StatusOK, &due)
		assert.Empty(t, due, "a started follow-up is no longer due")
	})
	require.NotEmpty(t, followUp.ID)

	t.Run("update and complete", func(t *testing.T) {
		path := "/v1/evaluations/" + followUp.ID
		tests := []httpTest{
			{
				name: "missing scores", method: http.MethodPost, path: path + "/complete", token: evalToken, wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{
					"scores": "missing scores: knowledge_application, skill_improvement, behavior_change, work_impact",
				}),
			},
			{
				name: "Editor required", method: http.MethodPut, path: path, token: viewerToken, wantCode: http.StatusForbidden,
				body: marchallObj(t, evaluation.UpdateEvaluation{Scores: testutil.FullScores(evaluation.KindFollowUp, 5)}),
			},
			{
				name: "update", method: http.MethodPut, path: path, token: evalToken, wantCode: http.StatusOK,
				body: marchallObj(t, evaluation.UpdateEvaluation{Scores: testutil.FullScores(evaluation.KindFollowUp, 5)}),
			},
			{name: "complete", method: http.MethodPost, path: path + "/complete", token: evalToken, wantCode: http.StatusOK},
			{
				name: "complete twice", method: http.MethodPost, path: path + "/complete", token: evalToken,
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: evaluation.ErrAlreadyCompleted.Error()}),
			},
			{
				name: "update completed", method: http.MethodPut, path: path, token: evalToken,
				body:     marchallObj(t, evaluation.UpdateEvaluation{Scores: evaluation.Scores{"autonomy": 1}}),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: evaluation.ErrAlreadyCompleted.Error()}),
			},
			{
				name: "unknown", method: http.MethodGet, path: "/v1/evaluations/unknown", token: viewerToken,
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: evaluation.ErrNotFound.Error()}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				checkCodeAndData(t, tt, e.do(tt))
			})
		}

		var got evaluation.Evaluation
		e.fetch(t, http.MethodGet, path, viewerToken, nil, http.StatusOK, &got)
		assert.Equal(t, evaluation.StatusCompleted, got.Status)
		assert.Equal(t, 5.0, got.Average)

		var due []spreadsheet.FollowUpExport
		e.fetch(t, http.MethodGet, "/v1/evaluations/followups-due?as_of=2026-08-01", viewerToken, nil, http.StatusOK, &due)
		assert.Empty(t, due)
	})

	t.Run("query", func(t *testing.T) {
		var evals []evaluation.Evaluation
		e.fetch(t, http.MethodGet, "/v1/evaluations?kind=followUp", viewerToken, nil, http.StatusOK, &evals)
		require.Len(t, evals, 1)
		assert.Equal(t, followUp.ID, evals[0].ID)

		e.fetch(t, http.MethodGet, "/v1/evaluations?status=completed&staff_id="+amina.ID+"&from=2026-01-01&to=2026-01-31", viewerToken, nil, http.StatusOK, &evals)
		require.Len(t, evals, 1)
		assert.Equal(t, initial.ID, evals[0].ID)

		rec := e.do(httpTest{method: http.MethodGet, path: "/v1/evaluations?kind=bogus&status=bogus", token: viewerToken})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"kind":   "kind must be one of [initial followUp]",
				"status": "status must be one of [draft completed]",
			}),
		}, rec)
	})

	t.Run("forms", func(t *testing.T) {
		var forms []evaluation.Form
		e.fetch(t, http.MethodGet, "/v1/evaluations/forms", viewerToken, nil, http.StatusOK, &forms)
		require.Len(t, forms, 2)
		assert.Equal(t, evaluation.KindInitial, forms[0].Kind)
		assert.Len(t, forms[1].Criteria, len(evaluation.FollowUpForm.Criteria))
	})

	t.Run("export", func(t *testing.T) {
		for _, path := range []string{"/v1/evaluations/export?kind=initial", "/v1/evaluations/followups-due/export?as_of=2026-07-01"} {
			rec := e.do(httpTest{method: http.MethodGet, path: path, token: viewerToken})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, spreadsheet.ContentType, rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Body.Bytes())
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := e.do(httpTest{method: http.MethodDelete, path: "/v1/evaluations/" + initial.ID, token: evalToken})
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: evaluation.ErrHasFollowUp.Error()})}, rec)

		rec = e.do(httpTest{method: http.MethodDelete, path: "/v1/evaluations/" + followUp.ID, token: evalToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = e.do(httpTest{method: http.MethodDelete, path: "/v1/evaluations/" + initial.ID, token: evalToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
