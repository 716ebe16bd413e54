package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	echoapi "github.com/trezcool/evalua/apps/api/echo"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/report"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/user"
	"github.com/trezcool/evalua/services/spreadsheet"
	"github.com/trezcool/evalua/tests"
)

func staffIDs(t *testing.T, body []byte) []string {
	var staffs []staff.Staff
	require.NoError(t, json.Unmarshal(body, &staffs))
	ids := make([]string, 0, len(staffs))
	for _, s := range staffs {
		ids = append(ids, s.ID)
	}
	return ids
}

func Test_staffApi_crud(t *testing.T) {
	e := setup(t)

	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	evaluator := testutil.CreateUser(t, e.usrRepo, "Awa", "awa", "awa@test.cd", "", []string{user.RoleEvaluator}, true)
	viewer := testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleViewer}, true)
	adminToken, evalToken, viewerToken := e.getToken(t, admin), e.getToken(t, evaluator), e.getToken(t, viewer)

	amina := testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "amina@test.cd", "Kinshasa")
	paul := testutil.CreateStaff(t, e.staffRepo, "Paul", "Mbala", "", "Goma")
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	t.Run("create", func(t *testing.T) {
		valid := marchallObj(t, staff.NewStaff{FirstName: " Jean ", LastName: "Kabila", Email: "JEAN@test.cd", Establishment: "Goma"})
		tests := []httpTest{
			{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{name: "Editor required", token: viewerToken, body: valid, wantCode: http.StatusForbidden, wantData: forbidden},
			{
				name: "required fields", token: evalToken, body: []byte("{}"), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"first_name": "this field is required", "last_name": "this field is required"}),
			},
			{
				name: "email taken", token: evalToken, wantCode: http.StatusBadRequest,
				body:     marchallObj(t, staff.NewStaff{FirstName: "A", LastName: "B", Email: "Amina@Test.cd"}),
				wantData: marchallObj(t, map[string]string{"email": staff.ErrEmailExists.Error()}),
			},
			{name: "created", token: evalToken, body: valid, wantCode: http.StatusCreated},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			tt.path = "/v1/staff"

			t.Run(tt.name, func(t *testing.T) {
				rec := e.do(tt)
				checkCodeAndData(t, tt, rec)
				if tt.wantCode == http.StatusCreated {
					var got staff.Staff
					require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
					assert.Equal(t, "Jean", got.FirstName)
					assert.Equal(t, "jean@test.cd", got.Email)
				}
			})
		}
	})

	t.Run("query", func(t *testing.T) {
		rec := e.do(httpTest{method: http.MethodGet, path: "/v1/staff?search=DIAL", token: viewerToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{amina.ID}, staffIDs(t, rec.Body.Bytes()))

		rec = e.do(httpTest{method: http.MethodGet, path: "/v1/staff?establishment=goma&ordering=-first_name", token: viewerToken})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, staffIDs(t, rec.Body.Bytes()), 2)
		assert.Equal(t, paul.ID, staffIDs(t, rec.Body.Bytes())[0])

		var establishments []string
		e.fetch(t, http.MethodGet, "/v1/staff/establishments", viewerToken, nil, http.StatusOK, &establishments)
		assert.Equal(t, []string{"Goma", "Kinshasa"}, establishments)
	})

	t.Run("detail", func(t *testing.T) {
		notFound := marchallObj(t, httpErr{Error: staff.ErrNotFound.Error()})
		position := "Nurse"
		tests := []httpTest{
			{name: "retrieve", method: http.MethodGet, path: "/v1/staff/" + amina.ID, token: viewerToken, wantCode: http.StatusOK},
			{name: "unknown", method: http.MethodGet, path: "/v1/staff/unknown", token: viewerToken, wantCode: http.StatusNotFound, wantData: notFound},
			{
				name: "update (viewer)", method: http.MethodPut, path: "/v1/staff/" + amina.ID, token: viewerToken,
				body: marchallObj(t, staff.UpdateStaff{Position: &position}), wantCode: http.StatusForbidden, wantData: forbidden,
			},
			{
				name: "update", method: http.MethodPut, path: "/v1/staff/" + amina.ID, token: evalToken,
				body: marchallObj(t, staff.UpdateStaff{Position: &position}), wantCode: http.StatusOK,
			},
			{name: "delete (evaluator)", method: http.MethodDelete, path: "/v1/staff/" + paul.ID, token: evalToken, wantCode: http.StatusForbidden, wantData: forbidden},
			{name: "delete", method: http.MethodDelete, path: "/v1/staff/" + paul.ID, token: adminToken, wantCode: http.StatusNoContent},
			{name: "deleted", method: http.MethodGet, path: "/v1/staff/" + paul.ID, token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				checkCodeAndData(t, tt, e.do(tt))
			})
		}

		got, err := e.staffRepo.GetStaff(context.Background(), amina.ID)
		require.NoError(t, err)
		assert.Equal(t, "Nurse", got.Position)
		assert.Equal(t, "amina@test.cd", got.Email)
	})

	t.Run("delete multiple", func(t *testing.T) {
		zoe := testutil.CreateStaff(t, e.staffRepo, "Zoe", "Abeli", "", "")
		rec := e.do(httpTest{method: http.MethodDelete, path: "/v1/staff?id=" + zoe.ID + "&id=unknown", token: adminToken})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		_, err := e.staffRepo.GetStaff(context.Background(), zoe.ID)
		assert.ErrorIs(t, err, staff.ErrNotFound)
	})
}

func Test_staffApi_history(t *testing.T) {
	e := setup(t)

	viewer := testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleViewer}, true)
	amina := testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "", "")
	hygiene := testutil.CreateTheme(t, e.themeRepo, "Hygiene")
	testutil.CreateEvaluation(t, e.evalRepo, evaluation.Evaluation{
		StaffID: amina.ID, ThemeID: hygiene.ID, Kind: evaluation.KindInitial, Status: evaluation.StatusCompleted,
		Scores: testutil.FullScores(evaluation.KindInitial, 4), Average: 4,
	})

	var hist report.StaffHistory
	e.fetch(t, http.MethodGet, "/v1/staff/"+amina.ID+"/history", e.getToken(t, viewer), nil, http.StatusOK, &hist)
	assert.Equal(t, amina.ID, hist.Staff.ID)
	require.Len(t, hist.Evaluations, 1)
	require.Len(t, hist.Themes, 1)
	assert.Equal(t, hygiene.ID, hist.Themes[0].ThemeID)
	assert.Equal(t, "Hygiene", hist.Themes[0].ThemeName)
}

func newUploadRequest(t *testing.T, path, token, filename string, content []byte, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func Test_staffApi_import(t *testing.T) {
	e := setup(t)

	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	evaluator := testutil.CreateUser(t, e.usrRepo, "Awa", "awa", "awa@test.cd", "", []string{user.RoleEvaluator}, true)
	adminToken := e.getToken(t, admin)
	testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "amina@test.cd", "Kinshasa")

	content := []byte("Prénom;Nom;Email;Établissement\nAmina;Diallo;AMINA@test.cd;Goma\nNew;Comer;;Kinshasa\n;Nameless;;\n")

	t.Run("admin required", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/staff/import", e.getToken(t, evaluator), "staff.csv", content, nil)
		e.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid files", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/staff/import", adminToken, "", nil, nil)
		e.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"file": "this field is required"})}, rec)

		req, rec = newUploadRequest(t, "/v1/staff/import", adminToken, "staff.pdf", content, nil)
		e.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"file": spreadsheet.ErrUnsupportedFormat.Error()})}, rec)

		req, rec = newUploadRequest(t, "/v1/staff/import", adminToken, "staff.csv", []byte("a;b\n1;2\n"), nil)
		e.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"file": spreadsheet.ErrNoHeader.Error()})}, rec)
	})

	for _, dryRun := range []bool{true, false} {
		t.Run("dry_run="+strconv.FormatBool(dryRun), func(t *testing.T) {
			req, rec := newUploadRequest(t, "/v1/staff/import", adminToken, "staff.csv", content, map[string]string{
				"update_existing": "true",
				"dry_run":         strconv.FormatBool(dryRun),
			})
			e.app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp echoapi.ImportResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 1, resp.Mapping.HeaderRow)
			assert.Equal(t, dryRun, resp.Result.DryRun)
			assert.Equal(t, 3, resp.Result.Total)
			assert.Equal(t, 1, resp.Result.Created)
			assert.Equal(t, 1, resp.Result.Updated)
			require.Len(t, resp.Result.Errors, 1)
			assert.Equal(t, 4, resp.Result.Errors[0].Row)
			assert.Contains(t, resp.Result.Errors[0].Fields, "first_name")

			all, err := e.staffRepo.QueryStaff(context.Background(), nil, nil)
			require.NoError(t, err)
			if dryRun {
				assert.Len(t, all, 1)
			} else {
				assert.Len(t, all, 2)
			}
		})
	}

	amina, err := e.staffRepo.GetStaffByEmail(context.Background(), "amina@test.cd")
	require.NoError(t, err)
	assert.Equal(t, "Goma", amina.Establishment)
}

func Test_staffApi_export(t *testing.T) {
	e := setup(t)

	viewer := testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleViewer}, true)
	testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "amina@test.cd", "Kinshasa")
	testutil.CreateStaff(t, e.staffRepo, "Paul", "Mbala", "", "Goma")

	rec := e.do(httpTest{method: http.MethodGet, path: "/v1/staff/export?establishment=Goma", token: e.getToken(t, viewer)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, spreadsheet.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2, "header + Paul")
	assert.Contains(t, rows[1], "Mbala")
}
