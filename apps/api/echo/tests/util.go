package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/evalua/apps/api/echo"
	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/report"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/core/user"
	"github.com/trezcool/evalua/services/eventbus"
	"github.com/trezcool/evalua/storage/database/sqlx"
	"github.com/trezcool/evalua/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	app       *Server
	conf      *core.Config
	bus       *eventbus.Bus
	usrRepo   user.Repository
	staffRepo staff.Repository
	themeRepo theme.Repository
	evalRepo  evaluation.Repository
}

func setup(t *testing.T) *env {
	// set up DB & repos
	db, conf := testutil.OpenDB(t)
	e := &env{
		conf:      conf,
		bus:       eventbus.New(),
		usrRepo:   sqlxrepos.NewUserRepository(db),
		staffRepo: sqlxrepos.NewStaffRepository(db),
		themeRepo: sqlxrepos.NewThemeRepository(db),
		evalRepo:  sqlxrepos.NewEvaluationRepository(db),
	}

	// set up services
	usrSvc := user.NewService(e.usrRepo, e.bus)
	staffSvc := staff.NewService(e.staffRepo, e.bus)
	themeSvc := theme.NewService(e.themeRepo, e.evalRepo, e.bus)
	evalSvc := evaluation.NewService(e.evalRepo, staffSvc, themeSvc, e.bus, conf.FollowUpMonths)
	validate, translator := testutil.NewValidator()

	// set up server
	e.app = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     testutil.NopLogger{},
		Validate:   validate,
		Translator: translator,
		Bus:        e.bus,
		UserSvc:    usrSvc,
		StaffSvc:   staffSvc,
		ThemeSvc:   themeSvc,
		EvalSvc:    evalSvc,
		ReportSvc:  report.NewService(staffSvc, themeSvc, evalSvc),
	})
	t.Cleanup(func() { _ = e.app.Close() })
	return e
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (e *env) getToken(t *testing.T, usr user.User) string {
	token, err := e.app.GenerateToken(e.app.GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves the request of `tt` and returns the recorded response.
func (e *env) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	e.app.ServeHTTP(rec, req)
	return rec
}

// fetch serves the request and decodes its JSON response into `dst`.
func (e *env) fetch(t *testing.T, method, path, token string, body []byte, wantCode int, dst interface{}) {
	rec := e.do(httpTest{method: method, path: path, token: token, body: body})
	if rec.Code != wantCode {
		t.Fatalf("%s %s: code = %v; wantCode %v; body %s", method, path, rec.Code, wantCode, rec.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
	}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// checkFields asserts that the response is a 400 holding errors for `fields`.
func checkFields(t *testing.T, rec *httptest.ResponseRecorder, fields ...string) {
	if !assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String()) {
		return
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	for _, f := range fields {
		assert.Contains(t, got, f)
	}
}
