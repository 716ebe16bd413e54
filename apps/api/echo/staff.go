package echoapi

import (
	"bytes"
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/report"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/services/spreadsheet"
)

type staffApi struct {
	svc        *staff.Service
	reports    *report.Service
	runner     core.OperationRunner
	validate   *validator.Validate
	translator ut.Translator
}

func registerStaffAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *authenticator, deps ServerDeps) {
	api := staffApi{
		svc:        deps.StaffSvc,
		reports:    deps.ReportSvc,
		runner:     deps.Runner,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	sg := g.Group("/staff", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create, editorMiddleware())
	sg.DELETE("", api.destroyMultiple, adminMiddleware())
	sg.GET("/establishments", api.establishments)
	sg.GET("/export", api.export)
	sg.POST("/import", api.importFile, adminMiddleware())

	// detail endpoints
	dg := sg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, editorMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/history", api.history)
}

func (api *staffApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		s, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding staff by ID")
		}
		ctx.Set(contextObjectKey, s)
		return next(ctx)
	}
}

func contextStaff(ctx echo.Context) (staff.Staff, error) {
	s, ok := ctx.Get(contextObjectKey).(staff.Staff)
	if !ok {
		return staff.Staff{}, errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return s, nil
}

// Handlers

func (api *staffApi) create(ctx echo.Context) error {
	var data staff.NewStaff
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStaff")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating staff")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func bindStaffFilter(ctx echo.Context) *staff.QueryFilter {
	params := newQueryParams(ctx)
	filter := &staff.QueryFilter{
		Search:        params.str("search"),
		Establishment: params.str("establishment"),
		Position:      params.str("position"),
		IDs:           params.strs("id"),
	}
	filter.Clean()
	return filter
}

func (api *staffApi) query(ctx echo.Context) error {
	filter := bindStaffFilter(ctx)
	ordering := new(Ordering)
	ordering.Bind(ctx)

	staffs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying staff")
	}
	if staffs == nil {
		staffs = []staff.Staff{}
	}
	return ctx.JSON(http.StatusOK, staffs)
}

func (api *staffApi) retrieve(ctx echo.Context) error {
	s, err := contextStaff(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *staffApi) update(ctx echo.Context) error {
	s, err := contextStaff(ctx)
	if err != nil {
		return err
	}

	var data staff.UpdateStaff
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStaff")
	}
	if err := data.Validate(ctx.Request().Context(), s, api.validate, api.svc); err != nil {
		return err
	}

	s, err = api.svc.Update(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "updating staff")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *staffApi) destroy(ctx echo.Context) error {
	s, err := contextStaff(ctx)
	if err != nil {
		return err
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), s.ID); err != nil {
		return errors.Wrap(err, "deleting staff")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *staffApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting staff")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *staffApi) establishments(ctx echo.Context) error {
	names, err := api.svc.Establishments(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing establishments")
	}
	if names == nil {
		names = []string{}
	}
	return ctx.JSON(http.StatusOK, names)
}

func (api *staffApi) history(ctx echo.Context) error {
	s, err := contextStaff(ctx)
	if err != nil {
		return err
	}
	hist, err := api.reports.StaffHistory(ctx.Request().Context(), s.ID)
	if err != nil {
		return errors.Wrap(err, "getting staff history")
	}
	return ctx.JSON(http.StatusOK, hist)
}

func (api *staffApi) export(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	staffs, err := api.svc.Query(ctx.Request().Context(), bindStaffFilter(ctx), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying staff")
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteStaff(&buf, staffs); err != nil {
		return errors.Wrap(err, "writing staff spreadsheet")
	}
	return sendSpreadsheet(ctx, "staff", buf.Bytes())
}

// ImportResponse reports how the uploaded sheet was read and what was imported.
type ImportResponse struct {
	Mapping spreadsheet.Mapping `json:"mapping"`
	Result  staff.ImportResult  `json:"result"`
}

func (api *staffApi) importFile(ctx echo.Context) error {
	fileErr := func(msg string) error {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: msg})
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return fileErr("this field is required")
	}
	updateExisting, _ := strconv.ParseBool(ctx.FormValue("update_existing"))
	dryRun, _ := strconv.ParseBool(ctx.FormValue("dry_run"))

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()

	rows, err := spreadsheet.ReadRows(f, fh.Filename)
	if err != nil {
		if errors.Is(err, spreadsheet.ErrUnsupportedFormat) || errors.Is(err, spreadsheet.ErrEmptySheet) {
			return fileErr(err.Error())
		}
		return fileErr("could not read the spreadsheet")
	}
	records, mapping, err := spreadsheet.ParseStaff(rows)
	if err != nil {
		return fileErr(err.Error())
	}

	res, err := api.svc.Import(ctx.Request().Context(), records, staff.ImportOptions{
		UpdateExisting: updateExisting,
		DryRun:         dryRun,
		Validate:       api.validate,
		Translator:     api.translator,
		Runner:         api.runner,
	})
	if err != nil {
		return errors.Wrap(err, "importing staff")
	}
	if res.Errors == nil {
		res.Errors = []staff.RowError{}
	}
	return ctx.JSON(http.StatusOK, ImportResponse{Mapping: mapping, Result: res})
}

func sendSpreadsheet(ctx echo.Context, name string, content []byte) error {
	filename := name + "-" + core.TruncateDay(timeNow()).Format("20060102") + ".xlsx"
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, spreadsheet.ContentType, content)
}
