package echoapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/services/spreadsheet"
)

const defaultDueWithinDays = 30

type evaluationApi struct {
	svc      *evaluation.Service
	staff    *staff.Service
	themes   *theme.Service
	validate *validator.Validate
}

func registerEvaluationAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *authenticator, deps ServerDeps) {
	api := evaluationApi{
		svc:      deps.EvalSvc,
		staff:    deps.StaffSvc,
		themes:   deps.ThemeSvc,
		validate: deps.Validate,
	}

	eg := g.Group("/evaluations", jwt)
	eg.GET("", api.query)
	eg.POST("", api.create, editorMiddleware())
	eg.GET("/forms", api.forms)
	eg.GET("/followups-due", api.followUpsDue)
	eg.GET("/followups-due/export", api.exportFollowUpsDue)
	eg.GET("/export", api.export)

	dg := eg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, editorMiddleware())
	dg.DELETE("", api.destroy, editorMiddleware())
	dg.POST("/complete", api.complete, editorMiddleware())
}

func (api *evaluationApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		e, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding evaluation by ID")
		}
		ctx.Set(contextObjectKey, e)
		return next(ctx)
	}
}

func contextEvaluation(ctx echo.Context) (evaluation.Evaluation, error) {
	e, ok := ctx.Get(contextObjectKey).(evaluation.Evaluation)
	if !ok {
		return evaluation.Evaluation{}, errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return e, nil
}

func bindEvaluationFilter(ctx echo.Context) (*evaluation.QueryFilter, error) {
	params := newQueryParams(ctx)
	filter := &evaluation.QueryFilter{
		StaffID:  params.str("staff_id"),
		ThemeID:  params.str("theme_id"),
		Kind:     evaluation.Kind(params.str("kind")),
		Status:   evaluation.Status(params.str("status")),
		From:     params.date("from"),
		To:       params.date("to"),
		Initials: params.strs("initial_id"),
	}
	switch filter.Kind {
	case "", evaluation.KindInitial, evaluation.KindFollowUp:
	default:
		params.addErr("kind", "kind must be one of [initial followUp]")
	}
	switch filter.Status {
	case "", evaluation.StatusDraft, evaluation.StatusCompleted:
	default:
		params.addErr("status", "status must be one of [draft completed]")
	}
	if err := params.err(); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

// Handlers

func (api *evaluationApi) create(ctx echo.Context) error {
	var data evaluation.NewEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvaluation")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	e, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating evaluation")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *evaluationApi) query(ctx echo.Context) error {
	filter, err := bindEvaluationFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	evals, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying evaluations")
	}
	if evals == nil {
		evals = []evaluation.Evaluation{}
	}
	return ctx.JSON(http.StatusOK, evals)
}

func (api *evaluationApi) retrieve(ctx echo.Context) error {
	e, err := contextEvaluation(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *evaluationApi) update(ctx echo.Context) error {
	e, err := contextEvaluation(ctx)
	if err != nil {
		return err
	}

	var data evaluation.UpdateEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvaluation")
	}

	e, err = api.svc.Update(ctx.Request().Context(), e, data)
	if err != nil {
		return errors.Wrap(err, "updating evaluation")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *evaluationApi) complete(ctx echo.Context) error {
	e, err := contextEvaluation(ctx)
	if err != nil {
		return err
	}
	e, err = api.svc.Complete(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "completing evaluation")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *evaluationApi) destroy(ctx echo.Context) error {
	e, err := contextEvaluation(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), e.ID); err != nil {
		return errors.Wrap(err, "deleting evaluation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *evaluationApi) forms(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, evaluation.Forms)
}

// dueFollowUps lists the follow-ups due within `?within=` days (30 by default) of `?as_of=` (today by default).
func (api *evaluationApi) dueFollowUps(ctx echo.Context) ([]spreadsheet.FollowUpExport, error) {
	params := newQueryParams(ctx)
	days := params.positiveInt("within", defaultDueWithinDays)
	asOf := params.date("as_of")
	if err := params.err(); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = timeNow()
	}

	reqCtx := ctx.Request().Context()
	due, err := api.svc.FollowUpsDue(reqCtx, asOf, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, errors.Wrap(err, "listing due follow-ups")
	}
	staffs, themes, err := api.names(ctx)
	if err != nil {
		return nil, err
	}
	return spreadsheet.NewFollowUpExports(due, staffs, themes), nil
}

func (api *evaluationApi) followUpsDue(ctx echo.Context) error {
	due, err := api.dueFollowUps(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, due)
}

func (api *evaluationApi) exportFollowUpsDue(ctx echo.Context) error {
	due, err := api.dueFollowUps(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteFollowUps(&buf, due); err != nil {
		return errors.Wrap(err, "writing follow-ups spreadsheet")
	}
	return sendSpreadsheet(ctx, "followups", buf.Bytes())
}

func (api *evaluationApi) export(ctx echo.Context) error {
	filter, err := bindEvaluationFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	evals, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying evaluations")
	}
	staffs, themes, err := api.names(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteEvaluations(&buf, spreadsheet.NewEvaluationExports(evals, staffs, themes)); err != nil {
		return errors.Wrap(err, "writing evaluations spreadsheet")
	}
	return sendSpreadsheet(ctx, "evaluations", buf.Bytes())
}

// names loads every Staff and Theme, to resolve the names of exported rows.
func (api *evaluationApi) names(ctx echo.Context) ([]staff.Staff, []theme.Theme, error) {
	reqCtx := ctx.Request().Context()
	staffs, err := api.staff.Query(reqCtx, nil, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying staff")
	}
	themes, err := api.themes.Query(reqCtx, nil, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying themes")
	}
	return staffs, themes, nil
}
