package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core/report"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := reportApi{svc: deps.ReportSvc}

	rg := g.Group("/reports", jwt)
	rg.GET("/dashboard", api.dashboard)
	rg.GET("/themes", api.themes)
}

func (api *reportApi) dashboard(ctx echo.Context) error {
	params := newQueryParams(ctx)
	asOf := params.date("as_of")
	if err := params.err(); err != nil {
		return err
	}
	if asOf.IsZero() {
		asOf = timeNow()
	}

	d, err := api.svc.Dashboard(ctx.Request().Context(), asOf)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *reportApi) themes(ctx echo.Context) error {
	stats, err := api.svc.ThemeStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building theme stats")
	}
	if stats == nil {
		stats = []report.ThemeStats{}
	}
	return ctx.JSON(http.StatusOK, stats)
}

func timeNow() time.Time { return time.Now().UTC() }
