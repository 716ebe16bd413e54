package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core/theme"
)

type themeApi struct {
	svc      *theme.Service
	validate *validator.Validate
}

func registerThemeAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *authenticator, deps ServerDeps) {
	api := themeApi{svc: deps.ThemeSvc, validate: deps.Validate}

	tg := g.Group("/themes", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create, adminMiddleware())

	dg := tg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
}

func (api *themeApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		th, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding theme by ID")
		}
		ctx.Set(contextObjectKey, th)
		return next(ctx)
	}
}

func contextTheme(ctx echo.Context) (theme.Theme, error) {
	th, ok := ctx.Get(contextObjectKey).(theme.Theme)
	if !ok {
		return theme.Theme{}, errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return th, nil
}

func (api *themeApi) create(ctx echo.Context) error {
	var data theme.NewTheme
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTheme")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	th, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating theme")
	}
	return ctx.JSON(http.StatusCreated, th)
}

func (api *themeApi) query(ctx echo.Context) error {
	filter := &theme.QueryFilter{Search: ctx.QueryParam("search")}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	themes, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying themes")
	}
	if themes == nil {
		themes = []theme.Theme{}
	}
	return ctx.JSON(http.StatusOK, themes)
}

func (api *themeApi) retrieve(ctx echo.Context) error {
	th, err := contextTheme(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, th)
}

func (api *themeApi) update(ctx echo.Context) error {
	th, err := contextTheme(ctx)
	if err != nil {
		return err
	}

	var data theme.UpdateTheme
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTheme")
	}
	if err := data.Validate(ctx.Request().Context(), th, api.validate, api.svc); err != nil {
		return err
	}

	th, err = api.svc.Update(ctx.Request().Context(), th, data)
	if err != nil {
		return errors.Wrap(err, "updating theme")
	}
	return ctx.JSON(http.StatusOK, th)
}

func (api *themeApi) destroy(ctx echo.Context) error {
	th, err := contextTheme(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), th.ID); err != nil {
		return errors.Wrap(err, "deleting theme")
	}
	return ctx.NoContent(http.StatusNoContent)
}
