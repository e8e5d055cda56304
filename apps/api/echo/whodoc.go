package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core/whodoc"
)

type docApi struct {
	svc      *whodoc.Service
	validate *validator.Validate
}

func registerDocAPI(g *echo.Group, svc *whodoc.Service, validate *validator.Validate) {
	api := docApi{svc: svc, validate: validate}

	g.GET("", api.query)
	g.POST("", api.create)
	// GET takes a user ID, PATCH a doc ID
	g.GET("/:id", api.queryByUser)
	g.PATCH("/:id", api.update)
}

func (api *docApi) query(ctx echo.Context) error {
	docs, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *docApi) queryByUser(ctx echo.Context) error {
	docs, err := api.svc.QueryByUser(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *docApi) create(ctx echo.Context) error {
	var data whodoc.NewDoc
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDoc")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	doc, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *docApi) update(ctx echo.Context) error {
	var data whodoc.UpdateDoc
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDoc")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	doc, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, doc)
}
