package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

const errStudentsRequired = "students array required"

type userApi struct {
	svc             *user.Service
	validate        *validator.Validate
	defaultPassword string
}

func registerUserAPI(g *echo.Group, svc *user.Service, validate *validator.Validate, defaultPassword string) {
	api := userApi{
		svc:             svc,
		validate:        validate,
		defaultPassword: defaultPassword,
	}

	g.GET("", api.query)
	g.POST("", api.create)
	g.POST("/bulk", api.bulkCreate)

	// detail endpoints
	dg := g.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.update)
	dg.POST("/reset-password", api.resetPassword)
	dg.POST("/teacher-rights", api.setTeacherRights)
	dg.POST("/resources", api.updateResources)
}

type (
	// CreatedUserResponse is what is echoed back of a newly created User.
	CreatedUserResponse struct {
		ID     string    `json:"id"`
		Email  string    `json:"email"`
		UserID string    `json:"userid"`
		Name   string    `json:"name"`
		Role   user.Role `json:"role"`
	}

	BulkCreateRequest struct {
		Students        []user.ImportRow `json:"students"`
		DefaultPassword string           `json:"defaultPassword"`
	}
)

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, CreatedUserResponse{
		ID:     usr.ID,
		Email:  usr.Email,
		UserID: usr.UserID,
		Name:   usr.Name,
		Role:   usr.Role,
	})
}

// bulkCreate imports students from a JSON batch or from a CSV body.
func (api *userApi) bulkCreate(ctx echo.Context) error {
	var data BulkCreateRequest

	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), "text/csv") {
		rows, err := user.ParseImportCSV(ctx.Request().Body)
		if err != nil {
			return core.NewValidationError(errors.Cause(err))
		}
		data.Students = rows
		data.DefaultPassword = ctx.QueryParam("defaultPassword")
	} else if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkCreateRequest")
	}

	if len(data.Students) == 0 {
		return core.NewValidationMessage(errStudentsRequired)
	}
	pwd := core.CleanString(data.DefaultPassword)
	if pwd == "" {
		pwd = api.defaultPassword
	}

	return ctx.JSON(http.StatusOK, api.svc.Import(ctx.Request().Context(), data.Students, pwd))
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data user.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), ctx.Param("id"), data.NewPassword); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, OkResponse{Ok: true})
}

func (api *userApi) setTeacherRights(ctx echo.Context) error {
	var data user.TeacherRights
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TeacherRights")
	}

	usr, err := api.svc.SetTeacherRights(ctx.Request().Context(), ctx.Param("id"), data.Grant)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateResources(ctx echo.Context) error {
	var data user.UpdateResources
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateResources")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.UpdateResources(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
