package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/twahidin/project-lumos/core/user"
)

// teacherApi serves the read-only rosters of teachers and admins.
type teacherApi struct {
	svc *user.Service
}

func registerTeacherAPI(g *echo.Group, svc *user.Service) {
	api := teacherApi{svc: svc}

	g.GET("/students", api.students)
	g.GET("/groups", api.groups)
}

func (api *teacherApi) students(ctx echo.Context) error {
	students, err := api.svc.ListStudents(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *teacherApi) groups(ctx echo.Context) error {
	groups, err := api.svc.ListGroups(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, groups)
}
