package echoapi

import (
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/twahidin/project-lumos/core/auth"
)

// registerPages serves the role pages to the principals landing on them, and the rest of publicDir as is.
func registerPages(app *echo.Echo, gm guardMiddleware, publicDir string) {
	app.GET("/", func(ctx echo.Context) error {
		p, err := gm.resolve(ctx, auth.TierAuthenticated)
		if err != nil {
			return ctx.Redirect(http.StatusFound, auth.LoginPage)
		}
		return ctx.Redirect(http.StatusFound, auth.LandingFor(p))
	})

	pages := make(map[string]echo.HandlerFunc, 3)
	for _, page := range []string{auth.StudentPage, auth.TeacherPage, auth.AdminPage} {
		pages[page] = rolePage(gm, page, filepath.Join(publicDir, page))
		app.GET(page, pages[page])
	}

	// every path the file server would resolve to a role page goes through its gate
	static := echo.StaticDirectoryHandler(os.DirFS(publicDir), false)
	app.GET("/*", func(ctx echo.Context) error {
		if gate, ok := pages[staticName(ctx.Param("*"))]; ok {
			return gate(ctx)
		}
		return static(ctx)
	})
}

// staticName is the file a static path resolves to, as "/name".
func staticName(p string) string {
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return path.Clean("/" + p)
}

// rolePage redirects every principal to its own landing page; store errors land on the login page.
func rolePage(gm guardMiddleware, page, file string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := gm.resolve(ctx, auth.TierAuthenticated)
		if err != nil {
			return ctx.Redirect(http.StatusFound, auth.LoginPage)
		}
		if landing := auth.LandingFor(p); landing != page {
			return ctx.Redirect(http.StatusFound, landing)
		}
		return ctx.File(file)
	}
}
