package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/auth"
	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
)

type authApi struct {
	authn    *auth.Authenticator
	sessions *session.Manager
}

func registerAuthAPI(g *echo.Group, gm guardMiddleware, authn *auth.Authenticator, sessions *session.Manager) {
	api := authApi{authn: authn, sessions: sessions}

	g.POST("/login", api.login)
	g.POST("/logout", api.logout)
	g.GET("/me", api.me, gm.require(auth.TierAuthenticated))
}

// LoginRequest accepts the login key under any of its historical names.
type LoginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	UserID   string `json:"userid"`
	Password string `json:"password"`
}

func (lr LoginRequest) key() string {
	for _, k := range []string{lr.Login, lr.Email, lr.UserID} {
		if k = core.CleanString(k); k != "" {
			return k
		}
	}
	return ""
}

// ProfileResponse is what a principal sees of itself; ID is null for the super-admin.
type ProfileResponse struct {
	ID         *string         `json:"id"`
	Email      string          `json:"email,omitempty"`
	UserID     string          `json:"userid,omitempty"`
	Name       string          `json:"name"`
	Role       user.Role       `json:"role"`
	Group      string          `json:"group"`
	Members    []string        `json:"members"`
	IsTeacher  bool            `json:"isTeacher"`
	SuperAdmin bool            `json:"superAdmin"`
	Resources  *user.Resources `json:"resources,omitempty"`
	Redirect   string          `json:"redirect,omitempty"`
}

func newProfileResponse(p auth.Principal) ProfileResponse {
	usr := p.Identity()
	resp := ProfileResponse{
		Email:      usr.Email,
		UserID:     usr.UserID,
		Name:       usr.Name,
		Role:       usr.Role,
		Group:      usr.Group,
		Members:    usr.Members,
		IsTeacher:  usr.IsTeacher,
		SuperAdmin: p.IsSuperAdmin(),
	}
	if usr.ID != "" {
		resp.ID = &usr.ID
	}
	if resp.Members == nil {
		resp.Members = []string{}
	}
	return resp
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}

	p, err := api.authn.Login(ctx.Request().Context(), data.key(), data.Password)
	if err != nil {
		return err
	}

	// never reuse the session of the request
	if sess := sessionFromContext(ctx); sess != nil {
		if err := api.sessions.Destroy(ctx.Request().Context(), sess.ID); err != nil {
			return errors.Wrap(err, "destroying previous session")
		}
	}
	_, token, err := api.sessions.Start(ctx.Request().Context(), auth.SubjectOf(p))
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	ctx.SetCookie(api.sessions.Cookie(token))

	resp := newProfileResponse(p)
	resp.Redirect = auth.LandingFor(p)
	return ctx.JSON(http.StatusOK, resp)
}

func (api *authApi) logout(ctx echo.Context) error {
	if sess := sessionFromContext(ctx); sess != nil {
		if err := api.sessions.Destroy(ctx.Request().Context(), sess.ID); err != nil {
			return errors.Wrap(err, "destroying session")
		}
	}
	ctx.SetCookie(api.sessions.ClearCookie())
	return ctx.JSON(http.StatusOK, OkResponse{Ok: true})
}

func (api *authApi) me(ctx echo.Context) error {
	p, err := principalFromContext(ctx)
	if err != nil {
		return err
	}
	resp := newProfileResponse(p)
	res := p.Identity().Resources
	resp.Resources = &res
	return ctx.JSON(http.StatusOK, resp)
}
