package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core/auth"
	"github.com/twahidin/project-lumos/core/session"
)

// echo.Context keys
const (
	ctxSessionKey    = "session"
	ctxSessionErrKey = "sessionErr"
	ctxPrincipalKey  = "principal"
)

// sessionMiddleware loads the session of the request cookie, if any.
// Unknown, expired and forged sessions make the request anonymous;
// a store failure is kept in the context for the guards to report.
func sessionMiddleware(sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			cookie, err := ctx.Cookie(sessions.CookieName())
			if err != nil || cookie.Value == "" {
				return next(ctx)
			}

			sess, err := sessions.Load(ctx.Request().Context(), cookie.Value)
			switch cause := errors.Cause(err); {
			case err == nil:
				ctx.Set(ctxSessionKey, &sess)
			case cause == session.ErrNotFound || cause == session.ErrInvalidToken:
				ctx.SetCookie(sessions.ClearCookie())
			default:
				ctx.Set(ctxSessionErrKey, errors.Wrap(err, "loading session"))
			}
			return next(ctx)
		}
	}
}

func sessionFromContext(ctx echo.Context) *session.Session {
	sess, _ := ctx.Get(ctxSessionKey).(*session.Session)
	return sess
}

func principalFromContext(ctx echo.Context) (auth.Principal, error) {
	if p, ok := ctx.Get(ctxPrincipalKey).(auth.Principal); ok {
		return p, nil
	}
	return nil, auth.ErrUnauthenticated
}

type guardMiddleware struct {
	guard    *auth.Guard
	sessions *session.Manager
}

// resolve authorizes the request for tier. A stale session is destroyed on the way.
func (gm guardMiddleware) resolve(ctx echo.Context, tier auth.Tier) (auth.Principal, error) {
	if err, ok := ctx.Get(ctxSessionErrKey).(error); ok {
		return nil, err
	}

	sess := sessionFromContext(ctx)
	p, err := gm.guard.Authorize(ctx.Request().Context(), sess, tier)
	if errors.Cause(err) == auth.ErrStaleSession {
		if dErr := gm.sessions.Destroy(ctx.Request().Context(), sess.ID); dErr != nil {
			return nil, errors.Wrap(dErr, "destroying stale session")
		}
		ctx.Set(ctxSessionKey, nil)
		ctx.SetCookie(gm.sessions.ClearCookie())
	}
	if err != nil {
		return nil, err
	}
	ctx.Set(ctxPrincipalKey, p)
	return p, nil
}

// require admits the callers allowed at tier. Anonymous callers are sent to the login page;
// a stale session answers 401 and a missing capability 403.
func (gm guardMiddleware) require(tier auth.Tier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := gm.resolve(ctx, tier); err != nil {
				if errors.Cause(err) == auth.ErrUnauthenticated {
					return ctx.Redirect(http.StatusFound, auth.LoginPage)
				}
				return err
			}
			return next(ctx)
		}
	}
}
