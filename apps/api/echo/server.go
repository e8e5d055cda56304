package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/auth"
	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/core/whodoc"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    *user.Service
		DocSvc     *whodoc.Service
		Sessions   *session.Manager
		Auth       *auth.Authenticator
		Guard      *auth.Guard
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(requestLogger(s.deps.Logger))
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	s.app.Use(sessionMiddleware(s.deps.Sessions))

	gm := guardMiddleware{guard: s.deps.Guard, sessions: s.deps.Sessions}

	registerPages(s.app, gm, conf.Server.PublicDir)

	api := s.app.Group("/api")
	registerAuthAPI(api.Group("/auth"), gm, s.deps.Auth, s.deps.Sessions)

	admin := api.Group("/admin", gm.require(auth.TierAdmin))
	registerUserAPI(admin.Group("/users"), s.deps.UserSvc, s.deps.Validate, conf.Import.DefaultPassword)
	registerDocAPI(admin.Group("/who-docs"), s.deps.DocSvc, s.deps.Validate)

	registerTeacherAPI(api.Group("/teacher", gm.require(auth.TierTeacher)), s.deps.UserSvc)
}

// Start serves until the listener fails; the failure is sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func requestLogger(logger core.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(ctx echo.Context, v middleware.RequestLoggerValues) error {
			args := []interface{}{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String()}
			if p, ok := ctx.Get(ctxPrincipalKey).(auth.Principal); ok {
				args = append(args, p.Identity())
			}
			if v.Error != nil {
				args = append(args, v.Error)
			}
			logger.Debug("request", args...)
			return nil
		},
	})
}
