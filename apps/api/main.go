package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/twahidin/project-lumos/apps/api/echo"
	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/auth"
	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/core/whodoc"
	logsvc "github.com/twahidin/project-lumos/services/logger"
	"github.com/twahidin/project-lumos/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	rootLogger := logsvc.NewRollbarLogger(zl, conf)
	defer func() { _ = rootLogger.Sync() }()
	logger := rootLogger.Named("API")
	dbLogger := rootLogger.Named("DB")

	// set up DB; an interrupt stops the connection retries
	startCtx, stopStart := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	stores, err := database.Open(startCtx, conf, dbLogger)
	if err != nil {
		stopStart()
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()
	if err = stores.Migrate(startCtx); err != nil {
		stopStart()
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	stopStart()

	// set up services
	usrSvc := user.NewService(stores.Users)
	docSvc := whodoc.NewService(stores.Docs, stores.Users)
	sessions := session.NewManager(stores.Sessions, session.Options{
		Secret:     []byte(conf.Session.Secret),
		TTL:        conf.Session.TTL,
		CookieName: conf.Session.CookieName,
		Secure:     conf.Session.Secure,
		Issuer:     conf.AppName,
	})
	superAdmin := auth.SuperAdminCredentials{Login: conf.SuperAdmin.Login, Password: conf.SuperAdmin.Password}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), "engine", conf.Database.Engine, "sessions", conf.Session.Store)
	defer logger.Info("Application stopped")

	if conf.UsesDefaultSecret() && conf.IsProd() {
		logger.Warn("SESSION_SECRET is not set; sessions are signed with the development secret")
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	whodoc.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("engine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			DocSvc:     docSvc,
			Sessions:   sessions,
			Auth:       auth.NewAuthenticator(usrSvc, superAdmin),
			Guard:      auth.NewGuard(usrSvc, superAdmin),
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		logger.Info("Listening", "addr", conf.Server.Addr)
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
