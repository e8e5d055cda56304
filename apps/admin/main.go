package main

import (
	"context"
	"log"
	"os"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
	logsvc "github.com/twahidin/project-lumos/services/logger"
	"github.com/twahidin/project-lumos/storage/database"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	// no retries: the CLI fails fast
	conf.Database.RetryInterval = 0

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf).Named("ADMIN")

	// set up DB
	stores, err := database.Open(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal("setting up database", err)
	}

	// start CLI
	cli := commandLine{
		conf:     conf,
		usrSvc:   user.NewService(stores.Users),
		validate: newValidator(),
		migrator: stores,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	if cErr := stores.Close(context.Background()); cErr != nil {
		logger.Error("closing database", cErr)
	}
	_ = logger.Sync()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}
