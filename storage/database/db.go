package database

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/core/whodoc"
	inmemdb "github.com/twahidin/project-lumos/storage/database/inmem"
	mongorepos "github.com/twahidin/project-lumos/storage/database/mongo"
	pgrepos "github.com/twahidin/project-lumos/storage/database/postgres"
	redisrepos "github.com/twahidin/project-lumos/storage/redis"
)

// SessionStoreRedis keeps sessions in redis whatever the database engine.
const SessionStoreRedis = "redis"

// Stores are the repositories of the configured engine.
type Stores struct {
	Users    user.Repository
	Docs     whodoc.Repository
	Sessions session.Store

	migrate func(ctx context.Context, command string) error
	closers []func(ctx context.Context) error
}

// Migrate brings the schema (or the indexes) of the engine up to date.
func (s *Stores) Migrate(ctx context.Context) error {
	return s.RunMigration(ctx, "up")
}

// RunMigration runs a migration command; engines without a schema only know "up".
func (s *Stores) RunMigration(ctx context.Context, command string) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx, command)
}

// Close releases every connection, in reverse opening order.
func (s *Stores) Close(ctx context.Context) error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open connects to the configured engine and session store.
// Outside production a failed connection is retried every conf.Database.RetryInterval
// until it succeeds or ctx is done; in production the first failure is returned.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*Stores, error) {
	stores := new(Stores)

	err := retry(ctx, conf, logger, conf.Database.Engine, func(ctx context.Context) error {
		return stores.openEngine(ctx, conf)
	})
	if err != nil {
		return nil, err
	}

	if conf.Session.Store != conf.Database.Engine {
		err = retry(ctx, conf, logger, conf.Session.Store, func(ctx context.Context) error {
			return stores.openSessionStore(ctx, conf)
		})
		if err != nil {
			_ = stores.Close(context.Background())
			return nil, err
		}
	}
	return stores, nil
}

func (s *Stores) openEngine(ctx context.Context, conf *core.Config) error {
	switch conf.Database.Engine {
	case core.EngineMemory:
		db := inmemdb.Open()
		s.Users = inmemdb.NewUserRepository(db)
		s.Docs = inmemdb.NewDocRepository(db)
		s.Sessions = inmemdb.NewSessionStore(db)

	case core.EngineMongo:
		db, err := mongorepos.Open(ctx, conf.Database.URI, conf.Database.Name)
		if err != nil {
			return err
		}
		s.Users = mongorepos.NewUserRepository(db)
		s.Docs = mongorepos.NewDocRepository(db)
		s.Sessions = mongorepos.NewSessionStore(db)
		s.migrate = func(ctx context.Context, command string) error {
			if command != "up" {
				return errors.Errorf("migration %q is not supported by mongo", command)
			}
			return db.EnsureIndexes(ctx)
		}
		s.closers = append(s.closers, db.Close)

	case core.EnginePostgres:
		db, err := pgrepos.Open(ctx, conf.Database.URI)
		if err != nil {
			return err
		}
		s.Users = pgrepos.NewUserRepository(db)
		s.Docs = pgrepos.NewDocRepository(db)
		s.Sessions = pgrepos.NewSessionStore(db)
		s.migrate = db.RunMigration
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })

	default:
		return errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
	return nil
}

func (s *Stores) openSessionStore(ctx context.Context, conf *core.Config) error {
	switch conf.Session.Store {
	case core.EngineMemory:
		s.Sessions = inmemdb.NewSessionStore(inmemdb.Open())
	case SessionStoreRedis:
		rdb, err := redisrepos.Open(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return err
		}
		s.Sessions = redisrepos.NewSessionStore(rdb)
		s.closers = append(s.closers, func(context.Context) error { return rdb.Close() })
	default:
		return errors.Errorf("session store %q needs database engine %q", conf.Session.Store, conf.Session.Store)
	}
	return nil
}

func retry(ctx context.Context, conf *core.Config, logger core.Logger, name string, connect func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := connect(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("connected to "+name, "attempt", attempt)
			}
			return nil
		}
		if conf.IsProd() || conf.Database.RetryInterval <= 0 {
			return errors.Wrapf(err, "connecting to %s", name)
		}

		logger.Warn("connecting to "+name+" failed, retrying", "err", err, "attempt", attempt, "in", conf.Database.RetryInterval)
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "connecting to %s", name)
		case <-time.After(conf.Database.RetryInterval):
		}
	}
}
