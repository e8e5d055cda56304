package logsvc

import (
	"fmt"
	"os"
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

// RollbarLogger writes every entry to zap and reports it to Rollbar when a token is configured.
type RollbarLogger struct {
	zap  *zap.SugaredLogger
	name string
	mu   *sync.Mutex // rollbar's person is global
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	host, _ := os.Hostname()
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "")
	return &RollbarLogger{zap: zl.Sugar(), mu: new(sync.Mutex)}
}

// Named returns a logger sharing l's outputs, tagged with name.
func (l *RollbarLogger) Named(name string) *RollbarLogger {
	return &RollbarLogger{zap: l.zap.Named(name), name: name, mu: l.mu}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

func (l *RollbarLogger) Sync() error {
	rollbar.Wait()
	return l.zap.Sync()
}

// entry is a log call split for both outputs.
type entry struct {
	usr     *user.User
	errs    []error
	extras  map[string]interface{}
	keyVals []interface{}
}

// parse splits args: errors, map[string]interface{} extras, a user.User and key/value pairs.
// Anything else is logged under an "argN" key.
func parse(args []interface{}) entry {
	e := entry{extras: make(map[string]interface{})}
	for i := 0; i < len(args); i++ {
		switch arg := args[i].(type) {
		case user.User:
			if e.usr == nil { // only one User
				usr := arg
				e.usr = &usr
			}
		case error:
			e.errs = append(e.errs, arg)
		case map[string]interface{}:
			for k, v := range arg {
				e.extras[k] = v
			}
		case string:
			if i+1 < len(args) {
				e.extras[arg] = args[i+1]
				i++
			} else {
				e.extras[fmt.Sprintf("arg%d", i)] = arg
			}
		default:
			e.extras[fmt.Sprintf("arg%d", i)] = arg
		}
	}

	for k, v := range e.extras {
		e.keyVals = append(e.keyVals, k, v)
	}
	for _, err := range e.errs {
		e.keyVals = append(e.keyVals, zap.Error(err))
	}
	if e.usr != nil {
		e.keyVals = append(e.keyVals, "user", e.usr.LoginKey())
	}
	return e
}

// report sends e to Rollbar, setting the User as the person of the item.
func (l *RollbarLogger) report(level, msg string, e entry) {
	if l.name != "" {
		msg = l.name + ": " + msg
	}
	interfaces := []interface{}{msg}
	for _, err := range e.errs {
		interfaces = append(interfaces, err)
	}
	if len(e.extras) > 0 {
		interfaces = append(interfaces, e.extras)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e.usr != nil {
		id := e.usr.ID
		if id == "" {
			id = e.usr.LoginKey()
		}
		rollbar.SetPerson(id, e.usr.Name, e.usr.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, interfaces...)
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	e := parse(args)
	l.report(rollbar.DEBUG, msg, e)
	l.zap.Debugw(msg, e.keyVals...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	e := parse(args)
	l.report(rollbar.INFO, msg, e)
	l.zap.Infow(msg, e.keyVals...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	e := parse(args)
	l.report(rollbar.WARN, msg, e)
	l.zap.Warnw(msg, e.keyVals...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	e := parse(args)
	l.report(rollbar.ERR, msg, e)
	l.zap.Errorw(msg, e.keyVals...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	e := parse(args)
	l.report(rollbar.CRIT, msg, e)
	rollbar.Wait()
	l.zap.Fatalw(msg, e.keyVals...)
}
