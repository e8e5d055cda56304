package logsvc

import (
	"io"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/twahidin/project-lumos/core"
)

const logMaxAge = 7 * 24 * time.Hour

func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewZap builds the process logger: human readable in debug mode, JSON otherwise.
// When conf.Log.File is set, entries also go to a file rotated daily.
func NewZap(conf *core.Config) (*zap.Logger, error) {
	lvl := levelFromString(conf.Log.Level)

	var encoder zapcore.Encoder
	if conf.Debug {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var out io.Writer = os.Stdout
	if conf.Log.File != "" {
		rl, err := rotatelogs.New(
			conf.Log.File+".%Y%m%d",
			rotatelogs.WithLinkName(conf.Log.File),
			rotatelogs.WithMaxAge(logMaxAge),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return nil, errors.Wrap(err, "opening log file")
		}
		out = io.MultiWriter(os.Stdout, rl)
	}

	zcore := zapcore.NewCore(encoder, zapcore.AddSync(out), lvl)
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(zcore, opts...).With(zap.String("app", conf.AppName), zap.String("env", conf.Env)), nil
}
