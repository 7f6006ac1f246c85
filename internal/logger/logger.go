package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rl1809/duka/internal/core/domain"
)

var l *zap.Logger

func Init(service, level string) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "@timestamp"
	encCfg.MessageKey = "message"
	encCfg.LevelKey = "level"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)
	base := zap.New(core).With(
		zap.String("service", service),
	)

	l = base
	zap.ReplaceGlobals(l)
	return nil
}

func L() *zap.Logger {
	if l == nil {
		_ = Init("duka", "")
	}
	return l
}

// OrNop lets components accept a nil logger.
func OrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

func WithSession(log *zap.Logger, sess domain.Session) *zap.Logger {
	return OrNop(log).With(
		zap.String("shop_id", sess.ShopID),
		zap.String("actor_id", sess.ActorID),
		zap.String("role", string(sess.Role)),
	)
}

func WithTask(taskID, queue, taskType string) *zap.Logger {
	return L().With(
		zap.String("task_id", taskID),
		zap.String("queue", queue),
		zap.String("task_type", taskType),
	)
}
