package logger

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/lumberjack.v3"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

type Config struct {
	Level      string
	Filename   string // пусто: без файла
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
}

// New собирает логгер: цветная консоль в stdout плюс JSON-файл с ротацией, если задан Filename.
// Переменная LOG_LEVEL важнее Level из конфига.
func New(conf Config) (*zap.Logger, error) {
	level := zap.InfoLevel
	if conf.Level != "" {
		parsed, err := zapcore.ParseLevel(conf.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", conf.Level)
		}
		level = parsed
	}
	if levelEnv := os.Getenv("LOG_LEVEL"); levelEnv != "" {
		if parsedLevel, err := zapcore.ParseLevel(levelEnv); err == nil {
			level = parsedLevel
		}
	}
	logLevel := zap.NewAtomicLevelAt(level)

	developmentCfg := zap.NewDevelopmentEncoderConfig()
	developmentCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	developmentCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(developmentCfg), zapcore.AddSync(os.Stdout), logLevel),
	}

	if conf.Filename != "" {
		fileHandler, err := lumberjack.New(
			lumberjack.WithFileName(conf.Filename),
			lumberjack.WithMaxBytes(int64(conf.MaxSize*1024*1024)),
			lumberjack.WithMaxBackups(conf.MaxBackups),
			lumberjack.WithMaxDays(conf.MaxAge),
			lumberjack.WithCompress(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "create file handler")
		}

		productionCfg := zap.NewProductionEncoderConfig()
		productionCfg.TimeKey = "timestamp"
		productionCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(productionCfg), zapcore.AddSync(fileHandler), logLevel))
	}

	return zap.New(zapcore.NewTee(cores...)).With(zap.String("service", serviceName)), nil
}

// Init делает l логгером для пакетных Info/Error/Fatal.
func Init(l *zap.Logger) {
	InfoLogger = l
	FatalLogger = l
}

func Info(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Info(msg)
}

func Error(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Error(msg)
}

func Fatal(format string, args ...interface{}) {
	if FatalLogger == nil {
		panic("FatalLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}
