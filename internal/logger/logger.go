// Package logger builds the application-wide zap logger. Production gets
// JSON on stdout, development a colourised console encoder. When a file path
// is configured the same JSON stream is also written through lumberjack so
// log files rotate instead of growing unbounded.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New constructs a logger for the given environment. filePath may be empty.
func New(env, filePath string) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)

	if env == "production" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
		level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}

	if filePath != "" {
		fileEncCfg := zap.NewProductionEncoderConfig()
		fileEncCfg.TimeKey = "ts"
		fileEncCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    100, // megabytes
			MaxBackups: 7,
			MaxAge:     30, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncCfg), fileSink, level))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return log, nil
}
