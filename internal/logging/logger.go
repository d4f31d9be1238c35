// Package logging builds the zap loggers used across the server.
package logging

import (
	"fmt"
	"os"

	"github.com/samber/oops"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the given level and environment. Production
// logs are JSON, everything else uses the console encoder.
func New(level, environment string) (*zap.Logger, error) {
	return NewWithSink(level, environment, zapcore.AddSync(os.Stdout))
}

// NewWithSink is New with an explicit output, used by tests.
func NewWithSink(level, environment string, output zapcore.WriteSyncer) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		logLevel = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if environment == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, output, logLevel)
	return zap.New(core, zap.AddCaller()), nil
}

// WithRequestID adds the request id to the logger.
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	if requestID == "" {
		return logger
	}
	return logger.With(zap.String("request_id", requestID))
}

// WithComponent adds a component name to the logger.
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}

// ErrorFields returns zap fields describing err. Errors built with oops
// also carry their code and context attributes.
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, zap.String("code", fmt.Sprint(code)))
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			fields = append(fields, zap.Any("context", ctx))
		}
	}
	return fields
}

// Error logs msg at error level with the structured details of err.
func Error(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	logger.Error(msg, append(ErrorFields(err), fields...)...)
}
