// Package logger provides context-scoped structured logging on top of
// logrus, mirroring the teacher's logger.GetLogger(ctx) convention:
// every stage and handler pulls its logger out of context so a
// correlation id (video id, job id, conversation id) rides along
// without threading an extra parameter through every call.
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
}

// SetLevel sets the base logger's level (wired from config.Config.LogLevel).
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

// WithField returns a context carrying a logger with field added on
// top of whatever logger was already attached (or the base logger).
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	entry := GetLogger(ctx).WithField(key, value)
	return context.WithValue(ctx, ctxKey{}, entry)
}

// WithFields is the multi-field variant of WithField.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	entry := GetLogger(ctx).WithFields(fields)
	return context.WithValue(ctx, ctxKey{}, entry)
}

// GetLogger pulls the *logrus.Entry attached to ctx, or the base
// logger's entry if none was attached.
func GetLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok && entry != nil {
		return entry
	}
	return logrus.NewEntry(base)
}

// CloneContext detaches a logger-bearing context from its parent's
// cancellation/deadline (used when spawning a heartbeat or background
// task that must keep logging fields but must not inherit a request's
// cancellation).
func CloneContext(ctx context.Context) context.Context {
	entry := GetLogger(ctx)
	return context.WithValue(context.Background(), ctxKey{}, entry)
}

func Info(ctx context.Context, args ...interface{})  { GetLogger(ctx).Info(args...) }
func Warn(ctx context.Context, args ...interface{})  { GetLogger(ctx).Warn(args...) }
func Error(ctx context.Context, args ...interface{}) { GetLogger(ctx).Error(args...) }

func Infof(ctx context.Context, format string, args ...interface{})  { GetLogger(ctx).Infof(format, args...) }
func Warnf(ctx context.Context, format string, args ...interface{})  { GetLogger(ctx).Warnf(format, args...) }
func Errorf(ctx context.Context, format string, args ...interface{}) { GetLogger(ctx).Errorf(format, args...) }

// PipelineInfo/Warn/Error log a stage/action event with structured
// fields, matching the teacher's pipelineInfo/pipelineWarn/pipelineError
// helpers used throughout chat_pipline.
func PipelineInfo(ctx context.Context, stage, action string, fields map[string]interface{}) {
	logWithStage(ctx, logrus.InfoLevel, stage, action, fields)
}

func PipelineWarn(ctx context.Context, stage, action string, fields map[string]interface{}) {
	logWithStage(ctx, logrus.WarnLevel, stage, action, fields)
}

func PipelineError(ctx context.Context, stage, action string, fields map[string]interface{}) {
	logWithStage(ctx, logrus.ErrorLevel, stage, action, fields)
}

func logWithStage(ctx context.Context, level logrus.Level, stage, action string, fields map[string]interface{}) {
	entry := GetLogger(ctx).WithField("stage", stage).WithField("action", action)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Log(level)
}
