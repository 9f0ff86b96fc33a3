package logger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reelforge/app/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap.Logger.
type Logger struct {
	*zap.Logger
	sugar      *zap.SugaredLogger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new logger instance with the given configuration.
func New(cfg config.LogConfig) *Logger {
	// Resolve log level
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	case "fatal":
		level = zapcore.FatalLevel
	}

	// Encoder configuration
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Pick the encoder
	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		// Friendlier encoder configuration for text output
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	// Pick the output
	var writeSyncer zapcore.WriteSyncer
	var core zapcore.Core

	switch cfg.Output {
	case "stdout":
		writeSyncer = zapcore.AddSync(os.Stdout)
		core = zapcore.NewCore(encoder, writeSyncer, level)
	case "file":
		// Make sure the log directory exists
		logDir := filepath.Dir("data/logs/app.log")
		if err := os.MkdirAll(logDir, 0755); err != nil {
			panic("failed to create log directory: " + err.Error())
		}

		// Use the current date as part of the log file name
		currentDate := time.Now().Format("2006-01-02")
		logFileName := filepath.Join(logDir, currentDate+".log")

		// Configure lumberjack for log rotation
		lumberjackLogger := &lumberjack.Logger{
			Filename:   logFileName,
			MaxSize:    cfg.MaxSize,    // megabytes
			MaxBackups: cfg.MaxBackups, // number of backups
			MaxAge:     cfg.MaxAge,     // days
			Compress:   cfg.Compress,   // compress rotated files
		}

		fileWriter := zapcore.AddSync(lumberjackLogger)

		// In debug mode write to both the file and stdout
		if cfg.Level == "debug" {
			// Colored encoder for the console
			consoleEncoderConfig := encoderConfig
			consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig)

			fileCore := zapcore.NewCore(encoder, fileWriter, level)
			consoleCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level)
			core = zapcore.NewTee(fileCore, consoleCore)
		} else {
			core = zapcore.NewCore(encoder, fileWriter, level)
		}

		// Background task that rolls over to a new log file each day
		ctx, cancel := context.WithCancel(context.Background())
		logger := &Logger{
			Logger:     zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
			cancelFunc: cancel,
		}
		logger.sugar = logger.Logger.Sugar()

		logger.wg.Add(1)
		go logger.dailyRotateRoutine(ctx, lumberjackLogger, logDir)

		return logger
	default:
		writeSyncer = zapcore.AddSync(os.Stdout)
		core = zapcore.NewCore(encoder, writeSyncer, level)
	}

	// Create the logger
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		Logger: logger,
		sugar:  logger.Sugar(),
	}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	logger := zap.NewNop()
	return &Logger{
		Logger: logger,
		sugar:  logger.Sugar(),
	}
}

// dailyRotateRoutine is the background task for daily log rotation.
func (l *Logger) dailyRotateRoutine(ctx context.Context, lumberjackLogger *lumberjack.Logger, logDir string) {
	defer l.wg.Done()

	for {
		now := time.Now()
		nextDay := now.AddDate(0, 0, 1)
		nextDay = time.Date(nextDay.Year(), nextDay.Month(), nextDay.Day(), 0, 0, 0, 0, nextDay.Location())
		sleepDuration := nextDay.Sub(now)

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration + time.Second): // one second of slack to be sure midnight has passed
			// Switch to a new log file
			newDate := nextDay.Format("2006-01-02")
			newLogFileName := filepath.Join(logDir, newDate+".log")
			lumberjackLogger.Filename = newLogFileName
			// Force-close the current file so the next write opens the new one
			_ = lumberjackLogger.Close()
		}
	}
}

// Close shuts the logger down and waits for background tasks.
func (l *Logger) Close() error {
	if l.cancelFunc != nil {
		l.cancelFunc()
		l.wg.Wait()
	}
	return l.Logger.Sync()
}

// Sugar returns the SugaredLogger instance for more flexible logging.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// WithField adds a field to the logger.
func (l *Logger) WithField(key string, value interface{}) *zap.Logger {
	return l.Logger.With(zap.Any(key, value))
}

// WithFields adds multiple fields to the logger.
func (l *Logger) WithFields(fields map[string]interface{}) *zap.Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return l.Logger.With(zapFields...)
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *zap.Logger {
	return l.Logger.With(zap.Error(err))
}

// Convenience methods using the SugaredLogger formatting.
func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

func (l *Logger) Fatalf(template string, args ...interface{}) {
	l.sugar.Fatalf(template, args...)
}

// Convenience methods using structured logging.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}

func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.Logger.Fatal(msg, fields...)
}

// Sync flushes any buffered entries.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
