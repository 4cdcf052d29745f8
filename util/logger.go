package util

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName 日志文件名
const LogFileName = "iisctl.log"

var (
	DebugMode = false
	logger    = newLogger(zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr))
)

// bracketLevelEncoder 输出 [INFO] 形式的级别前缀
func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
		EncodeLevel:      bracketLevelEncoder,
		ConsoleSeparator: " ",
	}
}

// newLogger 普通日志写 out，错误日志写 errOut
func newLogger(out, errOut zapcore.WriteSyncer) *zap.SugaredLogger {
	enc := zapcore.NewConsoleEncoder(encoderConfig())
	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l < zapcore.ErrorLevel })
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })
	core := zapcore.NewTee(
		zapcore.NewCore(enc, out, low),
		zapcore.NewCore(enc, errOut, high),
	)
	return zap.New(core).Sugar()
}

// SetOutput 将所有级别的日志重定向到 w（测试用）
func SetOutput(w io.Writer) {
	ws := zapcore.AddSync(w)
	logger = newLogger(ws, ws)
}

// SetupFileLogging 同时输出到控制台和 dir 下的滚动日志文件
// 返回的函数用于关闭日志文件
func SetupFileLogging(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFileName),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // 天
		Compress:   true,
	}

	file := zapcore.AddSync(rotator)
	logger = newLogger(
		zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stdout), file),
		zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stderr), file),
	)

	return func() {
		_ = logger.Sync()
		rotator.Close()
	}, nil
}

func Debug(format string, v ...interface{}) {
	if DebugMode {
		logger.Debugf(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	logger.Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}
