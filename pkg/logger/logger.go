package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"

	logFileName   = "dpk.log"
	maxSizeMB     = 100 // 单个日志文件最大尺寸
	maxBackups    = 10  // 保留的旧日志文件数量
	maxAgeDays    = 7   // 旧日志保留天数
	defaultLevel  = "info"
	defaultFormat = FormatConsole
)

type LogOption struct {
	Format   string // 日志格式："console" 或 "json"
	LogDir   string // 日志目录，为空时输出到 stderr
	Level    string // 日志级别：debug / info / warn / error
	Compress bool   // 是否压缩旧日志文件
}

// global 同时保存原始 logger 和供 *f 辅助函数使用的 sugar（多跳过一层调用栈）
type global struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

var current atomic.Pointer[global]

func newGlobal(l *zap.Logger) *global {
	return &global{base: l, sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func init() {
	l, _ := build(LogOption{})
	current.Store(newGlobal(l))
}

// InitLogger 按配置初始化全局日志，可重复调用，后一次覆盖前一次
func InitLogger(opt LogOption) error {
	l, err := build(opt)
	if err != nil {
		return err
	}
	if old := current.Swap(newGlobal(l)); old != nil {
		_ = old.base.Sync()
	}
	return nil
}

// NewLogger 创建独立的 logger，不影响全局实例
func NewLogger(opt LogOption) (*zap.Logger, error) {
	return build(opt)
}

func build(opt LogOption) (*zap.Logger, error) {
	levelText := opt.Level
	if levelText == "" {
		levelText = defaultLevel
	}
	level, err := zapcore.ParseLevel(levelText)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opt.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opt.Format) {
	case "", defaultFormat:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", opt.Format)
	}

	var sink zapcore.WriteSyncer
	if opt.LogDir == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		if err := os.MkdirAll(opt.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir %s: %w", opt.LogDir, err)
		}
		// lumberjack 负责按大小切割、按天数清理
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opt.LogDir, logFileName),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   opt.Compress,
			LocalTime:  true,
		})
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()), nil
}

// Logger 返回当前全局 logger（供需要结构化字段的调用方使用）
func Logger() *zap.Logger {
	return current.Load().base
}

func sugar() *zap.SugaredLogger {
	return current.Load().sugar
}

func Debugf(format string, args ...any) { sugar().Debugf(format, args...) }
func Infof(format string, args ...any)  { sugar().Infof(format, args...) }
func Warnf(format string, args ...any)  { sugar().Warnf(format, args...) }
func Errorf(format string, args ...any) { sugar().Errorf(format, args...) }

func Sync() error {
	return current.Load().base.Sync()
}
