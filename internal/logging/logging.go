// Package logging zerolog 初始化
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options 日志选项
type Options struct {
	Level   string
	Console bool      // 人类可读输出；否则输出 JSON
	Out     io.Writer // 默认 os.Stderr
}

// New 按配置创建 logger，并设置全局级别；无法解析的级别按 info 处理
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
