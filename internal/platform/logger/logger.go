package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config はロガーの設定
// Level と Format は環境変数（LOG_LEVEL / LOG_FORMAT）由来の文字列をそのまま受け取る
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// DefaultConfig はデフォルトのロガー設定
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

// Option は New のオプション設定
type Option func(*options)

type options struct {
	writer io.Writer
}

// WithWriter は出力先を上書きする
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// ParseLevel はレベル文字列をslog.Levelに変換する。未知の値はInfo扱い
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New は新しいロガーを作成し、デフォルトロガーとして設定します
func New(cfg Config, opts ...Option) *slog.Logger {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(o.writer, handlerOpts)
	default: // "json"
		handler = slog.NewJSONHandler(o.writer, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
