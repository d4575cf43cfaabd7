package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/seawire/vela/theme"
)

// StyledLogger wraps slog.Logger with Theme-aware formatting
type StyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		Theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithCookie highlights a (redacted) cookie label in a log line
func (sl *StyledLogger) InfoWithCookie(msg string, cookie string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Cookie}.Sprint(cookie))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithCookie(msg string, cookie string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Cookie}.Sprint(cookie))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithUpstream(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Upstream}.Sprint(endpoint))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return &StyledLogger{
		logger: sl.logger.With(args...),
		Theme:  sl.Theme,
	}
}

// NewWithTheme builds the slog logger plus a theme-aware styled wrapper
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logInstance, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	appTheme := theme.GetTheme(cfg.Theme)
	return logInstance, NewStyledLogger(logInstance, appTheme), cleanup, nil
}
