package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
)

// Timestamped генерирует имя файла с меткой времени
func Timestamped(name string) string {
	ts := time.Now().Format("20060102_150405")
	return fmt.Sprintf("%s__%s", ts, filepath.Base(name))
}

// TruncateRunes — безопасное усечение по рунам
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}

// Preview flattens whitespace and truncates s for a single log line.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return TruncateRunes(s, n) + "…"
}

// ParseLevel maps a config level name to a fiber log level. Unknown names
// fall back to info.
func ParseLevel(name string) log.Level {
	switch strings.ToLower(name) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
