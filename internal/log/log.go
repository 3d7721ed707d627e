package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"consentscan/internal/config"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
)

// L returns the process logger.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &logger
}

// Setup configures the process logger from config. Unknown writers are
// ignored; an empty writer list keeps console output.
func Setup(cfg *config.Config) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	for _, w := range cfg.Log.Writer {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		case "file":
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.Log.File,
				MaxSize:    20, // MB
				MaxBackups: 5,
				MaxAge:     14, // days
				Compress:   true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()

	mu.Lock()
	logger = l
	mu.Unlock()
}
