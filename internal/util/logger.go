// Package util holds the logging setup and host helpers shared by the
// rconsole commands.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFilePrefix starts the name of every log file written by InitLogger.
const LogFilePrefix = "rconsole_"

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level      string `toml:"level" json:"level"`
	Directory  string `toml:"directory" json:"directory"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	Console    bool   `toml:"console" json:"console"`
}

// DefaultLogConfig returns the default logging configuration. File logging
// is off until a directory is set.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "warn",
		Directory:  "",
		MaxBackups: 5,
		Console:    true,
	}
}

var (
	logFileMu sync.Mutex
	logFile   *os.File
)

// InitLogger configures the zerolog global logger. Console output goes to
// stderr because stdout carries command output.
func InitLogger(cfg LogConfig) error {
	return initLogger(cfg, os.Stderr)
}

func initLogger(cfg LogConfig, console io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	var logFilePath string

	if cfg.Directory != "" {
		if err := EnsureDir(cfg.Directory); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
		}

		logFilePath = filepath.Join(cfg.Directory, LogFilePrefix+time.Now().Format("2006-01-02")+".log")
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
		}

		logFileMu.Lock()
		if logFile != nil {
			logFile.Close()
		}
		logFile = f
		logFileMu.Unlock()

		writers = append(writers, f)
	}

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: "15:04:05",
		})
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "rconsole").
		Logger()

	log.Debug().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	if logFilePath != "" {
		cleanOldLogs(cfg.Directory, cfg.MaxBackups)
	}
	return nil
}

// CloseLogger closes the log file opened by InitLogger, if any.
func CloseLogger() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// cleanOldLogs keeps the newest maxBackups log files. File names carry the
// date, so lexical order is chronological.
func cleanOldLogs(directory string, maxBackups int) {
	if maxBackups <= 0 {
		return
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, LogFilePrefix) && filepath.Ext(name) == ".log" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for i := 0; i < len(names)-maxBackups; i++ {
		path := filepath.Join(directory, names[i])
		if err := os.Remove(path); err == nil {
			log.Debug().Str("file", path).Msg("removed old log file")
		}
	}
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
