package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

/*
Per-process logging.

Every process (orchestrator, fetcher_i, parser_j) writes its own rotating
log file under log_dir/pod_{k}/, capped at 100 MiB with 5 backups. When
stderr is a terminal the same events also go there, pretty-printed.
*/

const (
	maxLogSizeMB  = 100
	maxLogBackups = 5
)

// NewProcessLogger builds the logger for one process. role is
// "orchestrator", "fetcher_<i>" or "parser_<j>".
func NewProcessLogger(logDir string, podID int, role string) zerolog.Logger {
	writers := []io.Writer{newRotatingWriter(logDir, podID, role)}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Int("pod", podID).
		Str("proc", role).
		Logger()
}

func newRotatingWriter(logDir string, podID int, role string) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, fmt.Sprintf("pod_%d", podID), role+".log"),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
	}
}

// FetcherRole and ParserRole name child processes consistently across the
// orchestrator and the log tree.
func FetcherRole(index int) string {
	return fmt.Sprintf("fetcher_%d", index)
}

func ParserRole(index int) string {
	return fmt.Sprintf("parser_%d", index)
}

const OrchestratorRole = "orchestrator"
