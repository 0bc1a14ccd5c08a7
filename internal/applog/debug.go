// Package applog provides the engine's rotating debug log, toggled by the
// BRISKDL_DEBUG environment variable so normal runs pay no logging cost.
// Grounded on the teacher's internal/utils debug log (only its test survived
// retrieval; this reconstructs the contract the test asserts: a
// debug-<timestamp>.log file per process under the configured logs dir,
// lazily opened once, with old files pruned by CleanupLogs).
package applog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var (
	once     sync.Once
	mu       sync.Mutex
	logger   *log.Logger
	logFile  *os.File
	logsDir  string
	enabled  = os.Getenv("BRISKDL_DEBUG") != ""
)

// ConfigureDebug points future log files at dir, closing any file already
// opened under the previous directory. Primarily for tests.
func ConfigureDebug(dir string) {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		logger = nil
	}
	logsDir = dir
	once = sync.Once{}
}

func openLogFile() {
	if logsDir == "" {
		return
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return
	}
	name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	logFile = f
	logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
}

// Debug writes a formatted line to the current log file if debug logging
// is enabled. It returns immediately otherwise, so call sites can log
// liberally without a hot-path cost.
func Debug(format string, args ...any) {
	if !enabled {
		return
	}
	once.Do(func() {
		mu.Lock()
		if logsDir == "" {
			logsDir = DefaultLogsDir()
		}
		openLogFile()
		mu.Unlock()
	})

	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		return
	}
	l.Printf(format, args...)
}

// CleanupLogs removes the oldest debug log files under the configured logs
// directory, keeping at most `keep` of the newest ones.
func CleanupLogs(keep int) {
	mu.Lock()
	dir := logsDir
	mu.Unlock()
	if dir == "" || keep < 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if len(n) >= len("debug-.log") && n[:6] == "debug-" {
			names = append(names, n)
		}
	}
	sort.Strings(names) // timestamp-embedded names sort chronologically
	if len(names) <= keep {
		return
	}
	for _, n := range names[:len(names)-keep] {
		os.Remove(filepath.Join(dir, n))
	}
}

// DefaultLogsDir is overridden by internal/config at startup; it exists here
// so applog has no import-cycle dependency on the config package.
var defaultLogsDirFn = func() string { return os.TempDir() }

func SetDefaultLogsDirFunc(fn func() string) { defaultLogsDirFn = fn }
func DefaultLogsDir() string                 { return defaultLogsDirFn() }
