package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	tmlog "github.com/tendermint/tendermint/libs/log"
)

var (
	customLog = newLogger(os.Stderr, os.Stderr, 0)
	mu        sync.RWMutex
)

type logger struct {
	debug *log.Logger
	info  *log.Logger
	err   *log.Logger
	out   io.Writer
	dir   string
	file  *os.File
}

func newLogger(out, errOut io.Writer, flags int) logger {
	return logger{
		debug: log.New(out, "[DEBUG] ", flags),
		info:  log.New(out, "[INFOM] ", flags),
		err:   log.New(errOut, "[ERROR] ", flags),
		out:   out,
	}
}

func current() logger {
	mu.RLock()
	defer mu.RUnlock()
	return customLog
}

// InitLogger writes every level to stderr, leaving stdout to command output.
func InitLogger() {
	SetOutput(os.Stderr, os.Stderr)
}

// SetOutput redirects every level, used by tests and embedded daemons.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeFile()
	customLog = newLogger(out, errOut, 0)
}

// ResetLogger moves all output into a per-process file under <home>/logs.
func ResetLogger(home string) (string, error) {
	dir := filepath.Join(home, "logs")
	if home == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(osHome, ".gorad", "logs")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}

	Infof("From now on, all logs will be written to %s", path)

	format := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	mu.Lock()
	closeFile()
	customLog = newLogger(file, file, format)
	customLog.dir = dir
	customLog.file = file
	mu.Unlock()

	return path, nil
}

func closeFile() {
	if customLog.file != nil {
		_ = customLog.file.Close()
	}
}

// TMLogger returns a key/value logger over the current info output, for
// components that take a tendermint logger.
func TMLogger() tmlog.Logger {
	return tmlog.NewTMLogger(tmlog.NewSyncWriter(current().out))
}

func Debug(v ...any) {
	_ = current().debug.Output(2, fmt.Sprint(v...))
}

func Debugf(format string, v ...any) {
	_ = current().debug.Output(2, fmt.Sprintf(format, v...))
}

func Info(v ...any) {
	_ = current().info.Output(2, fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	_ = current().info.Output(2, fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	_ = current().err.Output(2, fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	_ = current().err.Output(2, fmt.Sprintf(format, v...))
}

func Fatal(v ...any) {
	_ = current().err.Output(2, fmt.Sprint(v...))
	log.Fatal(v...)
}

func Fatalf(format string, v ...any) {
	_ = current().err.Output(2, fmt.Sprintf(format, v...))
	log.Fatalf(format, v...)
}
