package logging

// Leveled logging for cecat. Errors always reach stderr; info and below are
// gated by the level, and everything is mirrored to an optional log file.

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// Logger provides leveled logging to stdout/stderr and an optional file.
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	file    *os.File
	fileLog *log.Logger
	stdout  *log.Logger
	stderr  *log.Logger
}

// NewLogger creates a new logger. logFile may be empty.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	l := &Logger{
		level:  level,
		stdout: log.New(os.Stdout, "", 0),
		stderr: log.New(os.Stderr, "", 0),
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.fileLog = log.New(file, "", log.LstdFlags)
	}

	return l, nil
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.write(fmt.Sprintf("ERROR: "+format, v...), true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write(fmt.Sprintf("INFO: "+format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.write(fmt.Sprintf("[VERBOSE] "+format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.write(fmt.Sprintf("DEBUG: "+format, v...), false)
	}
}

// write delivers a message: file always, stderr for errors, stdout only at
// verbose and above so cyclic output stays quiet by default.
func (l *Logger) write(msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		l.fileLog.Println(msg)
	}

	if isError {
		l.stderr.Println(msg)
	} else if l.level >= LogLevelVerbose {
		l.stdout.Println(msg)
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogTransfer logs one register transaction at verbose level, or at info on
// failure, with the working counter detail a bus trace needs.
func (l *Logger) LogTransfer(op string, slave int, addr uint16, n, wkc int, err error) {
	if err != nil {
		l.Info("%s slave %d addr 0x%04X len %d FAILED (wkc %d): %v", op, slave, addr, n, wkc, err)
		return
	}
	l.Verbose("%s slave %d addr 0x%04X len %d ok (wkc %d)", op, slave, addr, n, wkc)
}

// LogHex logs hex data at debug level.
func (l *Logger) LogHex(label string, data []byte) {
	if l.GetLevel() < LogLevelDebug {
		return
	}
	hexStr := fmt.Sprintf("%x", data)
	formatted := ""
	for i := 0; i < len(hexStr); i += 2 {
		if i > 0 {
			formatted += " "
		}
		if i+2 <= len(hexStr) {
			formatted += hexStr[i : i+2]
		} else {
			formatted += hexStr[i:]
		}
	}
	l.Debug("%s: %s", label, formatted)
}
