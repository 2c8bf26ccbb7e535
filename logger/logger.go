package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pedestrian_staging/config"
)

var (
	// Global logger instances
	InfoLogger   *log.Logger
	ErrorLogger  *log.Logger
	DebugLogger  *log.Logger
	WarnLogger   *log.Logger
	logFile      *os.File
	logLevel     = INFO
	logToConsole bool
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

var levels = map[string]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// Init initializes the logging system using the logging section of the configuration
func Init(cfg config.LoggingConfig) error {
	logToConsole = cfg.LogToConsole
	logLevel = strings.ToLower(cfg.LogLevel)

	logPath := cfg.LogFile
	if !filepath.IsAbs(logPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current working directory: %w", err)
		}
		logPath = filepath.Join(cwd, logPath)
	}

	var err error
	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	var out, errOut io.Writer = logFile, logFile
	if logToConsole {
		out = io.MultiWriter(os.Stdout, logFile)
		errOut = io.MultiWriter(os.Stderr, logFile)
	}

	// Lines are written without flags; the session banner carries the timestamp
	InfoLogger = log.New(out, "", 0)
	ErrorLogger = log.New(errOut, "", 0)
	DebugLogger = log.New(out, "", 0)
	WarnLogger = log.New(out, "", 0)

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	InfoLogger.Printf("=== Pipeline session started at %s ===\n", timestamp)
	InfoLogger.Printf("Log file: %s\n", logPath)
	InfoLogger.Printf("Log level: %s\n", logLevel)
	LogDivider()

	return nil
}

// Close closes the log file
func Close() error {
	if logFile == nil {
		return nil
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	LogDivider()
	InfoLogger.Printf("=== Pipeline session ended at %s ===\n\n", timestamp)
	err := logFile.Close()
	logFile = nil
	InfoLogger, ErrorLogger, DebugLogger, WarnLogger = nil, nil, nil, nil
	return err
}

// shouldLog determines if a message should be logged based on log level
func shouldLog(messageLevel string) bool {
	currentLevel, exists := levels[logLevel]
	if !exists {
		currentLevel = levels[INFO]
	}

	messageLogLevel, exists := levels[messageLevel]
	if !exists {
		return true
	}

	return messageLogLevel >= currentLevel
}

// IsDebug reports whether debug output is enabled
func IsDebug() bool {
	return shouldLog(DEBUG)
}

func emit(l *log.Logger, level, prefix, format string, v ...interface{}) {
	if !shouldLog(level) {
		return
	}
	if l != nil {
		l.Printf(prefix+format, v...)
		return
	}
	if level == ERROR {
		fmt.Fprintf(os.Stderr, prefix+format, v...)
		return
	}
	fmt.Printf(prefix+format, v...)
}

// Printf prints formatted text to log (respects log level)
func Printf(format string, v ...interface{}) {
	emit(InfoLogger, INFO, "", format, v...)
}

// Println prints a line to log (respects log level)
func Println(v ...interface{}) {
	emit(InfoLogger, INFO, "", "%s", fmt.Sprintln(v...))
}

// Debugf prints formatted debug text
func Debugf(format string, v ...interface{}) {
	emit(DebugLogger, DEBUG, "DEBUG: ", format, v...)
}

// Warnf prints formatted warning text
func Warnf(format string, v ...interface{}) {
	emit(WarnLogger, WARN, "WARN: ", format, v...)
}

// Errorf prints formatted error text (always logged regardless of level)
func Errorf(format string, v ...interface{}) {
	emit(ErrorLogger, ERROR, "ERROR: ", format, v...)
}

// Fatalf prints formatted fatal error and exits (always logged)
func Fatalf(format string, v ...interface{}) {
	emit(ErrorLogger, ERROR, "FATAL: ", format, v...)
	Close()
	os.Exit(1)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v\n", command, args[1:])
		return
	}
	Printf("Command executed: %s\n", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println(strings.Repeat("-", 60))
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	status := "✅ %s: SUCCESS"
	if !success {
		status = "❌ %s: FAILED"
	}
	line := fmt.Sprintf(status, operation)
	if details != "" {
		line += " - " + details
	}
	Println(line)
}

// LogProgress logs progress information
func LogProgress(current, total int, item string) {
	Printf("Progress: [%d/%d] %s\n", current, total, item)
}

// LogStage runs fn as a named pipeline stage, logging its outcome and duration
func LogStage(name string, fn func() error) (time.Duration, error) {
	Printf("▶ %s\n", name)
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if err != nil {
		LogResult(name, false, fmt.Sprintf("%v (after %v)", err, elapsed.Round(time.Millisecond)))
		return elapsed, err
	}
	LogResult(name, true, elapsed.Round(time.Millisecond).String())
	return elapsed, nil
}

// GetLogFileName returns the current log file name
func GetLogFileName() string {
	if logFile != nil {
		return logFile.Name()
	}
	return "result.log"
}
