// Package replaylog реализует компонентное логирование для движка воспроизведения,
// по образцу internal/logging в исходном игровом сервере: уровневый логгер,
// пишущий одновременно в консоль и (опционально) в файл, с раздельными порогами
// для каждого назначения.
package replaylog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level определяет уровень логирования.
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня.
func (l Level) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger пишет сообщения в консоль и, если настроен, в файл компонента.
type Logger struct {
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel Level
	minFileLevel    Level
}

// NewLogger создаёт логгер для компонента. Если logDir пуст, файл не создаётся —
// логгер пишет только в консоль (удобно для тестов).
func NewLogger(component, logDir string) (*Logger, error) {
	l := &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: INFO,
		minFileLevel:    TRACE,
	}

	if logDir == "" {
		return l, nil
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("replaylog: создание директории логов: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(logDir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("replaylog: открытие файла логов: %w", err)
	}

	l.file = file
	l.fileLogger = log.New(file, "", log.LstdFlags)
	return l, nil
}

// Close закрывает файл лога, если он был открыт.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	message := fmt.Sprintf("[%s] [%s] %s", level, l.component, fmt.Sprintf(format, args...))

	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// SetLevels переопределяет пороги логирования для консоли и файла.
func (l *Logger) SetLevels(console, file Level) {
	l.minConsoleLevel = console
	l.minFileLevel = file
}

var (
	managerMu sync.RWMutex
	loggers   = make(map[string]*Logger)
	logDir    string
)

// SetLogDir задаёт директорию для файловых логов всех последующих
// GetLogger-вызовов. Пустая строка отключает файловое логирование.
func SetLogDir(dir string) {
	managerMu.Lock()
	defer managerMu.Unlock()
	logDir = dir
}

// GetLogger возвращает (создавая при необходимости) логгер для компонента.
func GetLogger(component string) *Logger {
	managerMu.RLock()
	if l, ok := loggers[component]; ok {
		managerMu.RUnlock()
		return l
	}
	managerMu.RUnlock()

	managerMu.Lock()
	defer managerMu.Unlock()

	if l, ok := loggers[component]; ok {
		return l
	}

	l, err := NewLogger(component, logDir)
	if err != nil {
		// Фоллбэк на консоль-only логгер, чтобы вызывающий код не падал
		// из-за недоступной файловой системы логов.
		l = &Logger{
			component:       component,
			consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
			minConsoleLevel: INFO,
			minFileLevel:    ERROR,
		}
	}

	loggers[component] = l
	return l
}

// CloseAll закрывает все созданные компонентные логгеры.
func CloseAll() error {
	managerMu.Lock()
	defer managerMu.Unlock()

	var lastErr error
	for name, l := range loggers {
		if err := l.Close(); err != nil {
			lastErr = fmt.Errorf("closing logger %s: %w", name, err)
		}
	}
	loggers = make(map[string]*Logger)
	return lastErr
}
