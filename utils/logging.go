package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// LogWriter fans log entries out to the configured outputs with per-output levels.
type LogWriter struct {
	stderrLevel logger.Level
	stderr      io.Writer
	fileLevel   logger.Level
	file        *os.File
	formatter   logger.Formatter
}

// InitLogger configures the standard logrus logger from Config.Logging.
func InitLogger() (*LogWriter, *logger.Logger) {
	log := logger.StandardLogger()
	writer := &LogWriter{
		stderrLevel: logger.InfoLevel,
		fileLevel:   logger.InfoLevel,
		formatter:   &logger.TextFormatter{FullTimestamp: true},
	}

	if Config != nil {
		if Config.Logging.OutputLevel != "" {
			if level, err := logger.ParseLevel(Config.Logging.OutputLevel); err == nil {
				writer.stderrLevel = level
			}
		}
		if Config.Logging.OutputStderr {
			writer.stderr = os.Stderr
		} else {
			writer.stderr = os.Stdout
		}

		if Config.Logging.FilePath != "" {
			if level, err := logger.ParseLevel(Config.Logging.FileLevel); err == nil {
				writer.fileLevel = level
			}
			file, err := os.OpenFile(Config.Logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				log.WithError(err).Errorf("failed opening log file %v", Config.Logging.FilePath)
			} else {
				writer.file = file
			}
		}
	} else {
		writer.stderr = os.Stdout
	}

	maxLevel := writer.stderrLevel
	if writer.file != nil && writer.fileLevel > maxLevel {
		maxLevel = writer.fileLevel
	}

	log.SetLevel(maxLevel)
	log.SetOutput(io.Discard)
	log.AddHook(writer)

	return writer, log
}

func (w *LogWriter) Levels() []logger.Level {
	return logger.AllLevels
}

func (w *LogWriter) Fire(entry *logger.Entry) error {
	line, err := w.formatter.Format(entry)
	if err != nil {
		return err
	}
	if w.stderr != nil && entry.Level <= w.stderrLevel {
		w.stderr.Write(line)
	}
	if w.file != nil && entry.Level <= w.fileLevel {
		w.file.Write(line)
	}
	return nil
}

// Dispose closes the log file, if any.
func (w *LogWriter) Dispose() {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

// LogFatal logs a fatal error with callstack info that skips callerSkip many levels with arbitrarily many additional infos.
// callerSkip equal to 0 gives you info directly where LogFatal is called.
func LogFatal(err error, errorMsg interface{}, callerSkip int, additionalInfos ...map[string]interface{}) {
	logErrorInfo(err, callerSkip, additionalInfos...).Fatal(errorMsg)
}

// LogError logs an error with callstack info that skips callerSkip many levels with arbitrarily many additional infos.
// callerSkip equal to 0 gives you info directly where LogError is called.
func LogError(err error, errorMsg interface{}, callerSkip int, additionalInfos ...map[string]interface{}) {
	logErrorInfo(err, callerSkip, additionalInfos...).Error(errorMsg)
}

func logErrorInfo(err error, callerSkip int, additionalInfos ...map[string]interface{}) *logger.Entry {
	logFields := logger.NewEntry(logger.New())

	pc, fullFilePath, line, ok := runtime.Caller(callerSkip + 2)
	if ok {
		logFields = logFields.WithFields(logger.Fields{
			"_file":     filepath.Base(fullFilePath),
			"_function": runtime.FuncForPC(pc).Name(),
			"_line":     line,
		})
	} else {
		logFields = logFields.WithField("runtime", "Callstack cannot be read")
	}

	errColl := []string{}
	for {
		errColl = append(errColl, fmt.Sprint(err))
		nextErr := errors.Unwrap(err)
		if nextErr != nil {
			err = nextErr
		} else {
			break
		}
	}

	errMarkSign := "~"
	for idx := 0; idx < (len(errColl) - 1); idx++ {
		errInfoText := fmt.Sprintf("%serrInfo_%v%s", errMarkSign, idx, errMarkSign)
		nextErrInfoText := fmt.Sprintf("%serrInfo_%v%s", errMarkSign, idx+1, errMarkSign)
		if idx == (len(errColl) - 2) {
			nextErrInfoText = fmt.Sprintf("%serror%s", errMarkSign, errMarkSign)
		}

		// Replace the last occurrence of the next error in the current error
		lastIdx := strings.LastIndex(errColl[idx], errColl[idx+1])
		if lastIdx != -1 {
			errColl[idx] = errColl[idx][:lastIdx] + nextErrInfoText + errColl[idx][lastIdx+len(errColl[idx+1]):]
		}

		errInfoText = strings.ReplaceAll(errInfoText, errMarkSign, "")
		logFields = logFields.WithField(errInfoText, errColl[idx])
	}

	if err != nil {
		logFields = logFields.WithField("errType", fmt.Sprintf("%T", err)).WithError(err)
	}

	for _, infoMap := range additionalInfos {
		for name, info := range infoMap {
			logFields = logFields.WithField(name, info)
		}
	}

	return logFields
}
