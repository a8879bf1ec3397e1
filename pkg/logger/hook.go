package logger

import (
	"path"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ContextHook adds the caller file and line to warnings and errors
type ContextHook struct{}

// Levels levels the hook fires on
func (ContextHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.WarnLevel, logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

// Fire adds the "source" field
func (hook ContextHook) Fire(entry *logrus.Entry) error {
	pc := make([]uintptr, 10)
	n := runtime.Callers(6, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "sirupsen/logrus") {
			entry.Data["source"] = path.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
			break
		}
		if !more {
			break
		}
	}
	return nil
}
