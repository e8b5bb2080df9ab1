package logger

import (
	"io"
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Info(action, message, requestID string, details map[string]interface{})
	Debug(action, message, requestID string, details map[string]interface{})
	Warn(action, message, requestID string, details map[string]interface{})
	Error(action, message, requestID string, details map[string]interface{}, err error)
}

type jsonLogger struct {
	entry *logrus.Entry
}

func New(service string) Logger {
	return NewWithOutput(service, os.Stdout, logrus.DebugLevel)
}

// NewWithOutput builds a logger writing JSON lines to out.
func NewWithOutput(service string, out io.Writer, level logrus.Level) Logger {
	hostname, _ := os.Hostname()

	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(level)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})

	return &jsonLogger{
		entry: base.WithFields(logrus.Fields{
			"service":  service,
			"hostname": hostname,
		}),
	}
}

// Discard is used by tests and tools that don't need output.
func Discard() Logger {
	return NewWithOutput("discard", io.Discard, logrus.PanicLevel)
}

func (l *jsonLogger) Info(action, message, requestID string, details map[string]interface{}) {
	l.with(action, requestID, details).Info(message)
}

func (l *jsonLogger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.with(action, requestID, details).Debug(message)
}

func (l *jsonLogger) Warn(action, message, requestID string, details map[string]interface{}) {
	l.with(action, requestID, details).Warn(message)
}

func (l *jsonLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
	e := l.with(action, requestID, details)
	if err != nil {
		e = e.WithField("error", ErrorInfo{
			Msg:   err.Error(),
			Stack: string(debug.Stack()),
		})
	}
	e.Error(message)
}

func (l *jsonLogger) with(action, requestID string, details map[string]interface{}) *logrus.Entry {
	fields := logrus.Fields{
		"action":     action,
		"request_id": requestID,
	}
	if len(details) > 0 {
		fields["details"] = details
	}
	return l.entry.WithFields(fields)
}
