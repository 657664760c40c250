package logger

import (
	"io"
	"os"
	"strings"

	"attendpro/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Packages receive entries from Component
// rather than reaching for it directly.
var Log = logrus.New()

var service = "attendpro"

// Init configures Log for the given binary. A nil out means stdout; syncctl
// passes stderr so its JSON output stays parseable.
func Init(cfg *config.AppConfig, serviceName string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	if serviceName != "" {
		service = serviceName
	}
	Log.SetOutput(out)
	Log.SetFormatter(formatterFor(cfg.Environment))

	level, ok := levelFor(cfg.LogLevel)
	Log.SetLevel(level)
	if !ok {
		Log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	Log.WithFields(logrus.Fields{
		"service":     service,
		"level":       level.String(),
		"environment": cfg.Environment,
	}).Debug("Logger configured")
}

func levelFor(raw string) (logrus.Level, bool) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return logrus.InfoLevel, false
	}
	return level, true
}

func formatterFor(environment string) logrus.Formatter {
	switch environment {
	case "production", "staging":
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	default:
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
	}
}

// Component returns an entry tagged with the service and component name.
func Component(name string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{"service": service, "component": name})
}
