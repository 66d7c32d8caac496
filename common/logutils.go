package common

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func init() {
	ConfigureLogger("info", "text")
}

// ConfigureLogger applies level and format to the standard logger. Unknown levels fall back to info,
// any format other than "json" uses the text formatter.
func ConfigureLogger(level, format string) {
	logger := logrus.StandardLogger()
	logger.Out = os.Stdout
	if strings.ToLower(format) == "json" {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{}
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.ReplaceHooks(logrus.LevelHooks{})
	logger.AddHook(&DefaultFieldsHook{})
}

type DefaultFieldsHook struct {
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["serviceName"] = GetServiceName()
	e.Data["serviceInstance"] = GetServiceInstance()
	return nil
}
