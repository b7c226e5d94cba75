package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the standard logger. Unknown levels fall back to info.
func Init(level string) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	l, err := log.ParseLevel(level)
	if err != nil {
		l = log.InfoLevel
	}
	log.SetLevel(l)
}

func L() *log.Logger { return log.StandardLogger() }

// Component returns the standard logger tagged with a component field.
func Component(name string) log.FieldLogger {
	return log.StandardLogger().WithField("component", name)
}
