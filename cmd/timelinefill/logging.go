package main

import (
	log "github.com/sirupsen/logrus"
)

// logConfig configures handling of application log events: level and
// output format for the process-wide logrus logger.
type logConfig struct {
	Level  string `long:"level" env:"LEVEL" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level (default: info, or config log.level)"`
	Format string `long:"format" env:"FORMAT" choice:"json" choice:"text" choice:"color" description:"Logging output format (default: text, or config log.format)"`
}

func initLog(cfg logConfig) {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}

	var level = cfg.Level
	if level == "" {
		level = "info"
	}
	if lvl, err := log.ParseLevel(level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}
