package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/api"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	addr := flag.String("addr", "", "Listen address override (e.g. :8081)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *logLevel != "" {
		level, err := logrus.ParseLevel(*logLevel)
		if err != nil {
			logger.WithError(err).Fatal("Invalid log level")
		}
		logger.SetLevel(level)
	}

	if err := api.RunEngine(*configPath, *addr, logger); err != nil {
		logger.WithError(err).Error("Engine exited with error")
		os.Exit(1)
	}
}
