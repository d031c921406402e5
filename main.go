package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/cmd"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.Main.Log.Enabled {
		_, closeLog, err := logging.NewFileLogger(&settings.Main.Log, settings.Main.Name, level)
		if err != nil {
			logging.Warn("failed to initialize file logging", "error", err)
		} else {
			defer closeLog() //nolint:errcheck
		}
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		logging.Fatal("command failed", "error", err)
	}
}
