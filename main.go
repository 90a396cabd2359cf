package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jkivela/packwatch/cmd"
	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		return err
	}

	if settings.Main.Log.Enabled {
		closeLog, err := logging.EnableFileOutput(settings.Main.Log.Path)
		if err != nil {
			return err
		}
		defer func() {
			_ = closeLog()
		}()
	}

	return cmd.RootCommand(settings).ExecuteContext(context.Background())
}
