package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"tickwork/internal/config"
	"tickwork/internal/host"
	logx "tickwork/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./tickd.yaml", "path to config (yaml or json)")
	flag.Parse()

	boot := logx.NewConsole("info")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetLogger(boot)
	if _, err := cfgm.Load(); err != nil {
		boot.Error("fatal: config", logx.String("path", cfgPath), logx.Err(err))
		os.Exit(1)
	}

	app, err := host.New(cfgm)
	if err != nil {
		boot.Error("fatal: init", logx.Err(err))
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		app.Logger().Error("tickd exited with error", logx.Err(err))
		os.Exit(1)
	}
}
