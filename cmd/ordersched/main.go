package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ordersched/internal/app"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file (YAML or JSON)")
		runOnce    = flag.Bool("run-once", false, "run one pipeline pass and exit")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup:", err)
		os.Exit(1)
	}

	if *runOnce {
		err := a.RunPass(ctx)
		shutdown(a)
		if err != nil {
			fmt.Fprintln(os.Stderr, "run:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "startup:", err)
		shutdown(a)
		os.Exit(1)
	}

	<-ctx.Done()
	stop()
	shutdown(a)
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Stop(ctx)
}
