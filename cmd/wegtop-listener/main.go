package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wegtop/internal/config"
	"wegtop/internal/listener"
	"wegtop/internal/notify"
	"wegtop/internal/pipeline"
	"wegtop/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	log := cfg.Logger()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	proc, err := pipeline.NewProcessingService(db, cfg, log)
	must(err)
	if n := notify.NewSlack(cfg.SlackWebhookURL, log); n != nil {
		proc.WithNotifier(n)
	}

	svc := listener.NewService(db, cfg, proc, log)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
