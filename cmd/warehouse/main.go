package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/iurnickita/warehouse/internal/auth"
	"github.com/iurnickita/warehouse/internal/config"
	"github.com/iurnickita/warehouse/internal/handler"
	"github.com/iurnickita/warehouse/internal/logger"
	"github.com/iurnickita/warehouse/internal/service"
	"github.com/iurnickita/warehouse/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	auth := auth.NewAuth(cfg.Auth, zaplog)
	if cfg.IssueToken != "" {
		token, err := auth.IssueToken(cfg.IssueToken)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := service.NewService(cfg.Service, store, zaplog)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go service.ReportFailed(ctx)

	return handler.Serve(ctx, cfg.Handler, auth, service, zaplog)
}
