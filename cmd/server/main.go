package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"settlement-backend/internal/app"
	"settlement-backend/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	cfg := config.AppConfig

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	container, err := app.Build(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to build services")
	}

	container.Cleanup.Start()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: container.Router,
	}

	go func() {
		logrus.WithField("addr", addr).Info("settlement backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	container.Cleanup.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("forced shutdown")
	}

	container.Publisher.Close()
	logrus.Info("stopped")
}
