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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/orrn/labelflow/internal/api"
	"github.com/orrn/labelflow/internal/config"
	"github.com/orrn/labelflow/internal/engine"
	"github.com/orrn/labelflow/internal/match"
	"github.com/orrn/labelflow/internal/notify"
	"github.com/orrn/labelflow/internal/printers"
	"github.com/orrn/labelflow/internal/query"
	"github.com/orrn/labelflow/internal/store"
)

func main() {
	configPath := flag.String("config", "labelflow.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "labelflow: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.Logging)

	profiles, err := store.LoadProfiles(cfg.Stores.ProfilesPath)
	if err != nil {
		return err
	}
	printerStore, err := store.LoadPrinters(cfg.Stores.PrintersPath)
	if err != nil {
		return err
	}

	data, err := query.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer data.Close()

	sender := printers.NewTCPSender(cfg.Printers.ConnectionTimeout, log)

	var notifier engine.Notifier
	if len(cfg.Notify.Endpoints) > 0 {
		n := notify.NewSender(notify.Config{
			Endpoints:   cfg.Notify.Endpoints,
			Secret:      cfg.Notify.Secret,
			Timeout:     cfg.Notify.Timeout,
			RetryCount:  cfg.Notify.RetryCount,
			RetryDelay:  cfg.Notify.RetryDelay,
			WorkerCount: cfg.Notify.WorkerCount,
		}, log)
		n.Start()
		defer n.Stop()
		notifier = n
	}

	matcher := match.NewMatcher(profiles, printerStore, cfg.Stores.SchemaDir, log)

	eng := engine.New(profiles, printerStore, matcher, data, sender, notifier, engine.Options{
		TemplateDir:   cfg.Stores.TemplateDir,
		WaitTimeout:   cfg.Resolve.WaitTimeout,
		SessionTTL:    cfg.Resolve.SessionTTL,
		SweepInterval: cfg.Resolve.SweepInterval,
	}, log)
	eng.Start()
	defer eng.Stop()

	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(eng, profiles, printerStore, sender, api.RouterConfig{
		ProfilesPath: cfg.Stores.ProfilesPath,
		PrintersPath: cfg.Stores.PrintersPath,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.WithField("port", cfg.Server.Port).Info("labelflow listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
