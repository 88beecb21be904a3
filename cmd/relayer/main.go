package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/config"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/db"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/presenter"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/relayer"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/repository"
)

func main() {
	logger := logging.New()

	cfgPath := "config.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.ReadConfigFromFile(cfgPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel.Level())

	var events entity.BridgeEventsRepo
	if cfg.DBConfig != nil {
		dbConn, err2 := db.ConnectToDBAndMigrate(cfg.DBConfig)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to database and apply migrations")
		}
		defer dbConn.Close()
		events = repository.NewRepo(dbConn).BridgeEvents
	}

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err2 := http.ListenAndServe(":2112", nil)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
		}
	}()

	r, err := relayer.NewRelayer(logger.WithField("service", "relayer"), cfg, events)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize bridge relayer")
	}

	var pr *presenter.Presenter
	if cfg.Presenter != nil {
		pr = presenter.NewPresenter(logger.WithField("service", "presenter"), r, events)
		go func() {
			err2 := pr.Serve(cfg.Presenter.Host)
			if err2 != nil {
				logger.WithError(err2).Fatal("can't serve presenter")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Start(ctx)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
		logger.Warn("caught termination signal, gracefully terminating")
	case err = <-done:
		if err != nil {
			logger.WithError(err).Error("relayer stopped unexpectedly")
		}
	}

	r.Stop()
	cancel()
	if pr != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err = pr.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("can't shut down presenter")
		}
		shutdownCancel()
	}
}
