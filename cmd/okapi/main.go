package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okapimail/okapi/config"
	"github.com/okapimail/okapi/db"
	"github.com/okapimail/okapi/logger"
	"github.com/okapimail/okapi/server/classifier"
	"github.com/okapimail/okapi/server/delivery"
	"github.com/okapimail/okapi/server/guard"
	"github.com/okapimail/okapi/server/junkfilter"
	"github.com/okapimail/okapi/server/notify"
	"github.com/okapimail/okapi/server/smtpd"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logFile, err := logger.Initialize(logger.LoggingConfig{
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDatabaseFromConfig(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	database.StartPoolMetrics(ctx)

	labeler, err := classifier.NewFromConfig(&cfg.Classifier)
	if err != nil {
		logger.Fatal("failed to initialize classifier", "error", err)
	}

	var deliveryLabeler delivery.Labeler
	if labeler != nil {
		deliveryLabeler = labeler
	}
	pipeline := delivery.NewPipeline(
		database,
		guard.New(),
		junkfilter.New(database),
		deliveryLabeler,
		notify.NewLogNotifier(),
	)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr)
	}

	var smtpServer *smtpd.Backend
	if cfg.SMTP.Start {
		smtpServer, err = smtpd.New(ctx, cfg.Hostname, &cfg.SMTP, pipeline)
		if err != nil {
			logger.Fatal("failed to initialize SMTP server", "error", err)
		}
		go func() {
			if err := smtpServer.ListenAndServe(); err != nil {
				logger.Error("SMTP server stopped", "error", err)
				stop()
			}
		}()
	}

	logger.Info("okapi started", "hostname", cfg.Hostname)
	<-ctx.Done()
	logger.Info("shutting down")

	if smtpServer != nil {
		if err := smtpServer.Close(); err != nil {
			logger.Error("error closing SMTP server", "error", err)
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", "error", err)
	}
}
