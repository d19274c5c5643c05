package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	directoryhandler "github.com/zenGate-Global/palmyra-directory/domains/directory/be/handler"
	directoryrepo "github.com/zenGate-Global/palmyra-directory/domains/directory/be/repo"
	directoryservice "github.com/zenGate-Global/palmyra-directory/domains/directory/be/service"
	notificationshandler "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/handler"
	notificationsprovider "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/provider"
	notificationsservice "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/gcp"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
)

type config struct {
	Port              string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	QueueBackend      string        `env:"QUEUE_BACKEND" envDefault:"pubsub"`   // pubsub | local
	EmailTopic        string        `env:"EMAIL_TOPIC" envDefault:"emails"`
	EmailSubscription string        `env:"EMAIL_SUBSCRIPTION"`                  // enables pull delivery when set
	EmailBackend      string        `env:"EMAIL_BACKEND" envDefault:"sendgrid"` // sendgrid | log

	GCP           gcp.Config
	PushAuth      auth.Config
	SendGrid      notificationsprovider.SendGridConfig
	Notifications notificationsservice.Config
	Directory     directoryservice.Config
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "directory-functions",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	fb, err := gcp.InitFirebase(ctx, cfg.GCP)
	if err != nil {
		logger.Fatal("init firebase", zap.Error(err))
	}
	defer func() {
		_ = fb.Close()
	}()

	store := directoryrepo.NewFirestoreRepository(fb.Firestore)
	accounts := directoryrepo.NewFirebaseAccounts(fb.Auth)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	var sender notificationsservice.Sender
	switch cfg.EmailBackend {
	case "sendgrid":
		sg, err := notificationsprovider.NewSendGridSender(cfg.SendGrid)
		if err != nil {
			logger.Fatal("init sendgrid sender", zap.Error(err))
		}
		sender = sg
	case "log":
		sender = notificationsprovider.NewLogSender(logger)
	default:
		logger.Fatal("invalid EMAIL_BACKEND (use sendgrid or log)", zap.String("backend", cfg.EmailBackend))
	}

	worker := notificationsservice.NewWorker(sender, cfg.Notifications, logger)
	emailHandler := notificationshandler.New(worker, recorder, logger)

	var (
		publisher    notificationsservice.Publisher
		pubsubClient *pubsub.Client
	)
	switch cfg.QueueBackend {
	case "pubsub":
		pubsubClient, err = gcp.NewPubSubClient(ctx, cfg.GCP)
		if err != nil {
			logger.Fatal("init pubsub client", zap.Error(err))
		}
		defer pubsubClient.Close()

		pub := notificationsprovider.NewPubSubPublisher(pubsubClient, cfg.EmailTopic)
		defer pub.Stop()
		publisher = pub
	case "local":
		publisher = notificationsprovider.NewLocalQueue(emailHandler.Consume)
	default:
		logger.Fatal("invalid QUEUE_BACKEND (use pubsub or local)", zap.String("backend", cfg.QueueBackend))
	}

	dispatcher := notificationsservice.NewDispatcher(publisher, store, cfg.Notifications, logger)
	directoryService := directoryservice.New(store, accounts, dispatcher, cfg.Directory, logger)
	directoryHTTPHandler := directoryhandler.New(directoryService, recorder, logger)

	pushAuth, err := cfg.PushAuth.Middleware(ctx)
	if err != nil {
		logger.Fatal("init push authentication", zap.Error(err))
	}

	router := newRouter(logger, cfg.RequestTimeout, registry, pushAuth, directoryHTTPHandler, emailHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	receiveCtx, stopReceiving := context.WithCancel(ctx)
	receiveDone := make(chan struct{})
	if cfg.EmailSubscription != "" {
		if pubsubClient == nil {
			logger.Fatal("EMAIL_SUBSCRIPTION requires QUEUE_BACKEND=pubsub")
		}
		go func() {
			defer close(receiveDone)
			if err := emailHandler.Receive(receiveCtx, pubsubClient.Subscription(cfg.EmailSubscription)); err != nil {
				logger.Error("email subscription receive stopped", zap.Error(err))
			}
		}()
	} else {
		close(receiveDone)
	}

	go func() {
		logger.Info("starting functions server",
			zap.String("port", cfg.Port),
			zap.String("queue_backend", cfg.QueueBackend),
			zap.String("email_backend", cfg.EmailBackend),
			zap.String("push_auth", cfg.PushAuth.Mode),
			zap.Bool("invitations_enabled", cfg.Directory.InvitationsEnabled),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	stopReceiving()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	select {
	case <-receiveDone:
	case <-shutdownCtx.Done():
		logger.Warn("email receiver did not stop before shutdown timeout")
	}
}
