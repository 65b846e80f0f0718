// Package server assembles the gophauth application: logger, user store,
// mail delivery, metrics and the HTTP API, and runs it until a shutdown
// signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/mail"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	syncLogger func() error
	repos      repomanager.RepositoryManager
	dispatcher *mail.Dispatcher
	closeMail  func() error
	server     *httpapi.Server
}

// NewApp builds every component from cfg. The store is opened and migrated
// here, so a failing database aborts startup.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, syncLogger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	repos, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close(ctx)
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	m := metrics.New()

	sender, closeMail := newMailSender(cfg, logger)
	dispatcher := mail.NewDispatcher(sender, mail.DispatcherConfig{
		Workers:    cfg.MailWorkers,
		QueueSize:  cfg.MailQueueSize,
		MaxRetries: cfg.MailMaxRetries,
	}, logger, m)

	notifiers := services.Notifiers{
		Verification: mail.NewVerificationNotifier(dispatcher, cfg.BaseURL),
		Reset:        mail.NewResetNotifier(dispatcher, cfg.BaseURL, cfg.ResetTokenValidityDuration),
	}

	svc := services.NewUserService(repos.Users(), auth.NewBcryptHasher(), notifiers, cfg, logger)
	handler := httpapi.NewHandler(svc, m, cfg.CookieSecure, cfg.AccessTokenValidityDuration)
	srv := httpapi.NewServer(httpapi.Options{
		Address:         cfg.EndpointAddrHTTP,
		AllowedOrigin:   cfg.AllowedOrigin,
		SecretKey:       cfg.SecretKey,
		Metrics:         m,
		ShutdownTimeout: shutdownTimeout,
	}, handler, logger)

	return &App{
		config:     cfg,
		logger:     logger,
		syncLogger: syncLogger,
		repos:      repos,
		dispatcher: dispatcher,
		closeMail:  closeMail,
		server:     srv,
	}, nil
}

func newLogger(cfg *config.Config) (logging.Logger, func() error, error) {
	switch cfg.LogBackend {
	case "zap":
		l, err := logging.NewZapFromOptions(cfg.LogFormat, cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Sync, nil
	case "", "slog":
		return logging.NewSlogFromOptions(os.Stdout, cfg.LogFormat, cfg.LogLevel), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.LogBackend)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repomanager.RepositoryManager, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return repomanager.OpenPostgres(ctx, cfg.DatabaseDSN)
	case config.StoreMongo:
		return repomanager.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case config.StoreMemory:
		return repomanager.NewInMemoryRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// newMailSender returns the transport behind the dispatcher and a func that
// releases it.
func newMailSender(cfg *config.Config, logger logging.Logger) (mail.Sender, func() error) {
	switch cfg.MailTransport {
	case config.MailKafka:
		k := mail.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		return k, k.Close
	case config.MailLog:
		return mail.NewLogSender(logger), func() error { return nil }
	default:
		return &mail.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPSender,
		}, func() error { return nil }
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP until ctx is cancelled or a signal arrives, then stops the
// server, drains pending mail and closes the store, in that order.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.Store, "mail", app.config.MailTransport)
	app.initSignalHandler(cancelFunc)

	runErr := app.server.Run(ctx)
	if runErr != nil {
		app.logger.Error(ctx, "http server stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, app.shutdown(shutdownCtx))
}

// shutdown leaves the mail transport open when workers are still delivering
// at the deadline, since closing it would abort their writes.
func (app *App) shutdown(ctx context.Context) error {
	var errs []error
	if err := app.dispatcher.Close(ctx); err != nil {
		app.logger.Warn(ctx, "mail still in flight, transport left open", "error", err)
		errs = append(errs, fmt.Errorf("mail dispatcher: %w", err))
	} else if err := app.closeMail(); err != nil {
		errs = append(errs, fmt.Errorf("mail transport: %w", err))
	}
	if err := app.repos.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	app.logger.Info(ctx, "App stopped")
	// zap reports EINVAL syncing a terminal stdout
	_ = app.syncLogger()

	return errors.Join(errs...)
}
