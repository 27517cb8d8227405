// Package app wires the configured store, mailer, services and HTTP routes
// into a runnable server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/exmoboty/starter/internal/config"
	"github.com/exmoboty/starter/internal/crypto"
	"github.com/exmoboty/starter/internal/handler"
	"github.com/exmoboty/starter/internal/mail"
	"github.com/exmoboty/starter/internal/metrics"
	"github.com/exmoboty/starter/internal/repository"
	"github.com/exmoboty/starter/internal/service"
	"github.com/exmoboty/starter/internal/sessioncookie"
)

// App owns every long-lived dependency of the server.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	sessions *service.SessionManager
	mailer   mail.Mailer
	pinger   handler.Pinger
	closers  []func(context.Context) error

	auth    *service.AuthService
	reset   *service.ResetService
	account *service.AccountService
	contact *service.ContactService
	cookie  sessioncookie.Config
	signer  *crypto.CookieSigner
	web     *handler.Web
}

// New creates an App for cfg. Call Connect before serving.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}
}

// Connect opens the store and the mail transport and builds the services.
func (a *App) Connect(ctx context.Context) error {
	userStore, sessionStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.mailer = a.openMailer()
	a.closers = append(a.closers, func(context.Context) error { return a.mailer.Close() })

	hasher, err := crypto.NewHasher(a.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("create hasher: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(a.logger),
		service.WithRecorder(a.metrics),
	}
	policy := service.PasswordPolicy{
		MinLength: a.cfg.PasswordMinLength,
		MaxLength: a.cfg.PasswordMaxLength,
	}

	a.sessions = service.NewSessionManager(sessionStore, a.cfg.SessionMaxAge, opts...)
	a.auth = service.NewAuthService(userStore, a.sessions, hasher, policy, opts...)
	a.reset = service.NewResetService(userStore, hasher, a.mailer, policy, service.ResetConfig{
		Window:  a.cfg.PasswordResetExpires,
		BaseURL: a.cfg.BaseURL,
		From:    a.cfg.MailFrom,
	}, opts...)
	a.account = service.NewAccountService(userStore, a.sessions, hasher, policy, opts...)
	a.contact = service.NewContactService(a.mailer, a.cfg.AppEmail, a.cfg.MailFrom, opts...)

	a.cookie = sessioncookie.Config{
		Name:   a.cfg.SessionName,
		Secure: a.cfg.IsProduction(),
		MaxAge: a.cfg.SessionMaxAge,
	}
	a.signer = crypto.NewCookieSigner(a.cfg.SessionSecret)
	a.web, err = handler.NewWeb(a.cookie, a.signer, a.cfg.AppName, a.logger)
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (service.UserStore, service.SessionStore, error) {
	switch a.cfg.StoreBackend {
	case config.BackendMySQL:
		db, err := repository.NewDB(ctx, a.cfg.DatabaseDSN, a.cfg.ConnectRetries, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.pinger = handler.PingFunc(db.PingContext)
		a.closers = append(a.closers, closeDB(db))
		a.logger.Info("connected to store", "backend", a.cfg.StoreBackend)
		return repository.NewUserRepository(db), repository.NewSessionRepository(db), nil

	case config.BackendMongo:
		client, db, err := repository.NewMongo(ctx, a.cfg.MongoURI, a.cfg.MongoDatabase, a.cfg.ConnectRetries, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			return nil, nil, err
		}
		a.pinger = pingMongo(client)
		a.logger.Info("connected to store", "backend", a.cfg.StoreBackend, "database", a.cfg.MongoDatabase)
		return repository.NewMongoUserRepository(db), repository.NewMongoSessionRepository(db), nil

	case config.BackendMemory:
		a.pinger = handler.PingFunc(func(context.Context) error { return nil })
		a.logger.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryUserRepository(), repository.NewMemorySessionRepository(), nil
	}
	return nil, nil, config.ErrUnknownBackend
}

func (a *App) openMailer() mail.Mailer {
	switch a.cfg.MailTransport {
	case config.MailSMTP:
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     a.cfg.SMTPHost,
			Port:     a.cfg.SMTPPort,
			Username: a.cfg.SMTPUsername,
			Password: a.cfg.SMTPPassword,
		})
	case config.MailKafka:
		return mail.NewKafkaMailer(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
	default:
		return mail.NewLogMailer(a.logger)
	}
}

func closeDB(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}

func pingMongo(client *mongo.Client) handler.PingFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
}

// Sessions returns the session manager so the caller can run the sweeper.
func (a *App) Sessions() *service.SessionManager {
	return a.sessions
}

// Close drains queued mail, then releases the store and mail transport in
// reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	if a.reset != nil {
		a.reset.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Handler returns the root HTTP handler. ctx bounds background work started
// by the middleware.
func (a *App) Handler(ctx context.Context) http.Handler {
	return a.routes(ctx)
}
