// Package bootstrap holds the process wiring shared by the acceptor and
// initiator binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/admin"
	"github.com/fr3shw3b/fix-session-engine/pkg/config"
	"github.com/fr3shw3b/fix-session-engine/pkg/events"
	"github.com/fr3shw3b/fix-session-engine/pkg/metrics"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// Engine carries what every session of a process is built from.
type Engine struct {
	Config   *config.Config
	Sessions []config.SessionConfig
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	stores      store.Factory
	storeCloser io.Closer
}

// Load reads envFile and the sessions file it points at, then opens the
// message store backend. sessionsFile overrides FIX_SESSIONS_FILE when set.
func Load(envFile, sessionsFile string) (*Engine, error) {
	err := godotenv.Load(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load environment variables: ", err)
	}

	conf, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	if sessionsFile != "" {
		conf.SessionsFile = sessionsFile
	}

	logger := NewLogger(conf.LogLevel)

	configs, err := config.LoadSessions(conf.SessionsFile)
	if err != nil {
		return nil, err
	}

	stores, closer, err := store.NewFactory(&store.FactoryParams{
		Kind:        conf.StoreType,
		Path:        conf.StorePath,
		PostgresDSN: conf.PostgresDSN,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s message store: %w", conf.StoreType, err)
	}

	m := metrics.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(reg); err != nil {
		closer.Close()
		return nil, err
	}

	return &Engine{
		Config:      conf,
		Sessions:    configs,
		Logger:      logger,
		Metrics:     m,
		Registry:    reg,
		stores:      stores,
		storeCloser: closer,
	}, nil
}

func NewLogger(level string) *logrus.Logger {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetFormatter(customFormatter)
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// NewSessions creates a session for every configured entry of the given
// role, all sharing app.
func (e *Engine) NewSessions(initiator bool, app events.Application) ([]*session.Session, []config.SessionConfig, error) {
	var (
		sessions []*session.Session
		configs  []config.SessionConfig
	)
	for i := range e.Sessions {
		cfg := e.Sessions[i]
		if cfg.IsInitiator() != initiator {
			continue
		}
		s, err := e.NewSession(&cfg, app)
		if err != nil {
			return nil, nil, fmt.Errorf("session %s: %w", cfg.SessionID(), err)
		}
		sessions = append(sessions, s)
		configs = append(configs, cfg)
	}
	return sessions, configs, nil
}

func (e *Engine) NewSession(cfg *config.SessionConfig, app events.Application) (*session.Session, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	id := cfg.SessionID()
	messageStore, err := e.stores.Create(id)
	if err != nil {
		return nil, err
	}
	return session.New(session.Params{
		SessionID:     id,
		Settings:      settings,
		Store:         messageStore,
		Schedule:      sched,
		Application:   app,
		StateListener: e.Metrics.StateListener(),
		MessageLog:    e.Metrics.MessageLog(session.NewLogrusMessageLog(e.Logger)),
	}, e.Logger)
}

// ServeAdmin runs the admin HTTP server until ctx is done.
func (e *Engine) ServeAdmin(ctx context.Context, sessions admin.Sessions, fixHandler http.Handler) error {
	e.Registry.MustRegister(metrics.NewSessionCollector(sessions))
	router := admin.NewRouter(&admin.RouterParams{
		Sessions:   sessions,
		Gatherer:   e.Registry,
		FIXHandler: fixHandler,
	}, e.Logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", e.Config.AdminPort),
		ReadTimeout:       1 * time.Second,
		WriteTimeout:      1 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		Handler:           router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	e.Logger.Infof("Admin server listening on port %d ... \n", e.Config.AdminPort)
	err := httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (e *Engine) Close() error {
	return e.storeCloser.Close()
}
