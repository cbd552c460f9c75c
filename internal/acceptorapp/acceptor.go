package acceptorapp

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fr3shw3b/fix-session-engine/internal/bootstrap"
	"github.com/fr3shw3b/fix-session-engine/pkg/connector"
	"golang.org/x/sync/errgroup"
)

func Run(sessionsFile string) error {
	engine, err := bootstrap.Load(".env.acceptor", sessionsFile)
	if err != nil {
		log.Fatal("Failed to load configuration for acceptor: ", err)
	}
	defer engine.Close()
	logger := engine.Logger

	app := &bootstrap.LoggingApplication{Logger: logger}
	sessions, _, err := engine.NewSessions(false, app)
	if err != nil {
		return err
	}

	acceptor, err := connector.NewAcceptor(
		&connector.AcceptorParams{
			Address:  engine.Config.AcceptorAddress,
			Sessions: sessions,
		},
		logger,
	)
	if err != nil {
		return err
	}

	timer, err := connector.NewSessionTimer(acceptor.Registry(), engine.Config.TimerInterval, logger)
	if err != nil {
		return err
	}
	timer.Start()
	defer timer.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return acceptor.ListenAndServe(ctx)
	})
	g.Go(func() error {
		return engine.ServeAdmin(ctx, acceptor.Registry(), acceptor)
	})

	log.Printf("Acceptor running %d session(s) ... \n", len(sessions))
	return g.Wait()
}
