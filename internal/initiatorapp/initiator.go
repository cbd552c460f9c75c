package initiatorapp

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
	engine, err := bootstrap.Load(".env.initiator", sessionsFile)
	if err != nil {
		log.Fatal("Failed to load configuration for initiator: ", err)
	}
	defer engine.Close()
	logger := engine.Logger

	app := &bootstrap.LoggingApplication{Logger: logger}
	sessions, configs, err := engine.NewSessions(true, app)
	if err != nil {
		return err
	}

	entries := make([]connector.InitiatorSession, 0, len(sessions))
	for i, s := range sessions {
		entries = append(entries, connector.InitiatorSession{
			Session:   s,
			Transport: configs[i].Transport,
			Address:   configs[i].Address,
		})
	}

	initiator, err := connector.NewInitiator(
		&connector.InitiatorParams{
			Sessions:             entries,
			ReconnectInterval:    engine.Config.ReconnectInterval,
			MaxReconnectAttempts: engine.Config.MaxReconnectAttempts,
		},
		logger,
	)
	if err != nil {
		return err
	}

	timer, err := connector.NewSessionTimer(initiator.Registry(), engine.Config.TimerInterval, logger)
	if err != nil {
		return err
	}
	timer.Start()
	defer timer.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initiator.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return initiator.Stop()
	})
	g.Go(func() error {
		return engine.ServeAdmin(ctx, initiator.Registry(), nil)
	})

	log.Printf("Initiator running %d session(s) ... \n", len(sessions))
	return g.Wait()
}
