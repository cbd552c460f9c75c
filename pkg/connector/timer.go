package connector

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultTimerInterval = time.Second

// SessionTimer ticks every session in a registry on a fixed interval, which
// drives heartbeats, test requests and logon/logout timeouts.
type SessionTimer struct {
	cron     *cron.Cron
	registry *Registry
	logger   *logrus.Logger
	now      func() time.Time
}

func NewSessionTimer(registry *Registry, interval time.Duration, logger *logrus.Logger) (*SessionTimer, error) {
	if interval <= 0 {
		interval = DefaultTimerInterval
	}
	t := &SessionTimer{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
	if _, err := t.cron.AddFunc(fmt.Sprintf("@every %s", interval), t.tick); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SessionTimer) Start() {
	t.cron.Start()
}

// Stop halts the timer and waits for a running tick to finish.
func (t *SessionTimer) Stop() {
	<-t.cron.Stop().Done()
}

func (t *SessionTimer) tick() {
	now := t.now()
	for _, s := range t.registry.All() {
		s.Tick(now)
	}
	t.logger.Trace("session timer tick")
}
