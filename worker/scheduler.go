package worker

import (
	"context"
	"log"
	"time"

	"github.com/Ev0rain/Phishly/utils"
)

// LaunchScheduler periodically launches campaigns whose scheduled
// launch time has arrived.
type LaunchScheduler struct {
	Dispatcher *utils.Dispatcher
	Interval   time.Duration
	Logger     *log.Logger
}

func NewLaunchScheduler(dispatcher *utils.Dispatcher, interval time.Duration, logger *log.Logger) *LaunchScheduler {
	return &LaunchScheduler{
		Dispatcher: dispatcher,
		Interval:   interval,
		Logger:     logger,
	}
}

func (s *LaunchScheduler) Start(ctx context.Context) {
	s.Logger.Printf("Launch scheduler started (sweep every %s)", s.Interval)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Println("Launch scheduler shutting down...")
			return
		case <-ticker.C:
			s.Dispatcher.LaunchDueScheduled(ctx)
		}
	}
}
