package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ServerTicker is the server-side auto-report poll.
type ServerTicker interface {
	Tick(ctx context.Context) (int, error)
}

// ClientTicker is the device fallback poll.
type ClientTicker interface {
	Tick(ctx context.Context) (bool, error)
}

// Purger drops finished dispatch records older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	tickTimeout     = 50 * time.Second
	purgeTimeout    = 2 * time.Minute
	purgeSpec       = "@daily"
	dispatchHistory = 30 * 24 * time.Hour
)

// ReportScheduler runs the auto-report pollers on cron specs in the report time zone.
type ReportScheduler struct {
	cronEngine *cron.Cron
	logger     *logrus.Entry
}

func NewReportScheduler(loc *time.Location, logger *logrus.Entry) *ReportScheduler {
	return &ReportScheduler{
		cronEngine: cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:     logger,
	}
}

// AddServerPoll registers the server poller.
func (s *ReportScheduler) AddServerPoll(spec string, ticker ServerTicker) error {
	_, err := s.cronEngine.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		n, err := ticker.Tick(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Server report poll failed")
			return
		}
		if n > 0 {
			s.logger.WithField("dispatched", n).Info("Server report poll dispatched reports")
		}
	})
	if err != nil {
		return fmt.Errorf("could not add server poll job %q: %w", spec, err)
	}
	return nil
}

// AddClientPoll registers the device fallback poller.
func (s *ReportScheduler) AddClientPoll(spec string, ticker ClientTicker) error {
	_, err := s.cronEngine.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		if sent, err := ticker.Tick(ctx); err != nil {
			s.logger.WithError(err).Warn("Client report poll failed")
		} else if sent {
			s.logger.Info("Client report poll dispatched a report")
		}
	})
	if err != nil {
		return fmt.Errorf("could not add client poll job %q: %w", spec, err)
	}
	return nil
}

// AddPurge registers the daily cleanup of old dispatch records.
func (s *ReportScheduler) AddPurge(p Purger) error {
	_, err := s.cronEngine.AddFunc(purgeSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		n, err := p.PurgeBefore(ctx, time.Now().Add(-dispatchHistory))
		if err != nil {
			s.logger.WithError(err).Error("Dispatch purge failed")
			return
		}
		s.logger.WithField("removed", n).Info("Dispatch history purged")
	})
	if err != nil {
		return fmt.Errorf("could not add purge job: %w", err)
	}
	return nil
}

func (s *ReportScheduler) Start() {
	s.cronEngine.Start()
	s.logger.WithField("jobs", len(s.cronEngine.Entries())).Info("Report scheduler started")
}

func (s *ReportScheduler) Stop() {
	s.logger.Info("Stopping report scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Report scheduler gracefully stopped.")
}
