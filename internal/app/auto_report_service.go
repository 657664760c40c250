package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendpro/internal/domain/account"
	"attendpro/internal/domain/notification"
	"attendpro/internal/domain/training"
	idb "attendpro/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// TickMetrics counts poller ticks by mode and outcome.
type TickMetrics interface {
	PollTick(mode, outcome string)
}

type noopTickMetrics struct{}

func (noopTickMetrics) PollTick(string, string) {}

// IsReportDue applies the auto-report policy at now, which must already be in
// the reporting time zone. It returns the slot key of today's opportunity.
func IsReportDue(cfg account.AutoReport, now time.Time, lastSentSlotKey string) (string, bool) {
	slot, open := ScheduledSlot(cfg, now)
	if !open {
		return "", false
	}
	return slot, slot != lastSentSlotKey
}

// ScheduledSlot returns today's slot key once its hour has been reached,
// whether or not it was already reported.
func ScheduledSlot(cfg account.AutoReport, now time.Time) (string, bool) {
	if !cfg.Enabled || now.Hour() < cfg.Hour {
		return "", false
	}
	for _, d := range cfg.Days {
		if d == now.Weekday() {
			return notification.ReportSlotKey(training.DateOf(now), cfg.Hour), true
		}
	}
	return "", false
}

// ManualDispatchRequest builds an operator-triggered request for date. A send
// for today after the scheduled hour takes the poller's key, so it and the
// poller deliver the slot once between them. Other dates use the manual key.
func ManualDispatchRequest(cfg account.AutoReport, now time.Time, email string, date training.Date, text string) DispatchRequest {
	req := DispatchRequest{
		Source:       notification.SourceManualReport,
		AccountEmail: email,
		Date:         date,
		Text:         text,
	}
	if slot, open := ScheduledSlot(cfg, now); open && date.Equal(training.DateOf(now)) {
		req.Source = notification.SourceAutoReport
		req.SlotKey = slot
	}
	return req
}

// shouldAdvanceCadence is true once the dispatcher made its decision for the
// slot, including duplicates and failed sends. Reservation errors leave the slot open.
func shouldAdvanceCadence(err error) bool {
	return err == nil || errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// AutoReportService is the server-side poller body: it walks every account with
// auto-report enabled and reports from the stored state document.
type AutoReportService struct {
	accounts   account.Repository
	dispatcher ReportDispatcher
	clock      Clock
	loc        *time.Location
	status     *SchedulerStatus
	metrics    TickMetrics
	logger     *logrus.Entry
}

func NewAutoReportService(accounts account.Repository, dispatcher ReportDispatcher, clock Clock, loc *time.Location, status *SchedulerStatus, metrics TickMetrics, logger *logrus.Entry) *AutoReportService {
	if loc == nil {
		loc = time.UTC
	}
	if metrics == nil {
		metrics = noopTickMetrics{}
	}
	return &AutoReportService{accounts: accounts, dispatcher: dispatcher, clock: clock, loc: loc, status: status, metrics: metrics, logger: logger}
}

// Tick runs one server poll and returns the number of dispatches attempted.
func (s *AutoReportService) Tick(ctx context.Context) (int, error) {
	now := s.clock.Now().In(s.loc)
	s.status.RecordRun(now)

	records, err := s.accounts.ListAutoReportEnabled(ctx)
	if err != nil {
		s.status.RecordError(now, err)
		s.metrics.PollTick("server", "error")
		return 0, fmt.Errorf("failed to list auto-report accounts: %w", err)
	}

	attempted := 0
	var firstErr error
	for _, rec := range records {
		slot, due := IsReportDue(rec.State.Settings.AutoReport, now, rec.LastSentSlotKey)
		if !due {
			continue
		}
		attempted++
		log := s.logger.WithFields(logrus.Fields{"account": rec.Email, "slot": slot})
		today := training.DateOf(now)
		title := rec.DisplayName
		if title == "" {
			title = rec.Email
		}

		_, err := s.dispatcher.Dispatch(ctx, DispatchRequest{
			Source:       notification.SourceAutoReport,
			AccountEmail: rec.Email,
			Date:         today,
			SlotKey:      slot,
			Text:         BuildDailySummary(title, rec.State, today),
		})
		if err != nil {
			log.WithError(err).Warn("Auto report dispatch failed")
			if firstErr == nil {
				firstErr = err
			}
		}
		if shouldAdvanceCadence(err) {
			if err := s.accounts.SetLastSentSlot(ctx, rec.Email, slot); err != nil {
				log.WithError(err).Error("Failed to store last sent slot")
			}
		}
	}

	if firstErr != nil {
		s.status.RecordError(now, firstErr)
		s.metrics.PollTick("server", "error")
		return attempted, firstErr
	}
	s.status.RecordSuccess(now, attempted)
	s.metrics.PollTick("server", "ok")
	return attempted, nil
}

// SessionSource yields the signed-in account, if any.
type SessionSource interface {
	Session() (account.Session, bool)
}

// ClientAutoReporter is the best-effort device poller. It reads the live
// workspace and keeps its cadence in the local state, outside sync.
type ClientAutoReporter struct {
	ws         *Workspace
	sessions   SessionSource
	dispatcher ReportDispatcher
	loc        *time.Location
	status     *SchedulerStatus
	metrics    TickMetrics
	logger     *logrus.Entry
}

func NewClientAutoReporter(ws *Workspace, sessions SessionSource, dispatcher ReportDispatcher, loc *time.Location, status *SchedulerStatus, metrics TickMetrics, logger *logrus.Entry) *ClientAutoReporter {
	if loc == nil {
		loc = time.Local
	}
	if metrics == nil {
		metrics = noopTickMetrics{}
	}
	return &ClientAutoReporter{ws: ws, sessions: sessions, dispatcher: dispatcher, loc: loc, status: status, metrics: metrics, logger: logger}
}

// Tick reports for the signed-in account when due. It returns true if a dispatch was attempted.
func (c *ClientAutoReporter) Tick(ctx context.Context) (bool, error) {
	sess, ok := c.sessions.Session()
	if !ok {
		return false, nil
	}
	now := c.ws.Clock().Now().In(c.loc)
	c.status.RecordRun(now)

	var settings account.Settings
	var lastSlot string
	var doc account.StateDocument
	c.ws.View(func(s *State) {
		settings = s.SettingsOf(sess.ID)
		lastSlot = s.ReportCadence[sess.ID]
		doc = s.Document(sess.ID)
	})

	slot, due := IsReportDue(settings.AutoReport, now, lastSlot)
	if !due {
		c.metrics.PollTick("client", "idle")
		return false, nil
	}

	today := training.DateOf(now)
	title := sess.DisplayName
	if title == "" {
		title = sess.Email
	}
	_, err := c.dispatcher.Dispatch(ctx, DispatchRequest{
		Source:       notification.SourceAutoReport,
		AccountEmail: sess.Email,
		Date:         today,
		SlotKey:      slot,
		Text:         BuildDailySummary(title, doc, today),
	})
	if shouldAdvanceCadence(err) {
		if _, cerr := c.ws.Reconcile(sess.ID, "report_cadence", func(s *State) error {
			s.ReportCadence[sess.ID] = slot
			return nil
		}); cerr != nil {
			c.logger.WithError(cerr).Error("Failed to store report cadence")
		}
	}
	if err != nil {
		c.status.RecordError(now, err)
		c.metrics.PollTick("client", "error")
		c.logger.WithError(err).WithField("slot", slot).Warn("Client auto report failed")
		return true, err
	}
	c.status.RecordSuccess(now, 1)
	c.metrics.PollTick("client", "ok")
	return true, nil
}

// Preview renders the report of date for one account from its stored state.
func (s *AutoReportService) Preview(ctx context.Context, email string, date training.Date) (*account.Record, training.Date, string, error) {
	rec, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, idb.ErrAccountNotFound) {
			return nil, date, "", notFoundf("account %s", email)
		}
		return nil, date, "", fmt.Errorf("failed to load account %s: %w", email, err)
	}
	if date.IsZero() {
		date = training.DateOf(s.clock.Now().In(s.loc))
	}
	title := rec.DisplayName
	if title == "" {
		title = rec.Email
	}
	return rec, date, BuildDailySummary(title, rec.State, date), nil
}

// SendNow dispatches the report of date on the operator's request. Repeating it
// for the same account and day, or racing the poller for today's slot, is
// reported as a duplicate.
func (s *AutoReportService) SendNow(ctx context.Context, email string, date training.Date) (DispatchResult, error) {
	rec, date, text, err := s.Preview(ctx, email, date)
	if err != nil {
		return DispatchResult{}, err
	}
	req := ManualDispatchRequest(rec.State.Settings.AutoReport, s.clock.Now().In(s.loc), rec.Email, date, text)
	res, err := s.dispatcher.Dispatch(ctx, req)
	if req.SlotKey != "" && shouldAdvanceCadence(err) {
		if serr := s.accounts.SetLastSentSlot(ctx, rec.Email, req.SlotKey); serr != nil {
			s.logger.WithError(serr).WithField("account", rec.Email).Error("Failed to store last sent slot")
		}
	}
	return res, err
}
