package app

import (
	"attendpro/internal/domain/payroll"
	"attendpro/internal/domain/training"

	"github.com/sirupsen/logrus"
)

// SalaryClosureStore computes monthly payroll and freezes it on close.
type SalaryClosureStore struct {
	ws     *Workspace
	logger *logrus.Entry
}

func NewSalaryClosureStore(ws *Workspace, logger *logrus.Entry) *SalaryClosureStore {
	return &SalaryClosureStore{ws: ws, logger: logger}
}

// GetReport returns the frozen snapshot for a closed month, otherwise a live report.
func (c *SalaryClosureStore) GetReport(owner string, month training.Month) payroll.Report {
	var report payroll.Report
	c.ws.View(func(s *State) {
		if closure := s.FindClosure(owner, month); closure != nil {
			report = closure.Frozen()
			return
		}
		report = payroll.BuildReport(month, s.CardsOf(owner))
	})
	return report
}

// CloseMonth snapshots the live report and locks the month. Closing an already
// closed month returns the existing snapshot unchanged.
func (c *SalaryClosureStore) CloseMonth(owner string, month training.Month) (payroll.Report, error) {
	if month.IsZero() {
		return payroll.Report{}, validationf("month is required")
	}

	var existing *payroll.Closure
	c.ws.View(func(s *State) {
		if cl := s.FindClosure(owner, month); cl != nil {
			existing = cl.Clone()
		}
	})
	if existing != nil {
		return existing.Frozen(), nil
	}

	now := c.ws.Clock().Now()
	var closed *payroll.Closure
	_, err := c.ws.Mutate(owner, "close_month", func(s *State) error {
		if cl := s.FindClosure(owner, month); cl != nil {
			closed = cl.Clone()
			return nil
		}
		closure := &payroll.Closure{
			OwnerID:  owner,
			Month:    month,
			ClosedAt: now,
			Snapshot: payroll.BuildReport(month, s.CardsOf(owner)),
		}
		s.Closures = append(s.Closures, closure)
		closed = closure.Clone()
		return nil
	})
	if err != nil {
		return payroll.Report{}, err
	}
	c.logger.WithFields(logrus.Fields{"month": month.String(), "sessions": closed.Snapshot.TotalSessions}).Info("Payroll month closed")
	return closed.Frozen(), nil
}

// ReopenMonth removes the closure so the month reports live data again.
// Reopening an open month is a no-op.
func (c *SalaryClosureStore) ReopenMonth(owner string, month training.Month) error {
	open := true
	c.ws.View(func(s *State) { open = s.FindClosure(owner, month) == nil })
	if open {
		return nil
	}
	_, err := c.ws.Mutate(owner, "reopen_month", func(s *State) error {
		kept := s.Closures[:0]
		for _, cl := range s.Closures {
			if cl.OwnerID == owner && cl.Month.Equal(month) {
				continue
			}
			kept = append(kept, cl)
		}
		s.Closures = kept
		return nil
	})
	if err == nil {
		c.logger.WithField("month", month.String()).Info("Payroll month reopened")
	}
	return err
}

func (c *SalaryClosureStore) ClosedMonths(owner string) []training.Month {
	months := []training.Month{}
	c.ws.View(func(s *State) {
		for _, cl := range s.ClosuresOf(owner) {
			months = append(months, cl.Month)
		}
	})
	return months
}

// Statistics aggregates all-time attendance for owner.
func (c *SalaryClosureStore) Statistics(owner string) payroll.Statistics {
	var st payroll.Statistics
	c.ws.View(func(s *State) { st = payroll.BuildStatistics(s.CardsOf(owner), s.GroupsOf(owner)) })
	return st
}
