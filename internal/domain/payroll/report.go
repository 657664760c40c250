// Package payroll computes the coach's monthly payroll and attendance statistics.
package payroll

import (
	"sort"
	"time"

	"attendpro/internal/domain/training"
)

// KindTotals aggregates attended sessions of one card kind.
type KindTotals struct {
	Sessions int     `json:"sessions"`
	Income   float64 `json:"income"`
}

// Row is a per-card payroll line.
type Row struct {
	CardID   string        `json:"cardId"`
	Name     string        `json:"name"`
	Kind     training.Kind `json:"kind"`
	Attended int           `json:"attended"`
	Income   float64       `json:"income"`
}

// Report is the payroll for one owner and month.
type Report struct {
	Month         training.Month `json:"month"`
	StartDate     training.Date  `json:"startDate"`
	EndDate       training.Date  `json:"endDate"`
	Personal      KindTotals     `json:"personal"`
	Split         KindTotals     `json:"split"`
	MiniGroup     KindTotals     `json:"miniGroup"`
	TotalSessions int            `json:"totalSessions"`
	TotalIncome   float64        `json:"totalIncome"`
	Rows          []Row          `json:"rows"`
	IsClosed      bool           `json:"isClosed"`
	ClosedAt      *time.Time     `json:"closedAt,omitempty"`
}

// Totals returns the aggregate for a kind.
func (r *Report) Totals(kind training.Kind) KindTotals {
	switch kind {
	case training.KindSplit:
		return r.Split
	case training.KindMiniGroup:
		return r.MiniGroup
	default:
		return r.Personal
	}
}

func (r *Report) totalsRef(kind training.Kind) *KindTotals {
	switch kind {
	case training.KindSplit:
		return &r.Split
	case training.KindMiniGroup:
		return &r.MiniGroup
	default:
		return &r.Personal
	}
}

// BuildReport computes a live payroll report from the given cards. Cards of
// other owners must be filtered by the caller.
func BuildReport(month training.Month, cards []*training.Card) Report {
	report := Report{
		Month:     month,
		StartDate: month.FirstDay(),
		EndDate:   month.LastDay(),
		Rows:      []Row{},
	}

	for _, card := range cards {
		attended := 0
		income := 0.0
		for _, s := range card.Sessions {
			if s.Status != training.StatusAttended || !month.Contains(s.Date) {
				continue
			}
			attended++
			income += s.CoachIncome
		}
		if attended == 0 {
			continue
		}
		income = training.RoundMoney(income)
		report.Rows = append(report.Rows, Row{
			CardID:   card.ID,
			Name:     card.Name,
			Kind:     card.Kind,
			Attended: attended,
			Income:   income,
		})
		t := report.totalsRef(card.Kind)
		t.Sessions += attended
		t.Income = training.RoundMoney(t.Income + income)
	}

	sort.SliceStable(report.Rows, func(i, j int) bool { return report.Rows[i].Income > report.Rows[j].Income })

	report.TotalSessions = report.Personal.Sessions + report.Split.Sessions + report.MiniGroup.Sessions
	report.TotalIncome = training.RoundMoney(report.Personal.Income + report.Split.Income + report.MiniGroup.Income)
	return report
}
