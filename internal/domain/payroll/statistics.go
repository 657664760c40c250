package payroll

import "attendpro/internal/domain/training"

// CardStats is the per-card line of the statistics screen.
type CardStats struct {
	ID                 string        `json:"id"`
	Kind               string        `json:"kind"`
	Name               string        `json:"name"`
	Visits             int           `json:"visits"`
	Misses             int           `json:"misses"`
	PurchasedTrainings int           `json:"purchasedTrainings"`
	RemainingTrainings int           `json:"remainingTrainings"`
	Renewals           int           `json:"renewals"`
	Income             float64       `json:"income"`
	LastMarkedDate     training.Date `json:"lastMarkedDate"`
}

type Statistics struct {
	TotalVisits             int         `json:"totalVisits"`
	TotalMisses             int         `json:"totalMisses"`
	TotalPurchasedTrainings int         `json:"totalPurchasedTrainings"`
	TotalRemainingTrainings int         `json:"totalRemainingTrainings"`
	TotalPackageRenewals    int         `json:"totalPackageRenewals"`
	AvgIncomePerSession     float64     `json:"avgIncomePerSession"`
	AttendancePercent       float64     `json:"attendancePercent"`
	MissesPercent           float64     `json:"missesPercent"`
	TotalIncome             float64     `json:"totalIncome"`
	Cards                   []CardStats `json:"cards"`
}

// BuildStatistics aggregates all-time attendance over billable cards and groups.
func BuildStatistics(cards []*training.Card, groups []*training.GroupCard) Statistics {
	var st Statistics
	st.Cards = []CardStats{}
	paid := 0

	for _, card := range cards {
		cs := CardStats{
			ID:                 card.ID,
			Kind:               string(card.Kind),
			Name:               card.Name,
			RemainingTrainings: card.Remaining,
		}
		for _, s := range card.Sessions {
			switch s.Status {
			case training.StatusAttended:
				cs.Visits++
				cs.Income += s.CoachIncome
			case training.StatusMissed:
				cs.Misses++
			default:
				continue
			}
			if s.Date.After(cs.LastMarkedDate) {
				cs.LastMarkedDate = s.Date
			}
		}
		for _, p := range card.PackagesHistory {
			cs.PurchasedTrainings += p.Count
		}
		if n := len(card.PackagesHistory); n > 1 {
			cs.Renewals = n - 1
		}
		cs.Income = training.RoundMoney(cs.Income)

		st.TotalVisits += cs.Visits
		st.TotalMisses += cs.Misses
		st.TotalPurchasedTrainings += cs.PurchasedTrainings
		st.TotalRemainingTrainings += cs.RemainingTrainings
		st.TotalPackageRenewals += cs.Renewals
		st.TotalIncome += cs.Income
		paid += cs.Visits
		st.Cards = append(st.Cards, cs)
	}

	for _, g := range groups {
		cs := CardStats{ID: g.ID, Kind: "group", Name: g.Name}
		for _, s := range g.Sessions {
			if !s.Marked() {
				continue
			}
			for _, p := range s.Attendance {
				if p == training.PresencePresent {
					cs.Visits++
				} else {
					cs.Misses++
				}
			}
			if s.Date.After(cs.LastMarkedDate) {
				cs.LastMarkedDate = s.Date
			}
		}
		st.TotalVisits += cs.Visits
		st.TotalMisses += cs.Misses
		st.Cards = append(st.Cards, cs)
	}

	if marks := st.TotalVisits + st.TotalMisses; marks > 0 {
		st.AttendancePercent = training.RoundMoney(float64(st.TotalVisits) / float64(marks) * 100)
		st.MissesPercent = training.RoundMoney(float64(st.TotalMisses) / float64(marks) * 100)
	}
	if paid > 0 {
		st.AvgIncomePerSession = training.RoundMoney(st.TotalIncome / float64(paid))
	}
	st.TotalIncome = training.RoundMoney(st.TotalIncome)
	return st
}
