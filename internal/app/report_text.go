package app

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"attendpro/internal/domain/account"
	"attendpro/internal/domain/training"
)

const (
	// MaxReportRunes keeps a report inside one chat message.
	MaxReportRunes  = 3500
	truncatedMarker = "\n…\n(отчёт сокращён)"
)

var statusLabels = map[training.Status]string{
	training.StatusPlanned:  "не отмечено",
	training.StatusAttended: "посещено",
	training.StatusMissed:   "пропуск",
}

type summaryLine struct {
	hour int
	text string
}

// BuildDailySummary renders the attendance summary of one day for the operator chat.
func BuildDailySummary(title string, doc account.StateDocument, date training.Date) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Отчёт о посещаемости за %s", date.Format("02.01.2006"))
	if title != "" {
		fmt.Fprintf(&b, "\nТренер: %s", title)
	}

	var personal []summaryLine
	unmarked := 0
	for _, card := range doc.Cards {
		for _, s := range card.Sessions {
			if !s.Date.Equal(date) {
				continue
			}
			if s.Status == training.StatusPlanned {
				unmarked++
			}
			personal = append(personal, summaryLine{
				hour: s.Hour,
				text: fmt.Sprintf("• %s %s (%s): %s", training.HourLabel(s.Hour), card.Name, card.Kind.Label(), statusLabels[s.Status]),
			})
		}
	}
	sortLines(personal)

	b.WriteString("\n\nИндивидуальные и сплит-тренировки:")
	if len(personal) == 0 {
		b.WriteString("\nнет тренировок")
	}
	for _, l := range personal {
		b.WriteString("\n" + l.text)
	}
	if unmarked > 0 {
		fmt.Fprintf(&b, "\nНе отмечено: %d", unmarked)
	}

	var groups []summaryLine
	for _, g := range doc.Groups {
		for _, s := range g.Sessions {
			if !s.Date.Equal(date) {
				continue
			}
			present, absent := 0, 0
			for _, m := range g.Members {
				switch s.Attendance[m.ID] {
				case training.PresencePresent:
					present++
				case training.PresenceAbsent:
					absent++
				}
			}
			groups = append(groups, summaryLine{
				hour: s.Hour,
				text: fmt.Sprintf("• %s %s: присутствовали %d, отсутствовали %d, не отмечено %d",
					training.HourLabel(s.Hour), g.Name, present, absent, len(g.Members)-present-absent),
			})
		}
	}
	sortLines(groups)

	b.WriteString("\n\nГруппы:")
	if len(groups) == 0 {
		b.WriteString("\nнет занятий")
	}
	for _, l := range groups {
		b.WriteString("\n" + l.text)
	}

	return TruncateReport(b.String())
}

func sortLines(lines []summaryLine) {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].hour < lines[j].hour })
}

// TruncateReport cuts text to MaxReportRunes including the marker.
func TruncateReport(text string) string {
	if utf8.RuneCountInString(text) <= MaxReportRunes {
		return text
	}
	keep := MaxReportRunes - utf8.RuneCountInString(truncatedMarker)
	runes := []rune(text)
	return strings.TrimRight(string(runes[:keep]), " \n") + truncatedMarker
}
