package chat

import "time"

// FormatMessageTime renders a message timestamp the way the
// conversation list shows it: time of day for today, "Ontem" for
// yesterday, the full date for anything older.
func FormatMessageTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if sameDay(t, now) {
		return t.Format("15:04")
	}
	if sameDay(t, now.AddDate(0, 0, -1)) {
		return "Ontem"
	}
	return t.Format("02/01/2006")
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
