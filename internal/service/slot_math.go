package service

import (
	"sort"
	"time"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
)

const dateLayout = "2006-01-02"

type clockWindow struct {
	start int
	end   int
}

// mergedWindows returns the union of a day's recurring rules; overlapping and adjacent windows merge.
func mergedWindows(rules []models.AvailabilityRule, day int) []clockWindow {
	var windows []clockWindow
	for _, rule := range rules {
		if rule.DayOfWeek != day || !rule.IsRecurring {
			continue
		}
		start, end, err := rule.Window()
		if err != nil {
			continue
		}
		windows = append(windows, clockWindow{start: start, end: end})
	}
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].start != windows[j].start {
			return windows[i].start < windows[j].start
		}
		return windows[i].end < windows[j].end
	})

	merged := make([]clockWindow, 0, len(windows))
	for _, w := range windows {
		if n := len(merged); n > 0 && w.start <= merged[n-1].end {
			if w.end > merged[n-1].end {
				merged[n-1].end = w.end
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

func covers(windows []clockWindow, start, end int) bool {
	for _, w := range windows {
		if w.start <= start && end <= w.end {
			return true
		}
	}
	return false
}

// localSpan projects [start, end) onto one local calendar day as minutes since midnight.
// ok is false when the interval crosses local midnight.
func localSpan(start, end time.Time, loc *time.Location) (day, from, to int, ok bool) {
	ls, le := start.In(loc), end.In(loc)
	day = models.Weekday(ls)
	from = ls.Hour()*60 + ls.Minute()

	switch {
	case civilDays(ls, le) == 0:
		to = le.Hour()*60 + le.Minute()
		if le.Second() > 0 || le.Nanosecond() > 0 {
			to++
		}
	case civilDays(ls, le) == 1 && clockSeconds(le) == 0 && le.Nanosecond() == 0:
		to = models.MinutesPerDay
	default:
		return day, from, 0, false
	}
	return day, from, to, true
}

// wallTime returns minutes past local midnight of date; 24:00 rolls to the next day.
func wallTime(date time.Time, minutes int, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, loc)
}

func civilDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func clockSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// shiftWallClock moves t by the calendar-day and time-of-day delta between from and to,
// evaluated in loc so that DST changes keep lessons on their local clock time.
func shiftWallClock(t, from, to time.Time, loc *time.Location) time.Time {
	lt, lf, lto := t.In(loc), from.In(loc), to.In(loc)
	days := civilDays(lf, lto)
	delta := clockSeconds(lto) - clockSeconds(lf)
	y, m, d := lt.Date()
	return time.Date(y, m, d+days, lt.Hour(), lt.Minute(), lt.Second()+delta, lt.Nanosecond(), loc)
}

// samePattern reports whether b recurs on a's local weekday, clock time and duration.
func samePattern(a, b models.Lesson, loc *time.Location) bool {
	la, lb := a.StartTime.In(loc), b.StartTime.In(loc)
	return la.Weekday() == lb.Weekday() &&
		clockSeconds(la) == clockSeconds(lb) &&
		a.DurationMinutes == b.DurationMinutes
}

// startOfDay truncates t to local midnight.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	return wallTime(t, 0, loc)
}

// startOfWeek returns the local Monday midnight of t's week.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := startOfDay(t, loc)
	return day.AddDate(0, 0, -models.Weekday(day))
}

// freeWindows subtracts lessons from the unioned availability of each day in [weekStart, weekStart+7d).
// lessons must be sorted by start.
func freeWindows(weekStart time.Time, rules []models.AvailabilityRule, lessons []models.LessonDetail, loc *time.Location) []models.FreeWindow {
	free := make([]models.FreeWindow, 0)
	for offset := 0; offset < 7; offset++ {
		date := weekStart.AddDate(0, 0, offset)
		day := models.Weekday(date.In(loc))
		for _, w := range mergedWindows(rules, day) {
			cursor := wallTime(date, w.start, loc)
			end := wallTime(date, w.end, loc)
			for _, lesson := range lessons {
				if !lesson.Overlaps(cursor, end) {
					continue
				}
				if lesson.StartTime.After(cursor) {
					free = append(free, newFreeWindow(date, day, cursor, lesson.StartTime))
				}
				if lesson.EndTime.After(cursor) {
					cursor = lesson.EndTime
				}
			}
			if cursor.Before(end) {
				free = append(free, newFreeWindow(date, day, cursor, end))
			}
		}
	}
	return free
}

func newFreeWindow(date time.Time, day int, start, end time.Time) models.FreeWindow {
	return models.FreeWindow{Date: date.Format(dateLayout), DayOfWeek: day, Start: start, End: end}
}
