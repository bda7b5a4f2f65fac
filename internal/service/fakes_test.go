package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/config"
)

var (
	// 2024-03-04 is a Monday.
	monday   = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	testNow  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	calendar = config.CalendarConfig{
		Timezone:             "UTC",
		Location:             time.UTC,
		DefaultLessonMinutes: 60,
		MaxLessonMinutes:     240,
		MaxSeriesOccurrences: 52,
		UpcomingDefaultLimit: 5,
		UpcomingMaxLimit:     20,
	}
)

func at(day, hour, minute int) time.Time {
	return monday.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// memStore is an in-memory calendar store. memTx snapshots it so a failed unit of work leaves no trace.
type memStore struct {
	mu       sync.Mutex
	teachers map[string]models.Teacher
	students map[string]models.Student
	rules    map[string][]models.AvailabilityRule
	lessons  map[string]models.Lesson
	seq      int

	failReplaceAfter int
	failUpdate       func(models.Lesson) error
}

func newMemStore() *memStore {
	return &memStore{
		teachers: map[string]models.Teacher{
			"teacher-1": {ID: "teacher-1", FullName: "Anna Petrova", Active: true},
			"teacher-2": {ID: "teacher-2", FullName: "Boris Ivanov", Active: true},
			"retired":   {ID: "retired", FullName: "Old Teacher", Active: false},
		},
		students: map[string]models.Student{
			"student-1": {ID: "student-1", FullName: "Masha", ParentID: strPtr("parent-1")},
			"student-2": {ID: "student-2", FullName: "Ivan"},
		},
		rules:   map[string][]models.AvailabilityRule{},
		lessons: map[string]models.Lesson{},
	}
}

func strPtr(v string) *string { return &v }

func (m *memStore) addRule(teacherID string, day int, start, end string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.rules[teacherID] = append(m.rules[teacherID], models.AvailabilityRule{
		ID: fmt.Sprintf("rule-%d", m.seq), TeacherID: teacherID, DayOfWeek: day, StartTime: start, EndTime: end, IsRecurring: true,
	})
}

func (m *memStore) addLesson(l models.Lesson) models.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		m.seq++
		l.ID = fmt.Sprintf("seed-%d", m.seq)
	}
	if l.DurationMinutes == 0 {
		l.DurationMinutes = 60
	}
	l.EndTime = l.StartTime.Add(time.Duration(l.DurationMinutes) * time.Minute)
	if l.Status == "" {
		l.Status = models.LessonStatusScheduled
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = testNow.Add(-24 * time.Hour)
		l.UpdatedAt = l.CreatedAt
	}
	m.lessons[l.ID] = l
	return l
}

func (m *memStore) lesson(id string) models.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lessons[id]
}

func (m *memStore) lessonCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lessons)
}

func (m *memStore) scheduledFor(teacherID string) []models.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lesson
	for _, l := range m.lessons {
		if l.TeacherID == teacherID && l.Status == models.LessonStatusScheduled {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *memStore) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	rules := make(map[string][]models.AvailabilityRule, len(m.rules))
	for k, v := range m.rules {
		rules[k] = append([]models.AvailabilityRule(nil), v...)
	}
	lessons := make(map[string]models.Lesson, len(m.lessons))
	for k, v := range m.lessons {
		lessons[k] = v
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rules = rules
		m.lessons = lessons
	}
}

type memTx struct{ store *memStore }

func (t memTx) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	restore := t.store.snapshot()
	if err := fn(nil); err != nil {
		restore()
		return err
	}
	return nil
}

type memTeachers struct{ *memStore }

func (m memTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (m memTeachers) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Teacher, error) {
	return m.FindByID(ctx, id)
}

type memStudents struct{ *memStore }

func (m memStudents) FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

type memRules struct{ *memStore }

func (m memRules) ListRecurringByTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string) ([]models.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AvailabilityRule
	for _, r := range m.rules[teacherID] {
		if r.IsRecurring {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m memRules) ReplaceForTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string, rules []models.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[teacherID] = nil
	for i := range rules {
		if m.failReplaceAfter > 0 && i == m.failReplaceAfter {
			return fmt.Errorf("insert availability rule: connection reset")
		}
		m.seq++
		rules[i].ID = fmt.Sprintf("rule-%d", m.seq)
		rules[i].TeacherID = teacherID
		m.rules[teacherID] = append(m.rules[teacherID], rules[i])
	}
	return nil
}

type memLessons struct{ *memStore }

func (m memLessons) detail(l models.Lesson) models.LessonDetail {
	return models.LessonDetail{Lesson: l, TeacherName: m.teachers[l.TeacherID].FullName, StudentName: m.students[l.StudentID].FullName}
}

func (m memLessons) collect(keep func(models.Lesson) bool) []models.Lesson {
	var out []models.Lesson
	for _, l := range m.lessons {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m memLessons) details(lessons []models.Lesson) []models.LessonDetail {
	out := make([]models.LessonDetail, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, m.detail(l))
	}
	return out
}

func (m memLessons) FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (m memLessons) FindSeriesMember(ctx context.Context, tx *sqlx.Tx, seriesID string) (*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.collect(func(l models.Lesson) bool { return l.SeriesID != nil && *l.SeriesID == seriesID })
	if len(members) == 0 {
		return nil, sql.ErrNoRows
	}
	return &members[0], nil
}

func (m memLessons) FindDetails(ctx context.Context, tx *sqlx.Tx, ids []string) ([]models.LessonDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return m.details(m.collect(func(l models.Lesson) bool { return want[l.ID] })), nil
}

func (m memLessons) ListOverlapping(ctx context.Context, tx *sqlx.Tx, teacherID string, start, end time.Time) ([]models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(l models.Lesson) bool {
		return l.TeacherID == teacherID && l.Status == models.LessonStatusScheduled && l.Overlaps(start, end)
	}), nil
}

func (m memLessons) ListTeacherWeek(ctx context.Context, teacherID string, from, to time.Time) ([]models.LessonDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.details(m.collect(func(l models.Lesson) bool {
		return l.TeacherID == teacherID && l.Status == models.LessonStatusScheduled && l.StartTime.Before(to) && l.EndTime.After(from)
	})), nil
}

func (m memLessons) ListSeries(ctx context.Context, tx *sqlx.Tx, seriesID string, from time.Time) ([]models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(l models.Lesson) bool {
		return l.SeriesID != nil && *l.SeriesID == seriesID && l.Status == models.LessonStatusScheduled && !l.StartTime.Before(from)
	}), nil
}

func (m memLessons) ListRegularUnlinked(ctx context.Context, tx *sqlx.Tx, teacherID, studentID string, from time.Time) ([]models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(l models.Lesson) bool {
		return l.TeacherID == teacherID && l.StudentID == studentID && l.IsRegular && l.SeriesID == nil &&
			l.Status == models.LessonStatusScheduled && !l.StartTime.Before(from)
	}), nil
}

func (m memLessons) Create(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	lesson.ID = fmt.Sprintf("lesson-%d", m.seq)
	m.lessons[lesson.ID] = *lesson
	return nil
}

func (m memLessons) UpdateSchedule(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.lessons[lesson.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if m.failUpdate != nil {
		if err := m.failUpdate(*lesson); err != nil {
			return err
		}
	}
	current.StartTime, current.EndTime, current.UpdatedAt = lesson.StartTime, lesson.EndTime, lesson.UpdatedAt
	m.lessons[lesson.ID] = current
	return nil
}

func (m memLessons) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.LessonStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.lessons[id]
	if !ok {
		return sql.ErrNoRows
	}
	current.Status, current.UpdatedAt = status, at
	m.lessons[id] = current
	return nil
}

func (m memLessons) List(ctx context.Context, filter models.LessonFilter) ([]models.LessonDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.collect(func(l models.Lesson) bool {
		switch {
		case filter.TeacherID != "" && l.TeacherID != filter.TeacherID,
			filter.StudentID != "" && l.StudentID != filter.StudentID,
			filter.From != nil && l.StartTime.Before(*filter.From),
			filter.To != nil && !l.StartTime.Before(*filter.To),
			!filter.IncludeCancelled && l.Status != models.LessonStatusScheduled:
			return false
		}
		return true
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return m.details(out), nil
}

func (m memLessons) Stats(ctx context.Context, scope models.LessonScope, weekFrom, weekTo time.Time) (*models.LessonStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats models.LessonStats
	for _, l := range m.collect(func(l models.Lesson) bool {
		return l.Status == models.LessonStatusScheduled &&
			(scope.TeacherID == "" || l.TeacherID == scope.TeacherID) &&
			(scope.StudentID == "" || l.StudentID == scope.StudentID)
	}) {
		if !l.StartTime.Before(weekFrom) && l.StartTime.Before(weekTo) {
			stats.WeekLessons++
		}
		if l.IsRegular {
			stats.RegularLessons++
		}
		if l.Rescheduled() {
			stats.RescheduledLessons++
		}
	}
	return &stats, nil
}

// fakeCache records availability cache traffic, keyed by generation like CacheService.
type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]models.WeeklyAvailability
	generations map[string]int64
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]models.WeeklyAvailability{}, generations: map[string]int64{}}
}

func fakeCacheKey(teacherID string, generation int64, weekStart string) string {
	return fmt.Sprintf("%s|%d|%s", teacherID, generation, weekStart)
}

func (c *fakeCache) Generation(ctx context.Context, teacherID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[teacherID], true
}

func (c *fakeCache) GetAvailability(ctx context.Context, teacherID string, generation int64, weekStart string, dest *models.WeeklyAvailability) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[fakeCacheKey(teacherID, generation, weekStart)]
	if ok {
		*dest = v
	}
	return ok
}

func (c *fakeCache) SetAvailability(ctx context.Context, teacherID string, generation int64, weekStart string, value *models.WeeklyAvailability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fakeCacheKey(teacherID, generation, weekStart)] = *value
}

func (c *fakeCache) InvalidateTeacher(ctx context.Context, teacherID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, teacherID)
	c.generations[teacherID]++
	for k := range c.entries {
		if strings.HasPrefix(k, teacherID+"|") {
			delete(c.entries, k)
		}
	}
}

type harness struct {
	store        *memStore
	cache        *fakeCache
	availability *AvailabilityService
	booking      *BookingService
	lessons      *LessonService
	calendar     *CalendarService
}

func newHarness() *harness {
	store := newMemStore()
	cache := newFakeCache()
	locks := NewTeacherLocks()
	tx := memTx{store: store}
	teachers, students, rules, lessons := memTeachers{store}, memStudents{store}, memRules{store}, memLessons{store}
	clock := func() time.Time { return testNow }

	h := &harness{
		store:        store,
		cache:        cache,
		availability: NewAvailabilityService(teachers, rules, lessons, tx, locks, cache, nil, calendar, nil, nil),
		booking:      NewBookingService(teachers, students, rules, lessons, tx, locks, cache, nil, calendar, nil, nil),
		lessons:      NewLessonService(teachers, rules, lessons, tx, locks, cache, nil, calendar, nil, nil),
		calendar:     NewCalendarService(lessons, students, calendar, config.ExportsConfig{Title: "Test calendar"}, nil),
	}
	h.availability.now = clock
	h.booking.now = clock
	h.lessons.now = clock
	h.calendar.now = clock
	return h
}
