package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

func intPtr(v int) *int { return &v }

func ruleInput(day int, start, end string) dto.AvailabilityRuleInput {
	return dto.AvailabilityRuleInput{Day: intPtr(day), Start: start, End: end}
}

func TestGetAvailabilityWeek(t *testing.T) {
	h := newHarness()
	h.store.addRule("teacher-1", 1, "09:00", "11:00")
	h.store.addRule("teacher-1", 0, "12:00", "18:00")
	h.store.addRule("teacher-1", 0, "09:00", "12:00")
	morning := h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-1", StartTime: at(0, 10, 0)})
	evening := h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-2", StartTime: at(0, 17, 0)})
	h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-1", StartTime: at(-1, 10, 0)})
	h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-1", StartTime: at(7, 10, 0)})
	h.store.addLesson(models.Lesson{TeacherID: "teacher-2", StudentID: "student-1", StartTime: at(0, 12, 0)})
	h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-1", StartTime: at(1, 9, 0), Status: models.LessonStatusCancelled})

	week, hit, err := h.availability.GetAvailability(context.Background(), "teacher-1", "2024-03-04")
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, "2024-03-04", week.WeekStart)
	assert.Equal(t, "UTC", week.Timezone)
	require.Len(t, week.Rules, 3)
	assert.Equal(t, []string{"09:00", "12:00", "09:00"}, []string{week.Rules[0].StartTime, week.Rules[1].StartTime, week.Rules[2].StartTime})
	assert.Equal(t, 1, week.Rules[2].DayOfWeek)

	require.Len(t, week.Lessons, 2)
	assert.Equal(t, morning.ID, week.Lessons[0].ID)
	assert.Equal(t, evening.ID, week.Lessons[1].ID)
	assert.Equal(t, "Masha", week.Lessons[0].StudentName)

	assert.Equal(t, []models.FreeWindow{
		{Date: "2024-03-04", DayOfWeek: 0, Start: at(0, 9, 0), End: at(0, 10, 0)},
		{Date: "2024-03-04", DayOfWeek: 0, Start: at(0, 11, 0), End: at(0, 17, 0)},
		{Date: "2024-03-05", DayOfWeek: 1, Start: at(1, 9, 0), End: at(1, 11, 0)},
	}, week.FreeWindows)
}

func TestGetAvailabilityWithoutRules(t *testing.T) {
	h := newHarness()

	week, _, err := h.availability.GetAvailability(context.Background(), "teacher-2", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", week.WeekStart)
	assert.NotNil(t, week.Rules)
	assert.Empty(t, week.Rules)
	assert.NotNil(t, week.Lessons)
	assert.NotNil(t, week.FreeWindows)
	assert.Empty(t, week.FreeWindows)
}

func TestGetAvailabilityRejectsBadInput(t *testing.T) {
	h := newHarness()

	_, _, err := h.availability.GetAvailability(context.Background(), " ", "2024-03-04")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument.Code))

	_, _, err = h.availability.GetAvailability(context.Background(), "teacher-1", "04.03.2024")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument.Code))
}

func TestGetAvailabilityServesCacheUntilInvalidated(t *testing.T) {
	h := newHarness()
	h.store.addRule("teacher-1", 0, "09:00", "18:00")
	ctx := context.Background()

	first, hit, err := h.availability.GetAvailability(ctx, "teacher-1", "2024-03-04")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, first.Lessons)

	h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-1", StartTime: at(0, 10, 0)})
	cached, hit, err := h.availability.GetAvailability(ctx, "teacher-1", "2024-03-04")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Empty(t, cached.Lessons)

	_, err = h.booking.Book(ctx, bookReq(0, 14, 0, 60))
	require.NoError(t, err)
	fresh, hit, err := h.availability.GetAvailability(ctx, "teacher-1", "2024-03-04")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, fresh.Lessons, 2)
}

// racingLessons runs afterWeek once, right after the week's lessons were read.
type racingLessons struct {
	memLessons
	once      sync.Once
	afterWeek func()
}

func (r *racingLessons) ListTeacherWeek(ctx context.Context, teacherID string, from, to time.Time) ([]models.LessonDetail, error) {
	lessons, err := r.memLessons.ListTeacherWeek(ctx, teacherID, from, to)
	if r.afterWeek != nil {
		r.once.Do(r.afterWeek)
	}
	return lessons, err
}

func TestGetAvailabilityDoesNotCacheWeekReadBeforeACommit(t *testing.T) {
	store := newMemStore()
	store.addRule("teacher-1", 0, "09:00", "18:00")
	cache := NewCacheService(newStubCacheRepo(), nil, time.Minute, nil, true)
	locks := NewTeacherLocks()
	tx := memTx{store: store}
	clock := func() time.Time { return testNow }
	ctx := context.Background()

	booking := NewBookingService(memTeachers{store}, memStudents{store}, memRules{store}, memLessons{store}, tx, locks, cache, nil, calendar, nil, nil)
	booking.now = clock
	lessons := &racingLessons{memLessons: memLessons{store}}
	availability := NewAvailabilityService(memTeachers{store}, memRules{store}, lessons, tx, locks, cache, nil, calendar, nil, nil)
	availability.now = clock
	lessons.afterWeek = func() {
		_, err := booking.Book(ctx, bookReq(0, 10, 0, 60))
		require.NoError(t, err)
	}

	first, hit, err := availability.GetAvailability(ctx, "teacher-1", "2024-03-04")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, first.Lessons)

	second, hit, err := availability.GetAvailability(ctx, "teacher-1", "2024-03-04")
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, second.Lessons, 1)
	assert.Equal(t, at(0, 10, 0), second.Lessons[0].StartTime)

	third, hit, err := availability.GetAvailability(ctx, "teacher-1", "2024-03-04")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, third.Lessons, 1)
}

func TestGetAvailabilityCountsLessonRunningIntoTheWeek(t *testing.T) {
	h := newHarness()
	h.store.addRule("teacher-1", 0, "00:00", "02:00")
	late := h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-1", StartTime: at(-1, 23, 30)})

	week, _, err := h.availability.GetAvailability(context.Background(), "teacher-1", "2024-03-04")
	require.NoError(t, err)
	require.Len(t, week.Lessons, 1)
	assert.Equal(t, late.ID, week.Lessons[0].ID)
	assert.Equal(t, []models.FreeWindow{
		{Date: "2024-03-04", DayOfWeek: 0, Start: at(0, 0, 30), End: at(0, 2, 0)},
	}, week.FreeWindows)
}

func TestReplaceAvailability(t *testing.T) {
	h := newHarness()
	h.store.addRule("teacher-1", 4, "08:00", "09:00")

	rules, err := h.availability.ReplaceAvailability(context.Background(), "teacher-1", dto.ReplaceAvailabilityRequest{
		Availability: []dto.AvailabilityRuleInput{
			ruleInput(2, "14:00", "24:00"),
			ruleInput(0, "09:00", "18:00"),
		},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, 0, rules[0].DayOfWeek)
	assert.True(t, rules[0].IsRecurring)
	assert.Equal(t, "teacher-1", rules[1].TeacherID)
	assert.Equal(t, "24:00", rules[1].EndTime)

	stored, _ := memRules{h.store}.ListRecurringByTeacher(context.Background(), nil, "teacher-1")
	assert.Len(t, stored, 2)
	assert.Equal(t, []string{"teacher-1"}, h.cache.invalidated)

	rules, err = h.availability.ReplaceAvailability(context.Background(), "teacher-1", dto.ReplaceAvailabilityRequest{})
	require.NoError(t, err)
	assert.Empty(t, rules)
	stored, _ = memRules{h.store}.ListRecurringByTeacher(context.Background(), nil, "teacher-1")
	assert.Empty(t, stored)
}

func TestReplaceAvailabilityValidation(t *testing.T) {
	cases := map[string]dto.AvailabilityRuleInput{
		"missing day":      {Start: "09:00", End: "10:00"},
		"day out of range": ruleInput(7, "09:00", "10:00"),
		"reversed window":  ruleInput(0, "10:00", "09:00"),
		"empty window":     ruleInput(0, "10:00", "10:00"),
		"midnight start":   ruleInput(0, "24:00", "24:00"),
		"bad clock":        ruleInput(0, "9:00a", "10:00"),
		"minutes overflow": ruleInput(0, "09:60", "10:00"),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			h.store.addRule("teacher-1", 4, "08:00", "09:00")

			_, err := h.availability.ReplaceAvailability(context.Background(), "teacher-1", dto.ReplaceAvailabilityRequest{
				Availability: []dto.AvailabilityRuleInput{ruleInput(1, "09:00", "10:00"), input},
			})
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument.Code))

			stored, _ := memRules{h.store}.ListRecurringByTeacher(context.Background(), nil, "teacher-1")
			require.Len(t, stored, 1)
			assert.Equal(t, 4, stored[0].DayOfWeek)
		})
	}
}

func TestReplaceAvailabilityUnknownTeacher(t *testing.T) {
	h := newHarness()

	_, err := h.availability.ReplaceAvailability(context.Background(), "ghost", dto.ReplaceAvailabilityRequest{
		Availability: []dto.AvailabilityRuleInput{ruleInput(0, "09:00", "10:00")},
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
	assert.Empty(t, h.cache.invalidated)
}

func TestReplaceAvailabilityKeepsOldRulesOnFailure(t *testing.T) {
	h := newHarness()
	h.store.addRule("teacher-1", 4, "08:00", "09:00")
	h.store.failReplaceAfter = 1

	_, err := h.availability.ReplaceAvailability(context.Background(), "teacher-1", dto.ReplaceAvailabilityRequest{
		Availability: []dto.AvailabilityRuleInput{ruleInput(0, "09:00", "10:00"), ruleInput(1, "09:00", "10:00")},
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))

	stored, _ := memRules{h.store}.ListRecurringByTeacher(context.Background(), nil, "teacher-1")
	require.Len(t, stored, 1)
	assert.Equal(t, "08:00", stored[0].StartTime)
}

func TestCheckSlot(t *testing.T) {
	h := newHarness()
	h.store.addRule("teacher-1", 0, "09:00", "18:00")
	booked := h.store.addLesson(models.Lesson{TeacherID: "teacher-1", StudentID: "student-1", StartTime: at(0, 10, 0)})
	ctx := context.Background()

	check, err := h.availability.CheckSlot(ctx, "teacher-1", at(0, 11, 0), 0)
	require.NoError(t, err)
	assert.True(t, check.Free)
	assert.Equal(t, at(0, 12, 0), check.End)

	check, err = h.availability.CheckSlot(ctx, "teacher-1", at(0, 10, 30), 30)
	require.NoError(t, err)
	assert.False(t, check.Free)
	assert.Equal(t, models.SlotReasonConflict, check.Reason)
	require.Len(t, check.Conflicts, 1)
	assert.Equal(t, booked.ID, check.Conflicts[0].LessonID)

	check, err = h.availability.CheckSlot(ctx, "teacher-1", at(0, 17, 30), 60)
	require.NoError(t, err)
	assert.False(t, check.Free)
	assert.Equal(t, models.SlotReasonOutsideAvailability, check.Reason)

	_, err = h.availability.CheckSlot(ctx, "ghost", at(0, 11, 0), 60)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = h.availability.CheckSlot(ctx, "teacher-1", time.Time{}, 60)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument.Code))

	_, err = h.availability.CheckSlot(ctx, "teacher-1", at(0, 11, 0), 1000)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument.Code))
	assert.Equal(t, 1, h.store.lessonCount())
}
