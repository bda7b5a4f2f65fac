package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	withOffset, err := ParseTimestamp("2024-03-05T14:00:00+01:00")
	require.NoError(t, err)
	assert.False(t, IsFloating(withOffset))
	assert.True(t, withOffset.Equal(time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)))

	for _, raw := range []string{"2024-03-05T14:00:00", "2024-03-05 14:00:00", "2024-03-05T14:00", " 2024-03-05T14:00:00.000 "} {
		local, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, IsFloating(local), raw)
		assert.Equal(t, 14, local.Hour(), raw)
	}

	for _, raw := range []string{"", "tomorrow", "2024-03-05", "14:00"} {
		_, err := ParseTimestamp(raw)
		assert.Error(t, err, raw)
	}
}

func TestResolveLocal(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	local, err := ParseTimestamp("2024-03-05T14:00:00")
	require.NoError(t, err)
	resolved := ResolveLocal(local, berlin)
	assert.True(t, resolved.Equal(time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)))
	assert.False(t, IsFloating(resolved))

	instant := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, instant, ResolveLocal(instant, berlin))
	assert.True(t, ResolveLocal(local, nil).Equal(time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)))
}

func TestRescheduleRequestAcceptsBothTimestampForms(t *testing.T) {
	var local RescheduleLessonRequest
	require.NoError(t, json.Unmarshal([]byte(`{"new_start_time":"2024-03-05T14:00:00","reschedule_series":true}`), &local))
	assert.True(t, IsFloating(local.NewStartTime))
	assert.Equal(t, 14, local.NewStartTime.Hour())
	assert.True(t, local.RescheduleSeries)

	var utc RescheduleLessonRequest
	require.NoError(t, json.Unmarshal([]byte(`{"new_start_time":"2024-03-05T14:00:00Z"}`), &utc))
	assert.True(t, utc.NewStartTime.Equal(time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)))
	assert.False(t, utc.RescheduleSeries)

	var bad RescheduleLessonRequest
	assert.Error(t, json.Unmarshal([]byte(`{"new_start_time":"next tuesday"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"new_start_time":1709647200}`), &bad))
}

func TestBookRequestKeepsOtherFields(t *testing.T) {
	var req BookLessonRequest
	body := `{"teacher_id":"teacher-1","student_id":"student-1","start_time":"2024-03-04T10:00:00","duration_minutes":45,"is_regular":true,"occurrences":3,"series_id":"series-1"}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, "teacher-1", req.TeacherID)
	assert.Equal(t, "student-1", req.StudentID)
	assert.Equal(t, 45, req.DurationMinutes)
	assert.True(t, req.IsRegular)
	assert.Equal(t, 3, req.Occurrences)
	require.NotNil(t, req.SeriesID)
	assert.Equal(t, "series-1", *req.SeriesID)
	assert.True(t, IsFloating(req.StartTime))

	var missing BookLessonRequest
	require.NoError(t, json.Unmarshal([]byte(`{"teacher_id":"teacher-1","start_time":null}`), &missing))
	assert.True(t, missing.StartTime.IsZero())
}
