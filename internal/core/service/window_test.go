package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 15, hour, minute, 0, 0, time.Local)
}

func TestInWindowSameDay(t *testing.T) {
	assert.False(t, InWindow(at(17, 29), "17:30", "19:30"))
	assert.True(t, InWindow(at(17, 30), "17:30", "19:30"), "start bound is inclusive")
	assert.True(t, InWindow(at(18, 0), "17:30", "19:30"))
	assert.True(t, InWindow(at(19, 30), "17:30", "19:30"), "end bound is inclusive")
	assert.False(t, InWindow(at(19, 31), "17:30", "19:30"))
}

func TestInWindowOvernight(t *testing.T) {
	// 22:00 -> 06:00 wraps past midnight
	assert.True(t, InWindow(at(22, 0), "22:00", "06:00"), "start bound is inclusive")
	assert.True(t, InWindow(at(23, 59), "22:00", "06:00"))
	assert.True(t, InWindow(at(0, 30), "22:00", "06:00"))
	assert.True(t, InWindow(at(6, 0), "22:00", "06:00"), "end bound is inclusive")
	assert.False(t, InWindow(at(6, 1), "22:00", "06:00"))
	assert.False(t, InWindow(at(12, 0), "22:00", "06:00"), "day gap is outside")
	assert.False(t, InWindow(at(21, 59), "22:00", "06:00"))
}

func TestInWindowEqualBoundsCoversFullDay(t *testing.T) {
	assert.True(t, InWindow(at(3, 0), "10:00", "10:00"))
	assert.True(t, InWindow(at(10, 0), "10:00", "10:00"))
	assert.True(t, InWindow(at(23, 0), "10:00", "10:00"))
}

func TestInWindowInvalidSpec(t *testing.T) {
	assert.False(t, InWindow(at(12, 0), "banana", "19:30"))
	assert.False(t, InWindow(at(12, 0), "17:30", "25:99"))
	assert.False(t, InWindow(at(12, 0), "", ""))
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:45")
	assert.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 45, m)

	_, _, err = ParseClock("24:00")
	assert.Error(t, err)
	_, _, err = ParseClock("0700")
	assert.Error(t, err)
}
