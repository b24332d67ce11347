package service

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
)

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.Schedule.StartTime = "17:30"
	s.Schedule.EndTime = "19:30"
	s.Schedule.CutoffSoC = 50
	s.Schedule.MinSoCReserve = 20
	return s
}

func soc(v float64) *float64 {
	return &v
}

func TestDecideForceDischarge(t *testing.T) {
	inWindow := time.Date(2025, 6, 15, 18, 0, 0, 0, time.Local)
	outside := time.Date(2025, 6, 15, 9, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		in   DecisionInput
		want bool
	}{
		{"soc above cutoff in window", DecisionInput{Settings: testSettings(), Now: inWindow, SoC: soc(75)}, true},
		{"soc equal to cutoff", DecisionInput{Settings: testSettings(), Now: inWindow, SoC: soc(50)}, false},
		{"soc just above cutoff", DecisionInput{Settings: testSettings(), Now: inWindow, SoC: soc(50.1)}, true},
		{"outside window", DecisionInput{Settings: testSettings(), Now: outside, SoC: soc(75)}, false},
		{"unknown soc does not block", DecisionInput{Settings: testSettings(), Now: inWindow, SoC: nil}, true},
		{"weather skip wins", DecisionInput{Settings: testSettings(), Now: inWindow, SoC: soc(75), WeatherSkip: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.in).ForceDischarge)
		})
	}
}

func TestDecideDisabledFeature(t *testing.T) {
	s := testSettings()
	s.Schedule.Enabled = false
	in := DecisionInput{
		Settings: s,
		Now:      time.Date(2025, 6, 15, 18, 0, 0, 0, time.Local),
		SoC:      soc(75),
	}
	d := Decide(in)
	assert.True(t, d.InDischargeWindow, "window membership is reported even when disabled")
	assert.False(t, d.ForceDischarge)
}

func TestDecideReactivationMargin(t *testing.T) {
	s := testSettings()
	s.Schedule.ReactivationMargin = 5
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, time.Local)

	// ACTIVE: stays on above the bare cutoff, even below cutoff+margin.
	d := Decide(DecisionInput{Settings: s, Now: now, SoC: soc(53), DischargeActive: true})
	assert.True(t, d.ForceDischarge, "active discharge holds until the cutoff itself")

	d = Decide(DecisionInput{Settings: s, Now: now, SoC: soc(50), DischargeActive: true})
	assert.False(t, d.ForceDischarge, "active discharge stops at the cutoff")

	// INACTIVE: does not re-arm until SoC exceeds cutoff+margin.
	d = Decide(DecisionInput{Settings: s, Now: now, SoC: soc(55), DischargeActive: false})
	assert.False(t, d.ForceDischarge, "cutoff+margin exactly does not re-arm")

	d = Decide(DecisionInput{Settings: s, Now: now, SoC: soc(55.5), DischargeActive: false})
	assert.True(t, d.ForceDischarge)
}

func TestDecideForceCharge(t *testing.T) {
	s := testSettings()
	s.Charge.Enabled = true
	s.Charge.StartTime = "02:00"
	s.Charge.EndTime = "05:00"
	s.Charge.TargetSoC = 90
	night := time.Date(2025, 6, 15, 3, 0, 0, 0, time.Local)

	assert.True(t, Decide(DecisionInput{Settings: s, Now: night, SoC: soc(40)}).ForceCharge)
	assert.False(t, Decide(DecisionInput{Settings: s, Now: night, SoC: soc(90)}).ForceCharge, "target reached")
	assert.True(t, Decide(DecisionInput{Settings: s, Now: night, SoC: nil}).ForceCharge, "unknown soc does not block")

	s.Charge.TargetSoC = 0
	assert.False(t, Decide(DecisionInput{Settings: s, Now: night, SoC: soc(40)}).ForceCharge, "no target configured")
}

func TestDecideFreeEnergyWindow(t *testing.T) {
	s := testSettings()
	s.FreeEnergy.Enabled = true
	s.FreeEnergy.StartTime = "11:00"
	s.FreeEnergy.EndTime = "14:00"

	noon := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)
	evening := time.Date(2025, 6, 15, 18, 0, 0, 0, time.Local)

	assert.True(t, Decide(DecisionInput{Settings: s, Now: noon, SoC: soc(50)}).InFreeEnergyWindow)
	assert.False(t, Decide(DecisionInput{Settings: s, Now: evening, SoC: soc(50)}).InFreeEnergyWindow)

	s.FreeEnergy.Enabled = false
	assert.False(t, Decide(DecisionInput{Settings: s, Now: noon, SoC: soc(50)}).InFreeEnergyWindow)
}

func segmentAt(t *testing.T, sched domain.TOUSchedule, at string) domain.TOUSegment {
	t.Helper()
	for _, seg := range sched.Segments {
		if seg.Time == at {
			return seg
		}
	}
	t.Fatalf("no TOU segment at %s", at)
	return domain.TOUSegment{}
}

func TestBuildTOUScheduleDischargeActive(t *testing.T) {
	s := testSettings()
	sched := BuildTOUSchedule(s, 50, 10000)

	assert.Equal(t, 50, segmentAt(t, sched, "17:30").SoC, "window segment holds the cutoff")
	assert.Equal(t, 20, segmentAt(t, sched, "19:30").SoC)
	assert.Equal(t, 20, segmentAt(t, sched, "00:00").SoC)
	assert.Equal(t, 20, segmentAt(t, sched, "06:00").SoC)
	for _, seg := range sched.Segments {
		assert.Equal(t, 10000, seg.PowerWatt)
		assert.False(t, seg.GridCharge)
	}
	assert.True(t, sort.SliceIsSorted(sched.Segments, func(i, j int) bool {
		return sched.Segments[i].Time < sched.Segments[j].Time
	}))
}

func TestBuildTOUScheduleInactive(t *testing.T) {
	sched := BuildTOUSchedule(testSettings(), 20, 8000)
	for _, seg := range sched.Segments {
		assert.Equal(t, 20, seg.SoC, "all segments at reserve when inactive")
	}
}

func TestBuildTOUScheduleFreeEnergySegment(t *testing.T) {
	s := testSettings()
	s.FreeEnergy.Enabled = true
	s.FreeEnergy.StartTime = "11:00"
	s.FreeEnergy.EndTime = "14:00"
	s.FreeEnergy.TargetSoC = 100

	sched := BuildTOUSchedule(s, 20, 10000)
	seg := segmentAt(t, sched, "11:00")
	assert.True(t, seg.GridCharge)
	assert.Equal(t, 100, seg.SoC)
	assert.False(t, segmentAt(t, sched, "14:00").GridCharge)
}

func assertSixUniqueSegments(t *testing.T, sched domain.TOUSchedule) {
	t.Helper()
	assert.Len(t, sched.Segments, 6, "the inverter TOU block has exactly six slots")
	seen := map[string]bool{}
	for _, seg := range sched.Segments {
		assert.False(t, seen[seg.Time], "duplicate segment at %s", seg.Time)
		seen[seg.Time] = true
	}
}

func TestBuildTOUScheduleAlwaysSixSegments(t *testing.T) {
	s := testSettings()
	assertSixUniqueSegments(t, BuildTOUSchedule(s, 50, 10000))

	s.FreeEnergy.Enabled = true
	assertSixUniqueSegments(t, BuildTOUSchedule(s, 50, 10000))

	s.Charge.Enabled = true
	sched := BuildTOUSchedule(s, 50, 10000)
	assertSixUniqueSegments(t, sched)

	// the default charge and free energy windows fold onto the filler
	// anchors nearest to them, leaving the discharge window untouched
	times := make([]string, 0, len(sched.Segments))
	for _, seg := range sched.Segments {
		times = append(times, seg.Time)
	}
	assert.Equal(t, []string{"02:00", "05:00", "11:00", "14:00", "17:30", "19:30"}, times)
	assert.True(t, segmentAt(t, sched, "02:00").GridCharge)
	assert.False(t, segmentAt(t, sched, "05:00").GridCharge)
	assert.True(t, segmentAt(t, sched, "11:00").GridCharge)
	assert.Equal(t, 50, segmentAt(t, sched, "17:30").SoC)
}

func TestBuildTOUScheduleWindowAnchorsProtected(t *testing.T) {
	s := testSettings()
	s.Charge.Enabled = true
	s.Charge.StartTime = "16:00"
	s.Charge.EndTime = "17:30" // collides with the discharge window start
	s.Charge.TargetSoC = 90

	sched := BuildTOUSchedule(s, 50, 10000)
	assertSixUniqueSegments(t, sched)

	seg := segmentAt(t, sched, "17:30")
	assert.Equal(t, 50, seg.SoC, "the discharge window anchor keeps the cutoff")
	assert.False(t, seg.GridCharge)
	assert.True(t, segmentAt(t, sched, "16:00").GridCharge)
}

func TestBuildTOUScheduleChargeOverridesFixedAnchor(t *testing.T) {
	s := testSettings()
	s.Charge.Enabled = true
	s.Charge.StartTime = "06:00"
	s.Charge.EndTime = "08:00"
	s.Charge.TargetSoC = 95

	sched := BuildTOUSchedule(s, 20, 10000)
	seg := segmentAt(t, sched, "06:00")
	assert.True(t, seg.GridCharge, "feature segment wins over the fixed 06:00 anchor")
	assert.Equal(t, 95, seg.SoC)
}
