package service

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
)

// Decision is the computed target state for one scheduler cycle.
type Decision struct {
	InDischargeWindow  bool
	InChargeWindow     bool
	InFreeEnergyWindow bool
	ForceDischarge     bool
	ForceCharge        bool
}

// DecisionInput is everything a cycle decision depends on. SoC is nil when
// the last battery read failed; a nil SoC never blocks a window decision.
type DecisionInput struct {
	Settings        config.Settings
	Now             time.Time
	SoC             *float64
	DischargeActive bool
	ChargeActive    bool
	WeatherSkip     bool
}

// Decide computes the per-feature targets for one cycle.
//
// Force discharge requires: feature enabled, inside the window, SoC above
// the cutoff, and no weather skip. The reactivation margin applies only on
// the INACTIVE -> ACTIVE edge: once discharge stops at the cutoff, the SoC
// must recover above cutoff+margin before it re-arms, which keeps the
// system from chattering across the cutoff boundary.
func Decide(in DecisionInput) Decision {
	sched := in.Settings.Schedule
	charge := in.Settings.Charge
	free := in.Settings.FreeEnergy

	d := Decision{
		InDischargeWindow:  InWindow(in.Now, sched.StartTime, sched.EndTime),
		InChargeWindow:     charge.Enabled && InWindow(in.Now, charge.StartTime, charge.EndTime),
		InFreeEnergyWindow: free.Enabled && InWindow(in.Now, free.StartTime, free.EndTime),
	}

	threshold := float64(sched.CutoffSoC)
	if !in.DischargeActive {
		threshold += float64(sched.ReactivationMargin)
	}
	socAboveCutoff := in.SoC == nil || *in.SoC > threshold

	d.ForceDischarge = sched.Enabled && d.InDischargeWindow && socAboveCutoff && !in.WeatherSkip

	socBelowTarget := in.SoC == nil || *in.SoC < float64(charge.TargetSoC)
	d.ForceCharge = charge.Enabled && d.InChargeWindow && charge.TargetSoC > 0 && socBelowTarget

	return d
}

// windowStartSlot and windowEndSlot index the discharge window anchors in
// the slot layout below. Feature windows never displace them.
const (
	windowStartSlot = 3
	windowEndSlot   = 4
)

// BuildTOUSchedule derives the full daily TOU payload. The inverter TOU
// block holds exactly six slots and a shorter write leaves stale values in
// the remaining ones, so the result is always exactly six segments. The
// discharge window segment carries windowSoC (the cutoff while
// discharging, the reserve otherwise); the other four slots are filler
// anchors at reserve. Charge and free energy windows, when enabled, fold
// into the filler slots nearest their times: the start becomes a
// grid-charge segment holding the target SoC, the end a reserve segment.
// The schedule is complete and self-contained: it is always sent whole,
// never diffed.
func BuildTOUSchedule(settings config.Settings, windowSoC, maxPowerWatt int) domain.TOUSchedule {
	sched := settings.Schedule
	reserve := sched.MinSoCReserve

	base := func(at string, soc int) domain.TOUSegment {
		return domain.TOUSegment{Time: at, SoC: soc, PowerWatt: maxPowerWatt}
	}
	gridCharge := func(at string, soc int) domain.TOUSegment {
		return domain.TOUSegment{Time: at, SoC: soc, PowerWatt: maxPowerWatt, GridCharge: true}
	}

	segments := []domain.TOUSegment{
		base("00:00", reserve),
		base("06:00", reserve),
		base("12:00", reserve),
		base(sched.StartTime, windowSoC),
		base(sched.EndTime, reserve),
		base("23:00", reserve),
	}
	filler := []int{0, 1, 2, 5}

	place := func(seg domain.TOUSegment) {
		for i := range segments {
			if segments[i].Time != seg.Time {
				continue
			}
			if i == windowStartSlot || i == windowEndSlot {
				// the discharge window anchors keep their slot
				return
			}
			segments[i] = seg
			filler = lo.Without(filler, i)
			return
		}
		if len(filler) == 0 {
			return
		}
		nearest := lo.MinBy(filler, func(a, b int) bool {
			return clockDistance(segments[a].Time, seg.Time) < clockDistance(segments[b].Time, seg.Time)
		})
		segments[nearest] = seg
		filler = lo.Without(filler, nearest)
	}

	if settings.Charge.Enabled {
		place(gridCharge(settings.Charge.StartTime, settings.Charge.TargetSoC))
		place(base(settings.Charge.EndTime, reserve))
	}
	if settings.FreeEnergy.Enabled {
		place(gridCharge(settings.FreeEnergy.StartTime, settings.FreeEnergy.TargetSoC))
		place(base(settings.FreeEnergy.EndTime, reserve))
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].Time < segments[j].Time })

	return domain.TOUSchedule{Segments: segments}
}

// clockDistance is the distance in minutes between two HH:MM anchors.
func clockDistance(a, b string) int {
	ah, am, err := ParseClock(a)
	if err != nil {
		return 24 * 60
	}
	bh, bm, err := ParseClock(b)
	if err != nil {
		return 24 * 60
	}
	d := (ah*60 + am) - (bh*60 + bm)
	if d < 0 {
		d = -d
	}
	return d
}
