package domain

import "fmt"

// SchedulerControlRequest groups the runtime commands the scheduler actor
// accepts from the MQTT bridge and the HTTP surface.

type SchedulerControlRequest interface {
	ActorRequest
	SchedulerCommand() string
}

type SchedulerControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r SchedulerControlRequestMixIn) SchedulerCommand() string {
	return fmt.Sprintf("%T", r)
}

// SetDischargeEnabledRequest flips the force-discharge feature flag in the
// runtime settings store.
type SetDischargeEnabledRequest struct {
	SchedulerControlRequestMixIn
	Enable bool
}

type SetDischargeEnabledResponse struct {
	ActorResponseMixIn
	Changed bool
}

// SetWorkModeOverrideRequest forces an immediate mode change outside the
// scheduling cycle. The next cycle resynchronizes from the inverter as
// usual, so an override that conflicts with the schedule is undone within
// one interval.
type SetWorkModeOverrideRequest struct {
	SchedulerControlRequestMixIn
	Mode InverterMode
}

type SetWorkModeOverrideResponse struct {
	ActorResponseMixIn
	Result CommandResult
}

// ensure interface compliance
var _ SchedulerControlRequest = (*SetDischargeEnabledRequest)(nil)
var _ SchedulerControlRequest = (*SetWorkModeOverrideRequest)(nil)
