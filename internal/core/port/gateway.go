package port

import (
	"context"

	"github.com/deyectl/deyectl/internal/core/domain"
)

// InverterGateway abstracts the inverter control plane. Implementations
// exist for the Deye cloud API and for local Modbus TCP.
//
// Read failures are returned as errors. Write rejections that the backend
// reported itself come back as a CommandResult with OK=false; transport
// failures come back as errors. Callers treat both the same way: record the
// message and retry next cycle.
type InverterGateway interface {
	GetWorkMode(ctx context.Context) (domain.ModeResult, error)
	GetBattery(ctx context.Context) (domain.BatteryInfo, error)
	SetWorkMode(ctx context.Context, mode domain.InverterMode) (domain.CommandResult, error)
	SetTOU(ctx context.Context, schedule domain.TOUSchedule) (domain.CommandResult, error)
}
