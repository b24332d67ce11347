package deye

import (
	"context"
	"sync"

	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/port"
)

// TestGateway is an in-memory inverter used by actor tests. It records
// every write so tests can assert on command sequences.
type TestGateway struct {
	mu sync.Mutex

	Mode     domain.InverterMode
	Battery  domain.BatteryInfo
	Schedule domain.TOUSchedule

	// Err, when set, fails every call.
	Err error
	// RejectWrites makes writes come back as rejected results.
	RejectWrites bool

	ModeWrites []domain.InverterMode
	TOUWrites  []domain.TOUSchedule
}

var _ port.InverterGateway = (*TestGateway)(nil)

func NewTestGateway(soc float64, mode domain.InverterMode) *TestGateway {
	power := 0.0
	capacity := 10000
	s := soc
	return &TestGateway{
		Mode: mode,
		Battery: domain.BatteryInfo{
			SoC:          &s,
			PowerWatt:    &power,
			CapacityWatt: &capacity,
		},
	}
}

func (g *TestGateway) SetSoC(soc float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Battery.SoC = &soc
}

func (g *TestGateway) GetWorkMode(ctx context.Context) (domain.ModeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return domain.ModeResult{}, g.Err
	}
	return domain.ModeResult{OK: true, Mode: g.Mode}, nil
}

func (g *TestGateway) GetBattery(ctx context.Context) (domain.BatteryInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return domain.BatteryInfo{}, g.Err
	}
	return g.Battery, nil
}

func (g *TestGateway) SetWorkMode(ctx context.Context, mode domain.InverterMode) (domain.CommandResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return domain.CommandResult{}, g.Err
	}
	if g.RejectWrites {
		return domain.CommandResult{OK: false, Message: "write rejected"}, nil
	}
	g.Mode = mode
	g.ModeWrites = append(g.ModeWrites, mode)
	return domain.CommandResult{OK: true}, nil
}

func (g *TestGateway) SetTOU(ctx context.Context, schedule domain.TOUSchedule) (domain.CommandResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return domain.CommandResult{}, g.Err
	}
	if g.RejectWrites {
		return domain.CommandResult{OK: false, Message: "write rejected"}, nil
	}
	g.Schedule = schedule
	g.TOUWrites = append(g.TOUWrites, schedule)
	return domain.CommandResult{OK: true}, nil
}

// Writes returns the recorded write counts.
func (g *TestGateway) Writes() (modes, tous int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ModeWrites), len(g.TOUWrites)
}
