package deye

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/port"
)

// Deye SUN-xK-SG0xLP3 holding registers.
const (
	regLimitControlFunction uint16 = 142

	regScheduleTime1   uint16 = 148 // 6 slots, HHMM as decimal
	regScheduleSoC1    uint16 = 166 // 6 slots, 0-100%
	regScheduleCharge1 uint16 = 172 // 6 slots, bit0=grid charge, bit1=gen charge

	regBatterySoC   uint16 = 588
	regBatteryPower uint16 = 590
)

// regLimitControlFunction values.
const (
	modbusModeSellingFirst   uint16 = 0
	modbusModeZeroExportToCT uint16 = 2
)

const touSlots = 6

// LocalGateway drives the inverter over Modbus TCP, bypassing the cloud.
// Register writes are serialized: the inverter's Modbus server does not
// tolerate concurrent transactions.
type LocalGateway struct {
	client *modbus.ModbusClient
	logger *zap.Logger

	mu     sync.Mutex
	opened bool
}

var _ port.InverterGateway = (*LocalGateway)(nil)

func NewLocalGateway(cfg config.InverterConfig, logger *zap.Logger) (*LocalGateway, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", cfg.ModbusHost, cfg.ModbusPort),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if cfg.ModbusId > 0 {
		if err := client.SetUnitId(uint8(cfg.ModbusId)); err != nil {
			return nil, err
		}
	}
	return &LocalGateway{
		client: client,
		logger: logger.With(zap.String("gateway", "deye_modbus")),
	}, nil
}

// ensureOpen lazily opens the TCP connection and reopens it after a
// transport failure.
func (g *LocalGateway) ensureOpen() error {
	if g.opened {
		return nil
	}
	if err := g.client.Open(); err != nil {
		return fmt.Errorf("modbus connect: %w", err)
	}
	g.opened = true
	return nil
}

func (g *LocalGateway) dropConn() {
	if g.opened {
		_ = g.client.Close()
		g.opened = false
	}
}

func (g *LocalGateway) withConn(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureOpen(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		g.dropConn()
		return err
	}
	return nil
}

func (g *LocalGateway) GetWorkMode(ctx context.Context) (domain.ModeResult, error) {
	var raw uint16
	err := g.withConn(func() error {
		var err error
		raw, err = g.client.ReadRegister(regLimitControlFunction, modbus.HOLDING_REGISTER)
		return err
	})
	if err != nil {
		return domain.ModeResult{}, fmt.Errorf("get work mode: %w", err)
	}
	switch raw {
	case modbusModeSellingFirst:
		return domain.ModeResult{OK: true, Mode: domain.ModeForceDischarge}, nil
	case modbusModeZeroExportToCT:
		return domain.ModeResult{OK: true, Mode: domain.ModeNormal}, nil
	}
	return domain.ModeResult{OK: true, Mode: domain.ModeUnknown, Message: fmt.Sprintf("unmapped work mode register value %d", raw)}, nil
}

func (g *LocalGateway) GetBattery(ctx context.Context) (domain.BatteryInfo, error) {
	var soc, power uint16
	err := g.withConn(func() error {
		var err error
		if soc, err = g.client.ReadRegister(regBatterySoC, modbus.HOLDING_REGISTER); err != nil {
			return err
		}
		power, err = g.client.ReadRegister(regBatteryPower, modbus.HOLDING_REGISTER)
		return err
	})
	if err != nil {
		return domain.BatteryInfo{}, fmt.Errorf("get battery: %w", err)
	}
	socF := float64(soc)
	// signed register, positive = discharging
	powerF := float64(int16(power))
	return domain.BatteryInfo{SoC: &socF, PowerWatt: &powerF}, nil
}

func (g *LocalGateway) SetWorkMode(ctx context.Context, mode domain.InverterMode) (domain.CommandResult, error) {
	var raw uint16
	switch mode {
	case domain.ModeForceDischarge:
		raw = modbusModeSellingFirst
	case domain.ModeNormal:
		raw = modbusModeZeroExportToCT
	default:
		return domain.CommandResult{OK: false, Message: fmt.Sprintf("mode %q has no register mapping", mode)}, nil
	}
	g.logger.Info("setting work mode", zap.String("mode", string(mode)))
	err := g.withConn(func() error {
		return g.client.WriteRegister(regLimitControlFunction, raw)
	})
	if err != nil {
		return domain.CommandResult{}, fmt.Errorf("set work mode: %w", err)
	}
	return domain.CommandResult{OK: true}, nil
}

func (g *LocalGateway) SetTOU(ctx context.Context, schedule domain.TOUSchedule) (domain.CommandResult, error) {
	if len(schedule.Segments) > touSlots {
		return domain.CommandResult{OK: false, Message: fmt.Sprintf("schedule has %d segments, inverter supports %d", len(schedule.Segments), touSlots)}, nil
	}

	times := make([]uint16, 0, len(schedule.Segments))
	socs := make([]uint16, 0, len(schedule.Segments))
	flags := make([]uint16, 0, len(schedule.Segments))
	for _, seg := range schedule.Segments {
		hhmm, err := clockToRegister(seg.Time)
		if err != nil {
			return domain.CommandResult{OK: false, Message: err.Error()}, nil
		}
		times = append(times, hhmm)
		socs = append(socs, uint16(seg.SoC))
		var f uint16
		if seg.GridCharge {
			f |= 1
		}
		if seg.Generation {
			f |= 2
		}
		flags = append(flags, f)
	}

	g.logger.Info("updating TOU schedule", zap.Int("segments", len(times)))
	err := g.withConn(func() error {
		if err := g.client.WriteRegisters(regScheduleTime1, times); err != nil {
			return err
		}
		if err := g.client.WriteRegisters(regScheduleSoC1, socs); err != nil {
			return err
		}
		return g.client.WriteRegisters(regScheduleCharge1, flags)
	})
	if err != nil {
		return domain.CommandResult{}, fmt.Errorf("set tou: %w", err)
	}
	return domain.CommandResult{OK: true}, nil
}

// clockToRegister converts "HH:MM" to the HHMM decimal register encoding.
func clockToRegister(clock string) (uint16, error) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid schedule time %q", clock)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid schedule time %q", clock)
	}
	return uint16(h*100 + m), nil
}
