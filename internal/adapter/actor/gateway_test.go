package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/adapter/deye"
	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/util/actorutil"
)

func TestGetBatteryGatewayActor(t *testing.T) {

	assert := assert.New(t)

	gw := deye.NewTestGateway(72.5, domain.ModeNormal)
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewGatewayActor(gw, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.GetBatteryRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetBatteryResponse)

	assert.False(resp.HasResponseError())
	assert.Equal(72.5, *resp.Battery.SoC, "battery SoC")
	assert.Equal(10000, *resp.Battery.CapacityWatt, "inverter capacity")

	context.Stop(pid)
	as.Shutdown()
}

func TestSetWorkModeGatewayActor(t *testing.T) {

	assert := assert.New(t)

	gw := deye.NewTestGateway(72.5, domain.ModeNormal)
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewGatewayActor(gw, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.SetWorkModeRequest{Mode: domain.ModeForceDischarge}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SetWorkModeResponse)

	assert.False(resp.HasResponseError())
	assert.True(resp.Result.OK)
	assert.Equal(domain.ModeForceDischarge, gw.Mode, "mode applied")

	// follow-up request is served after the waiting state unwinds
	result, err = context.RequestFuture(pid, domain.GetWorkModeRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	modeResp := result.(domain.GetWorkModeResponse)
	assert.Equal(domain.ModeForceDischarge, modeResp.Result.Mode)

	context.Stop(pid)
	as.Shutdown()
}

func TestGatewayActorErrorIsResponse(t *testing.T) {

	assert := assert.New(t)

	gw := deye.NewTestGateway(50, domain.ModeNormal)
	gw.Err = errors.New("connection refused")
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewGatewayActor(gw, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.GetBatteryRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetBatteryResponse)

	assert.True(resp.HasResponseError(), "transport error becomes a response error, not a crash")

	context.Stop(pid)
	as.Shutdown()
}
