package deye

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
)

func testGateway(t *testing.T, handler http.Handler) (*CloudGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw := NewCloudGateway(config.InverterConfig{
		APIBaseURL: srv.URL,
		AppId:      "app",
		AppSecret:  "secret",
		Email:      "user@example.com",
		Password:   "hunter2",
		DeviceSN:   "SN123",
	}, zap.NewNop())
	return gw, srv
}

func tokenHandler(tokenRequests *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenRequests, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"data": map[string]any{"accessToken": "tok-1", "expiresIn": 86400},
		})
	}
}

func TestCloudGatewayTokenHashedAndCached(t *testing.T) {
	var tokenRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/account/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		// sha256("hunter2")
		assert.Equal(t, "f52fbd32b2b3b86ff88ef6c490628285f482af15ddcb29541f94bcf526a3f6c7", body["password"])
		assert.Equal(t, "app", r.URL.Query().Get("appId"))
		tokenHandler(&tokenRequests)(w, r)
	})
	mux.HandleFunc("/v1.0/config/system", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "sysWorkMode": "SELLING_FIRST"})
	})

	gw, _ := testGateway(t, mux)

	for i := 0; i < 3; i++ {
		res, err := gw.GetWorkMode(context.Background())
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Equal(t, domain.ModeForceDischarge, res.Mode)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenRequests), "token is cached across requests")
}

func TestCloudGatewayGetBattery(t *testing.T) {
	var tokenRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/account/token", tokenHandler(&tokenRequests))
	mux.HandleFunc("/v1.0/device/latest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 1000000,
			"deviceDataList": []map[string]any{{
				"deviceSn": "SN123",
				"dataList": []map[string]string{
					{"key": "SOC", "value": "67.5"},
					{"key": "BatteryPower", "value": "-1200"},
					{"key": "IrrelevantKey", "value": "not-a-number"},
				},
			}},
		})
	})
	mux.HandleFunc("/v1.0/device", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"ratedPower": 12.0}})
	})

	gw, _ := testGateway(t, mux)

	info, err := gw.GetBattery(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info.SoC)
	assert.Equal(t, 67.5, *info.SoC)
	require.NotNil(t, info.PowerWatt)
	assert.Equal(t, -1200.0, *info.PowerWatt)
	require.NotNil(t, info.CapacityWatt)
	assert.Equal(t, 12000, *info.CapacityWatt, "kW rated power is scaled to watts")
}

func TestCloudGatewayGetBatteryEmptyDeviceList(t *testing.T) {
	var tokenRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/account/token", tokenHandler(&tokenRequests))
	mux.HandleFunc("/v1.0/device/latest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "deviceDataList": []any{}})
	})
	mux.HandleFunc("/v1.0/device", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	gw, _ := testGateway(t, mux)

	info, err := gw.GetBattery(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info.SoC)
	assert.Nil(t, info.PowerWatt)
}

func TestCloudGatewaySetTOUPayload(t *testing.T) {
	var tokenRequests int32
	var got struct {
		DeviceSn string           `json:"deviceSn"`
		Items    []touSettingItem `json:"timeUseSettingItems"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/account/token", tokenHandler(&tokenRequests))
	mux.HandleFunc("/v1.0/order/sys/tou/update", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	gw, _ := testGateway(t, mux)

	res, err := gw.SetTOU(context.Background(), domain.TOUSchedule{Segments: []domain.TOUSegment{
		{Time: "00:00", SoC: 20, PowerWatt: 10000},
		{Time: "17:30", SoC: 50, PowerWatt: 10000},
		{Time: "11:00", SoC: 100, PowerWatt: 10000, GridCharge: true},
	}})
	require.NoError(t, err)
	assert.True(t, res.OK)

	assert.Equal(t, "SN123", got.DeviceSn)
	require.Len(t, got.Items, 3)
	assert.Equal(t, "17:30", got.Items[1].Time)
	assert.Equal(t, 50, got.Items[1].SoC)
	assert.True(t, got.Items[2].EnableGridCharge)
	assert.False(t, got.Items[0].EnableGeneration)
}

func TestCloudGatewayRejectedCommandIsDataNotError(t *testing.T) {
	var tokenRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/account/token", tokenHandler(&tokenRequests))
	mux.HandleFunc("/v1.0/order/sys/workMode/update", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "2001", "msg": "device offline"})
	})

	gw, _ := testGateway(t, mux)

	res, err := gw.SetWorkMode(context.Background(), domain.ModeNormal)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "device offline", res.Message)
}

func TestCloudGatewayStaleTokenRetried(t *testing.T) {
	var tokenRequests int32
	var modeRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/account/token", tokenHandler(&tokenRequests))
	mux.HandleFunc("/v1.0/config/system", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&modeRequests, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "systemWorkMode": "ZERO_EXPORT_TO_CT"})
	})

	gw, _ := testGateway(t, mux)

	res, err := gw.GetWorkMode(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, domain.ModeNormal, res.Mode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenRequests), "401 invalidates the cached token")
}
