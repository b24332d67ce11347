package deye

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/port"
)

const (
	// tokenExpiryBuffer renews the token this long before it actually
	// expires so an in-flight request never races the expiry.
	tokenExpiryBuffer = 5 * time.Minute

	defaultTimeout = 30 * time.Second
)

// CloudGateway talks to the Deye cloud API. One instance serves one
// inverter (device serial). Safe for concurrent use; the token is shared
// and refreshed under a lock.
type CloudGateway struct {
	baseURL      string
	appId        string
	appSecret    string
	email        string
	passwordHash string
	deviceSN     string

	http   *http.Client
	logger *zap.Logger

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
}

var _ port.InverterGateway = (*CloudGateway)(nil)

func NewCloudGateway(cfg config.InverterConfig, logger *zap.Logger) *CloudGateway {
	hash := sha256.Sum256([]byte(cfg.Password))
	return &CloudGateway{
		baseURL:      strings.TrimRight(cfg.APIBaseURL, "/"),
		appId:        cfg.AppId,
		appSecret:    cfg.AppSecret,
		email:        cfg.Email,
		passwordHash: hex.EncodeToString(hash[:]),
		deviceSN:     cfg.DeviceSN,
		http:         &http.Client{Timeout: defaultTimeout},
		logger:       logger.With(zap.String("gateway", "deye_cloud")),
	}
}

type apiEnvelope struct {
	Code    json.RawMessage `json:"code"`
	Msg     string          `json:"msg"`
	Success bool            `json:"success"`
}

// ok reports whether the envelope indicates success. The API is not
// consistent: some endpoints answer code "0", some 1000000, some only set
// the success flag.
func (e apiEnvelope) ok() bool {
	if e.Success {
		return true
	}
	switch strings.Trim(string(e.Code), `"`) {
	case "", "0", "1000000", "null":
		return true
	}
	return false
}

type tokenResponse struct {
	apiEnvelope
	Data struct {
		AccessToken string          `json:"accessToken"`
		ExpiresIn   json.RawMessage `json:"expiresIn"`
	} `json:"data"`
	AccessToken string          `json:"accessToken"`
	ExpiresIn   json.RawMessage `json:"expiresIn"`
}

func (c *CloudGateway) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiresAt.Add(-tokenExpiryBuffer)) {
		return c.accessToken, nil
	}

	c.logger.Info("requesting new access token")

	payload := map[string]string{
		"appSecret": c.appSecret,
		"email":     c.email,
		"password":  c.passwordHash,
	}
	body, err := c.doRaw(ctx, http.MethodPost, "/v1.0/account/token?appId="+c.appId, payload, false)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if !tr.ok() {
		return "", fmt.Errorf("token request rejected: %s", tr.Msg)
	}

	token := tr.Data.AccessToken
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("no access token in response")
	}

	expiresIn := parseSeconds(tr.Data.ExpiresIn, parseSeconds(tr.ExpiresIn, 86400))
	c.accessToken = token
	c.tokenExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)

	c.logger.Info("access token obtained", zap.Int64("expires_in_s", expiresIn))
	return token, nil
}

// parseSeconds tolerates both numeric and string expiry fields.
func parseSeconds(raw json.RawMessage, fallback int64) int64 {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

// doRaw performs one HTTP round trip. Transport errors and 5xx/429 are
// retried with exponential backoff; other HTTP errors are permanent.
func (c *CloudGateway) doRaw(ctx context.Context, method, endpoint string, payload any, authed bool) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if authed {
			token, err := c.token(ctx)
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			// stale token: force a refresh on the next attempt
			c.mu.Lock()
			c.accessToken = ""
			c.mu.Unlock()
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 20 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *CloudGateway) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := c.doRaw(ctx, http.MethodPost, endpoint, payload, true)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

type workModeResponse struct {
	apiEnvelope
	SysWorkMode    string `json:"sysWorkMode"`
	SystemWorkMode string `json:"systemWorkMode"`
}

func (c *CloudGateway) GetWorkMode(ctx context.Context) (domain.ModeResult, error) {
	var resp workModeResponse
	err := c.post(ctx, "/v1.0/config/system", map[string]string{"deviceSn": c.deviceSN}, &resp)
	if err != nil {
		return domain.ModeResult{}, fmt.Errorf("get work mode: %w", err)
	}
	if !resp.ok() {
		return domain.ModeResult{OK: false, Message: resp.Msg}, nil
	}
	mode := resp.SystemWorkMode
	if mode == "" {
		mode = resp.SysWorkMode
	}
	if mode == "" {
		return domain.ModeResult{OK: false, Message: "no work mode in response"}, nil
	}
	return domain.ModeResult{OK: true, Mode: domain.InverterMode(mode)}, nil
}

type latestDataResponse struct {
	apiEnvelope
	DeviceDataList []struct {
		DeviceSn string `json:"deviceSn"`
		DataList []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"dataList"`
	} `json:"deviceDataList"`
}

type deviceInfoResponse struct {
	apiEnvelope
	Data struct {
		RatedPower float64 `json:"ratedPower"`
	} `json:"data"`
	RatedPower float64 `json:"ratedPower"`
}

func (c *CloudGateway) GetBattery(ctx context.Context) (domain.BatteryInfo, error) {
	var resp latestDataResponse
	err := c.post(ctx, "/v1.0/device/latest", map[string]any{"deviceList": []string{c.deviceSN}}, &resp)
	if err != nil {
		return domain.BatteryInfo{}, fmt.Errorf("get battery: %w", err)
	}
	if !resp.ok() {
		return domain.BatteryInfo{}, fmt.Errorf("get battery rejected: %s", resp.Msg)
	}

	var info domain.BatteryInfo
	if len(resp.DeviceDataList) == 0 {
		c.logger.Warn("no device data in latest-data response")
		return info, nil
	}
	for _, item := range resp.DeviceDataList[0].DataList {
		v, err := strconv.ParseFloat(item.Value, 64)
		if err != nil {
			continue
		}
		switch strings.ToUpper(item.Key) {
		case "SOC":
			soc := v
			info.SoC = &soc
		case "BATTERYPOWER":
			power := v
			info.PowerWatt = &power
		}
	}

	if capW, err := c.inverterCapacity(ctx); err == nil && capW > 0 {
		info.CapacityWatt = &capW
	}
	return info, nil
}

// inverterCapacity reads the rated power from the device info endpoint.
// Failure is tolerated; callers fall back to a configured default.
func (c *CloudGateway) inverterCapacity(ctx context.Context) (int, error) {
	var resp deviceInfoResponse
	err := c.post(ctx, "/v1.0/device", map[string]string{"deviceSn": c.deviceSN}, &resp)
	if err != nil {
		return 0, err
	}
	rated := resp.Data.RatedPower
	if rated == 0 {
		rated = resp.RatedPower
	}
	// Some firmware reports kW instead of W.
	if rated > 0 && rated < 100 {
		rated *= 1000
	}
	return int(rated), nil
}

func (c *CloudGateway) SetWorkMode(ctx context.Context, mode domain.InverterMode) (domain.CommandResult, error) {
	c.logger.Info("setting work mode", zap.String("mode", string(mode)))
	var resp apiEnvelope
	err := c.post(ctx, "/v1.0/order/sys/workMode/update", map[string]string{
		"deviceSn":    c.deviceSN,
		"sysWorkMode": string(mode),
	}, &resp)
	if err != nil {
		return domain.CommandResult{}, fmt.Errorf("set work mode: %w", err)
	}
	if !resp.ok() {
		return domain.CommandResult{OK: false, Message: resp.Msg}, nil
	}
	return domain.CommandResult{OK: true}, nil
}

type touSettingItem struct {
	EnableGeneration bool   `json:"enableGeneration"`
	EnableGridCharge bool   `json:"enableGridCharge"`
	Power            int    `json:"power"`
	SoC              int    `json:"soc"`
	Time             string `json:"time"`
}

func (c *CloudGateway) SetTOU(ctx context.Context, schedule domain.TOUSchedule) (domain.CommandResult, error) {
	items := make([]touSettingItem, 0, len(schedule.Segments))
	for _, seg := range schedule.Segments {
		items = append(items, touSettingItem{
			EnableGeneration: seg.Generation,
			EnableGridCharge: seg.GridCharge,
			Power:            seg.PowerWatt,
			SoC:              seg.SoC,
			Time:             seg.Time,
		})
	}
	c.logger.Info("updating TOU schedule", zap.Int("segments", len(items)))

	var resp apiEnvelope
	err := c.post(ctx, "/v1.0/order/sys/tou/update", map[string]any{
		"deviceSn":            c.deviceSN,
		"timeUseSettingItems": items,
	}, &resp)
	if err != nil {
		return domain.CommandResult{}, fmt.Errorf("set tou: %w", err)
	}
	if !resp.ok() {
		return domain.CommandResult{OK: false, Message: resp.Msg}, nil
	}
	return domain.CommandResult{OK: true}, nil
}
