package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/service"
)

const requestTimeout = 90 * time.Second

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/status", s.StatusHandler)
	api.GET("/config", s.GetConfigHandler)
	api.POST("/config", s.UpdateConfigHandler)
	api.GET("/weather", s.WeatherHandler)
	api.GET("/weather/config", s.GetWeatherConfigHandler)
	api.POST("/weather/config", s.UpdateWeatherConfigHandler)
	api.GET("/weather/cities", s.SearchCitiesHandler)
	api.GET("/free-energy/config", s.GetFreeEnergyConfigHandler)
	api.POST("/free-energy/config", s.UpdateFreeEnergyConfigHandler)
	api.POST("/scheduler/start", s.SchedulerStartHandler)
	api.POST("/scheduler/stop", s.SchedulerStopHandler)
	api.GET("/work-mode", s.GetWorkModeHandler)
	api.POST("/work-mode", s.SetWorkModeHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetStatusRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp, ok := res.(domain.GetStatusResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, resp.Status)
}

// schedulePayload is the editable discharge and charge configuration.
type schedulePayload struct {
	Schedule config.ScheduleSettings `json:"schedule"`
	Charge   config.ChargeSettings   `json:"charge"`
}

func (s *Server) GetConfigHandler(c echo.Context) error {
	settings := s.store.Snapshot()
	return c.JSON(http.StatusOK, schedulePayload{
		Schedule: settings.Schedule,
		Charge:   settings.Charge,
	})
}

func (s *Server) UpdateConfigHandler(c echo.Context) error {
	settings := s.store.Snapshot()
	payload := schedulePayload{Schedule: settings.Schedule, Charge: settings.Charge}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validateSchedule(payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := s.store.Update(func(st *config.Settings) {
		st.Schedule = payload.Schedule
		st.Charge = payload.Charge
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, payload)
}

func validateSchedule(p schedulePayload) error {
	for _, at := range []string{p.Schedule.StartTime, p.Schedule.EndTime} {
		if _, _, err := service.ParseClock(at); err != nil {
			return err
		}
	}
	if p.Schedule.CutoffSoC < 0 || p.Schedule.CutoffSoC > 100 {
		return fmt.Errorf("cutoff SoC %d out of range", p.Schedule.CutoffSoC)
	}
	if p.Schedule.MinSoCReserve < 0 || p.Schedule.MinSoCReserve > 100 {
		return fmt.Errorf("SoC reserve %d out of range", p.Schedule.MinSoCReserve)
	}
	if p.Schedule.CutoffSoC < p.Schedule.MinSoCReserve {
		return fmt.Errorf("cutoff SoC %d below reserve %d", p.Schedule.CutoffSoC, p.Schedule.MinSoCReserve)
	}
	if p.Charge.Enabled {
		for _, at := range []string{p.Charge.StartTime, p.Charge.EndTime} {
			if _, _, err := service.ParseClock(at); err != nil {
				return err
			}
		}
		if p.Charge.TargetSoC < 0 || p.Charge.TargetSoC > 100 {
			return fmt.Errorf("charge target SoC %d out of range", p.Charge.TargetSoC)
		}
	}
	return nil
}

func (s *Server) WeatherHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetForecastRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp, ok := res.(domain.GetForecastResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"forecast":   resp.Forecast,
		"fetched_at": resp.FetchedAt,
		"stale":      resp.Stale,
	})
}

func (s *Server) GetWeatherConfigHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Snapshot().Weather)
}

func (s *Server) UpdateWeatherConfigHandler(c echo.Context) error {
	payload := s.store.Snapshot().Weather
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.Enabled && !payload.Located() {
		return echo.NewHTTPError(http.StatusBadRequest, "weather requires latitude and longitude")
	}
	err := s.store.Update(func(st *config.Settings) {
		st.Weather = payload
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// a location or threshold change invalidates the analysed forecast
	s.rootContext.Send(s.masterActor, domain.ClearForecastCacheRequest{})
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) SearchCitiesHandler(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query param name is required")
	}
	if s.citySearch == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "city search is not configured")
	}
	cities, err := s.citySearch.SearchCities(c.Request().Context(), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, cities)
}

func (s *Server) GetFreeEnergyConfigHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Snapshot().FreeEnergy)
}

func (s *Server) UpdateFreeEnergyConfigHandler(c echo.Context) error {
	payload := s.store.Snapshot().FreeEnergy
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.Enabled {
		for _, at := range []string{payload.StartTime, payload.EndTime} {
			if _, _, err := service.ParseClock(at); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		if payload.TargetSoC < 0 || payload.TargetSoC > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("target SoC %d out of range", payload.TargetSoC))
		}
	}
	err := s.store.Update(func(st *config.Settings) {
		st.FreeEnergy = payload
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) SchedulerStartHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SchedulerStartRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp, ok := res.(domain.SchedulerStartResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, map[string]any{"running": true, "started": resp.Started})
}

func (s *Server) SchedulerStopHandler(c echo.Context) error {
	_, err := s.rootContext.RequestFuture(s.masterActor, domain.SchedulerStopRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"running": false})
}

func (s *Server) GetWorkModeHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetWorkModeRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp, ok := res.(domain.GetWorkModeResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if resp.HasResponseError() {
		return echo.NewHTTPError(http.StatusBadGateway, resp.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":      resp.Result.OK,
		"mode":    resp.Result.Mode,
		"message": resp.Result.Message,
	})
}

type workModePayload struct {
	Mode domain.InverterMode `json:"mode"`
}

func (s *Server) SetWorkModeHandler(c echo.Context) error {
	var payload workModePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.Mode != domain.ModeNormal && payload.Mode != domain.ModeForceDischarge {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown work mode %q", payload.Mode))
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetWorkModeOverrideRequest{Mode: payload.Mode}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp, ok := res.(domain.SetWorkModeOverrideResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if resp.HasResponseError() {
		return echo.NewHTTPError(http.StatusBadGateway, resp.GetResponseError().Error())
	}
	status := http.StatusOK
	if !resp.Result.OK {
		status = http.StatusConflict
	}
	return c.JSON(status, map[string]any{
		"ok":      resp.Result.OK,
		"message": resp.Result.Message,
	})
}
