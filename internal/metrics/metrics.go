package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deyectl_scheduler_cycles_total",
		Help: "Completed scheduler check cycles.",
	})

	SchedulerCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deyectl_scheduler_cycle_errors_total",
		Help: "Scheduler cycles that recorded an error.",
	})

	ModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deyectl_mode_transitions_total",
		Help: "Inverter work mode transitions commanded, by target mode.",
	}, []string{"mode"})

	TOUUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deyectl_tou_updates_total",
		Help: "Full TOU schedule writes pushed to the inverter.",
	})

	GatewayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deyectl_gateway_errors_total",
		Help: "Failed inverter gateway calls.",
	})

	ForecastFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deyectl_forecast_fetches_total",
		Help: "Weather forecast fetch attempts, by outcome.",
	}, []string{"outcome"})

	WeatherSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deyectl_weather_skips_total",
		Help: "Discharge windows skipped because of the solar forecast.",
	})
)
