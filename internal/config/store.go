package config

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/deyectl/deyectl/internal/core/domain"
)

// Settings is the runtime-editable part of the configuration. The scheduler
// reads a fresh snapshot at the start of every cycle, so edits take effect
// within one interval without restart.
type Settings struct {
	Schedule   ScheduleSettings   `json:"schedule"`
	Charge     ChargeSettings     `json:"charge"`
	FreeEnergy FreeEnergySettings `json:"free_energy"`
	Weather    WeatherSettings    `json:"weather"`
}

type ScheduleSettings struct {
	Enabled            bool   `json:"enabled"`
	StartTime          string `json:"force_discharge_start"`
	EndTime            string `json:"force_discharge_end"`
	MinSoCReserve      int    `json:"min_soc_reserve"`
	CutoffSoC          int    `json:"force_discharge_cutoff_soc"`
	ReactivationMargin int    `json:"reactivation_margin"`
	MaxPowerWatt       int    `json:"max_power"`
}

// ChargeSettings configures the optional force-charge window. Force charge
// has no distinct inverter mode; it is expressed purely as a grid-charge
// enabled TOU segment.
type ChargeSettings struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	TargetSoC int    `json:"target_soc"`
}

type FreeEnergySettings struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	TargetSoC int    `json:"target_soc"`
}

type WeatherSettings struct {
	Enabled              bool     `json:"enabled"`
	CityName             string   `json:"city_name"`
	Latitude             *float64 `json:"latitude"`
	Longitude            *float64 `json:"longitude"`
	MinSolarThresholdKWh float64  `json:"min_solar_threshold_kwh"`
	BadConditions        []string `json:"bad_weather_conditions"`
	MinCloudCover        int      `json:"min_cloud_cover_percent"`
	PanelCapacityKW      float64  `json:"panel_capacity_kw"`
	InverterCapacityKW   float64  `json:"inverter_capacity_kw"`
	SolarAPIEnabled      bool     `json:"solar_api_enabled"`
}

// Located reports whether coordinates are configured. Without them the
// weather feature stays off regardless of the enabled flag.
func (w WeatherSettings) Located() bool {
	return w.Latitude != nil && w.Longitude != nil
}

// PanelKWp resolves the panel capacity used for solar estimation.
// Falls back to the inverter rating with a typical 1.25x panel oversizing
// ratio, then to the capacity reported by the inverter API.
func (w WeatherSettings) PanelKWp(apiCapacityWatt int) float64 {
	if w.PanelCapacityKW > 0 {
		return w.PanelCapacityKW
	}
	if w.InverterCapacityKW > 0 {
		return w.InverterCapacityKW * 1.25
	}
	if apiCapacityWatt > 0 {
		return float64(apiCapacityWatt) / 1000 * 1.25
	}
	return 5.0
}

// BadConditionSet maps the configured names onto domain conditions.
func (w WeatherSettings) BadConditionSet() []domain.Condition {
	src := w.BadConditions
	if src == nil {
		src = []string{"Rain", "Thunderstorm", "Drizzle", "Snow"}
	}
	out := make([]domain.Condition, 0, len(src))
	for _, c := range src {
		out = append(out, domain.Condition(c))
	}
	return out
}

func DefaultSettings() Settings {
	return Settings{
		Schedule: ScheduleSettings{
			Enabled:       true,
			StartTime:     "17:30",
			EndTime:       "19:30",
			MinSoCReserve: 20,
			CutoffSoC:     50,
		},
		Charge: ChargeSettings{
			StartTime: "02:00",
			EndTime:   "05:00",
			TargetSoC: 100,
		},
		FreeEnergy: FreeEnergySettings{
			StartTime: "11:00",
			EndTime:   "14:00",
			TargetSoC: 100,
		},
		Weather: WeatherSettings{
			MinSolarThresholdKWh: 15,
			MinCloudCover:        70,
			SolarAPIEnabled:      true,
		},
	}
}

// Store owns the mutable settings. It is the single synchronization point
// between the scheduler actor and the HTTP handlers.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

func NewStore(path string) *Store {
	return &Store{
		path:     path,
		settings: DefaultSettings(),
	}
}

// Load reads the settings file. A missing file is not an error: defaults
// apply until the first save.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return err
	}
	s.settings = settings
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to the settings under the lock and persists the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	return s.save()
}
