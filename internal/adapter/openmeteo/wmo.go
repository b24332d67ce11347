package openmeteo

import "github.com/deyectl/deyectl/internal/core/domain"

// ConditionFromWMOCode maps a WMO weather interpretation code to a
// categorical condition. Codes follow the Open-Meteo documentation.
func ConditionFromWMOCode(code int) domain.Condition {
	switch {
	case code == 0:
		return domain.ConditionClear
	case code >= 1 && code <= 3:
		return domain.ConditionClouds
	case code == 45 || code == 48:
		return domain.ConditionFog
	case code >= 51 && code <= 57:
		return domain.ConditionDrizzle
	case code >= 61 && code <= 67:
		return domain.ConditionRain
	case code >= 71 && code <= 77:
		return domain.ConditionSnow
	case code >= 80 && code <= 82:
		return domain.ConditionRain
	case code == 85 || code == 86:
		return domain.ConditionSnow
	case code >= 95 && code <= 99:
		return domain.ConditionThunderstorm
	}
	return domain.ConditionUnknown
}
