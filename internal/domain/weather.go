package domain

import "time"

// ConditionCode is a raw weather condition code as published by OpenWeather
// (https://openweathermap.org/weather-conditions).
type ConditionCode int

// Thunderstorm reports codes in the 2xx group.
func (c ConditionCode) Thunderstorm() bool { return c >= 200 && c < 300 }

// Snow reports codes in the 6xx group.
func (c ConditionCode) Snow() bool { return c >= 600 && c < 700 }

// Fog reports mist (701), haze-like fog (741) and smoke-free obscuration codes.
func (c ConditionCode) Fog() bool { return c == 701 || c == 741 }

// Severe reports codified severe-weather categories: volcanic ash, squalls,
// tornadoes and the legacy extreme group (tropical storm, hurricane, ...).
func (c ConditionCode) Severe() bool {
	switch {
	case c == 762, c == 771, c == 781:
		return true
	case c >= 900 && c <= 906:
		return true
	case c >= 958 && c <= 962:
		return true
	}
	return false
}

// Coordinates is a resolved geographic point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherReport is what the weather collaborator returns for a date/location.
// Precipitation is in mm/hour, WindSpeed in m/s, Temperature in Celsius.
type WeatherReport struct {
	Description   string
	Temperature   float64
	WindSpeed     float64
	Precipitation float64
	Conditions    []ConditionCode
	Simulated     bool
}

// Adverse weather rule identifiers.
const (
	RuleThunderstorm = "thunderstorm"
	RuleSevere       = "severe_weather"
	RuleHeavyRain    = "heavy_rain"
	RuleSnow         = "snow"
	RuleStrongWind   = "strong_wind"
	RuleFog          = "fog"
)

// AdverseCondition is one fired exemption rule.
type AdverseCondition struct {
	Rule        string   `json:"type"`
	Detail      string   `json:"description"`
	Measurement *float64 `json:"measurement,omitempty"`
}

// Severity grades of an adverse weather finding.
const (
	SeverityNone   = "none"
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// WeatherAnalysis is the payload stored on an evaluated record.
type WeatherAnalysis struct {
	HasAdverseWeather bool               `json:"has_adverse_weather"`
	Conditions        []AdverseCondition `json:"conditions"`
	Severity          string             `json:"severity"`
	Justification     string             `json:"justification"`
	Description       string             `json:"weather_description"`
	Temperature       float64            `json:"temperature"`
	WindSpeed         float64            `json:"wind_speed"`
	Precipitation     float64            `json:"precipitation"`
	Simulated         bool               `json:"mock_data"`
	Location          *Coordinates       `json:"location,omitempty"`
	DeliveryDate      time.Time          `json:"delivery_date"`
}
