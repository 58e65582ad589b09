package ports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
)

var (
	// ErrLocationUnresolved is returned when a country cannot be geocoded.
	ErrLocationUnresolved = errors.New("location unresolved")
	// ErrDataUnavailable is returned when no weather data exists for a date/location.
	ErrDataUnavailable = errors.New("weather data unavailable")
)

// Geocoder resolves a country name to coordinates.
type Geocoder interface {
	ResolveLocation(ctx context.Context, country string) (domain.Coordinates, error)
}

// WeatherService is the external weather collaborator.
type WeatherService interface {
	Geocoder
	HistoricalWeather(ctx context.Context, at domain.Coordinates, date time.Time) (domain.WeatherReport, error)
}

// Analyzer is the external generative analysis collaborator. It receives
// only deterministic aggregates and returns its raw, untrusted JSON answer.
type Analyzer interface {
	Analyze(ctx context.Context, agg domain.Aggregates) (json.RawMessage, error)
}

// ReportArchive keeps generated insight reports.
type ReportArchive interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}
