// Package openweather implements the weather collaborator on top of the
// OpenWeather One Call timemachine API and Nominatim geocoding.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

const userAgent = "supplier-compliance-monitor"

type Config struct {
	// APIKey empty switches the client to simulated reports.
	APIKey      string
	BaseURL     string
	GeocoderURL string
	// GeocoderRPS bounds geocoding requests; Nominatim allows one per second.
	GeocoderRPS float64
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

type Client struct {
	apiKey      string
	baseURL     string
	geocoderURL string
	http        *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ ports.WeatherService = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.GeocoderRPS <= 0 {
		cfg.GeocoderRPS = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		geocoderURL: strings.TrimRight(cfg.GeocoderURL, "/"),
		http:        cfg.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(cfg.GeocoderRPS), 1),
		logger:      cfg.Logger.With("component", "openweather"),
	}
	if c.apiKey == "" {
		c.logger.Warn("OPENWEATHER_API_KEY not set; weather reports will be simulated")
	}
	return c
}

// Simulated is the report served when no API key is configured.
func Simulated() domain.WeatherReport {
	return domain.WeatherReport{
		Description: "clear sky",
		Temperature: 25,
		WindSpeed:   3.5,
		Conditions:  []domain.ConditionCode{800},
		Simulated:   true,
	}
}

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// ResolveLocation geocodes a country name. No match is ErrLocationUnresolved.
func (c *Client) ResolveLocation(ctx context.Context, country string) (domain.Coordinates, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return domain.Coordinates{}, fmt.Errorf("%w: empty country", ports.ErrLocationUnresolved)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Coordinates{}, err
	}
	q := url.Values{"q": {country}, "format": {"json"}, "limit": {"1"}}
	var places []place
	if err := c.getJSON(ctx, c.geocoderURL+"/search?"+q.Encode(), &places); err != nil {
		return domain.Coordinates{}, fmt.Errorf("geocode: %w", err)
	}
	if len(places) == 0 {
		return domain.Coordinates{}, fmt.Errorf("%w: %q", ports.ErrLocationUnresolved, country)
	}
	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: bad coordinates for %q", ports.ErrLocationUnresolved, country)
	}
	return domain.Coordinates{Lat: lat, Lon: lon}, nil
}

type timemachine struct {
	Data []struct {
		Temp      float64 `json:"temp"`
		WindSpeed float64 `json:"wind_speed"`
		Weather   []struct {
			ID          int    `json:"id"`
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Rain *volume `json:"rain"`
		Snow *volume `json:"snow"`
	} `json:"data"`
}

type volume struct {
	OneHour float64 `json:"1h"`
}

// HistoricalWeather returns the conditions at midnight UTC of date.
func (c *Client) HistoricalWeather(ctx context.Context, at domain.Coordinates, date time.Time) (domain.WeatherReport, error) {
	if c.apiKey == "" {
		return Simulated(), nil
	}
	y, m, d := date.UTC().Date()
	q := url.Values{
		"lat":   {strconv.FormatFloat(at.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(at.Lon, 'f', -1, 64)},
		"dt":    {strconv.FormatInt(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix(), 10)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	var tm timemachine
	if err := c.getJSON(ctx, c.baseURL+"/data/3.0/onecall/timemachine?"+q.Encode(), &tm); err != nil {
		return domain.WeatherReport{}, fmt.Errorf("timemachine: %w", err)
	}
	if len(tm.Data) == 0 {
		return domain.WeatherReport{}, ports.ErrDataUnavailable
	}
	return toReport(tm), nil
}

func toReport(tm timemachine) domain.WeatherReport {
	point := tm.Data[0]
	r := domain.WeatherReport{Temperature: point.Temp, WindSpeed: point.WindSpeed}
	snowCoded := false
	for i, w := range point.Weather {
		if i == 0 {
			r.Description = strings.ToLower(w.Description)
		}
		code := domain.ConditionCode(w.ID)
		snowCoded = snowCoded || code.Snow()
		r.Conditions = append(r.Conditions, code)
	}
	if point.Rain != nil {
		r.Precipitation += point.Rain.OneHour
	}
	if point.Snow != nil {
		r.Precipitation += point.Snow.OneHour
		if point.Snow.OneHour > 0 && !snowCoded {
			r.Conditions = append(r.Conditions, 600)
		}
	}
	return r
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
