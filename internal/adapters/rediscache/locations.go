// Package rediscache keeps resolved supplier locations in Redis so repeated
// weather checks skip the rate-limited geocoder.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

const keyPrefix = "geocode:"

// Locations wraps a weather service and caches ResolveLocation. Redis
// failures fall through to the wrapped service.
type Locations struct {
	ports.WeatherService
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewClient connects to addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func NewLocations(next ports.WeatherService, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Locations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locations{WeatherService: next, client: client, ttl: ttl, logger: logger.With("component", "location-cache")}
}

func key(country string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(country))
}

func (l *Locations) ResolveLocation(ctx context.Context, country string) (domain.Coordinates, error) {
	k := key(country)
	raw, err := l.client.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		var at domain.Coordinates
		if jerr := json.Unmarshal(raw, &at); jerr == nil {
			return at, nil
		}
		l.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", k)
	case errors.Is(err, redis.Nil):
	default:
		l.logger.WarnContext(ctx, "location cache unavailable", "err", err)
	}

	at, err := l.WeatherService.ResolveLocation(ctx, country)
	if err != nil {
		return at, err
	}
	if b, err := json.Marshal(at); err == nil {
		if err := l.client.Set(ctx, k, b, l.ttl).Err(); err != nil {
			l.logger.WarnContext(ctx, "location not cached", "key", k, "err", err)
		}
	}
	return at, nil
}

// Ping reports whether Redis is reachable.
func (l *Locations) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
