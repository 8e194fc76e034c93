package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
	"github.com/agriai/server/internal/openweather"
)

// freshnessWindow is how long a stored observation satisfies a request
// without a new upstream call.
const freshnessWindow = 10 * time.Minute

// warmSetWindow is how far back a user request keeps a location warm for the
// background refresher.
const warmSetWindow = 24 * time.Hour

// ---- Contracts ----------------------------------------------------------------

// WeatherRepository is the slice of persistence the weather flow needs.
type WeatherRepository interface {
	Insert(ctx context.Context, rec *models.WeatherRecord) error
	Latest(ctx context.Context, lat, lon float64) (models.WeatherRecord, error)
	RecentPairs(ctx context.Context, since time.Time) ([]models.CoordPair, error)
}

// WeatherUpstream is the slice of the OpenWeatherMap client the service uses.
type WeatherUpstream interface {
	Current(ctx context.Context, lat, lon float64) (openweather.Observation, error)
	Forecast(ctx context.Context, lat, lon float64) (openweather.Forecast, error)
}

// ---- Interface ----------------------------------------------------------------

// WeatherService serves cached current conditions and aggregated forecasts.
type WeatherService interface {
	Current(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error)
	Forecast(ctx context.Context, lat, lon float64, days int) ([]models.ForecastDay, error)
	RefreshRecent(ctx context.Context) error
}

// ---- Implementation -----------------------------------------------------------

type weatherService struct {
	records  WeatherRepository
	upstream WeatherUpstream
	log      *zap.Logger
}

// NewWeatherService wires its dependencies.
func NewWeatherService(records WeatherRepository, upstream WeatherUpstream, log *zap.Logger) WeatherService {
	return &weatherService{records: records, upstream: upstream, log: log}
}

// Current serves the freshest record inside the 10 minute window, otherwise
// fetches upstream. When the upstream is down an expired record is served
// flagged stale; only a cold location with a dead upstream is an error.
func (s *weatherService) Current(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error) {
	lat, lon = roundCoord(lat), roundCoord(lon)

	stored, storedErr := s.records.Latest(ctx, lat, lon)
	if storedErr == nil && time.Since(stored.FetchedAt) <= freshnessWindow {
		return models.WeatherSnapshot{WeatherRecord: stored, Cached: true}, nil
	}
	if storedErr != nil && !errors.Is(storedErr, mongo.ErrNoDocuments) {
		return models.WeatherSnapshot{}, fmt.Errorf("load weather record: %w", storedErr)
	}

	obs, err := s.upstream.Current(ctx, lat, lon)
	if err != nil {
		if storedErr == nil {
			s.log.Warn("weather upstream down, serving stale record",
				zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
			return models.WeatherSnapshot{WeatherRecord: stored, Cached: true, Stale: true}, nil
		}
		return models.WeatherSnapshot{}, fmt.Errorf("%w: weather fetch failed", ErrUpstream)
	}

	rec := recordFromObservation(lat, lon, models.WeatherSourceUser, obs)
	if err := s.records.Insert(ctx, &rec); err != nil {
		// Serving the fresh observation matters more than caching it.
		s.log.Warn("store weather record failed",
			zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
	}

	return models.WeatherSnapshot{WeatherRecord: rec}, nil
}

// Forecast aggregates the upstream 3-hourly entries into per-day summaries.
// Forecasts are not cached; they change too slowly to be worth the staleness
// bookkeeping and too quickly to pin for long.
func (s *weatherService) Forecast(ctx context.Context, lat, lon float64, days int) ([]models.ForecastDay, error) {
	if days < 1 {
		days = 1
	}
	if days > 5 {
		days = 5
	}
	lat, lon = roundCoord(lat), roundCoord(lon)

	fc, err := s.upstream.Forecast(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("%w: forecast fetch failed", ErrUpstream)
	}

	return aggregateForecast(fc, days), nil
}

// RefreshRecent re-fetches every location a user asked about in the last 24
// hours so their next request hits a warm cache. Failures are logged per
// location; one dead pair must not starve the rest.
func (s *weatherService) RefreshRecent(ctx context.Context) error {
	pairs, err := s.records.RecentPairs(ctx, time.Now().UTC().Add(-warmSetWindow))
	if err != nil {
		return fmt.Errorf("list warm locations: %w", err)
	}

	var wg sync.WaitGroup
	for _, pair := range pairs {
		pair := pair
		wg.Add(1)
		go func() {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			obs, err := s.upstream.Current(fctx, pair.Lat, pair.Lon)
			if err != nil {
				s.log.Warn("warm refresh failed",
					zap.Float64("lat", pair.Lat), zap.Float64("lon", pair.Lon), zap.Error(err))
				return
			}
			rec := recordFromObservation(pair.Lat, pair.Lon, models.WeatherSourceRefresher, obs)
			if err := s.records.Insert(fctx, &rec); err != nil {
				s.log.Warn("store refreshed record failed",
					zap.Float64("lat", pair.Lat), zap.Float64("lon", pair.Lon), zap.Error(err))
			}
		}()
	}
	wg.Wait()

	if len(pairs) > 0 {
		s.log.Info("weather warm set refreshed", zap.Int("locations", len(pairs)))
	}
	return nil
}

// ---- Helpers -------------------------------------------------------------------

// roundCoord snaps a coordinate to 4 decimal places (~11 m) so nearby
// requests share cache entries.
func roundCoord(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func recordFromObservation(lat, lon float64, source string, obs openweather.Observation) models.WeatherRecord {
	return models.WeatherRecord{
		Lat:       lat,
		Lon:       lon,
		PlaceName: obs.PlaceName,
		Source:    source,
		FetchedAt: time.Now().UTC(),
		Current: models.WeatherCurrent{
			TempC:       obs.TempC,
			FeelsLikeC:  obs.FeelsLikeC,
			HumidityPct: obs.HumidityPct,
			WindSpeedMS: obs.WindSpeedMS,
			PressureHpa: obs.PressureHpa,
			PrecipMM:    obs.PrecipMM,
			Condition:   obs.Condition,
			Description: obs.Description,
			Icon:        obs.Icon,
		},
	}
}

// aggregateForecast buckets 3-hourly entries into location-local days and
// reduces each day to min/max temperature, summed precipitation and the most
// frequent condition (first seen wins ties).
func aggregateForecast(fc openweather.Forecast, days int) []models.ForecastDay {
	type dayAgg struct {
		tempMin    float64
		tempMax    float64
		precip     float64
		conditions map[string]int
		firstSeen  map[string]int
	}

	byDate := make(map[string]*dayAgg)
	var dates []string

	for i, entry := range fc.Entries {
		date := entry.At.Add(fc.TimezoneOffset).Format("2006-01-02")

		agg, ok := byDate[date]
		if !ok {
			agg = &dayAgg{
				tempMin:    entry.TempMinC,
				tempMax:    entry.TempMaxC,
				conditions: make(map[string]int),
				firstSeen:  make(map[string]int),
			}
			byDate[date] = agg
			dates = append(dates, date)
		}

		agg.tempMin = math.Min(agg.tempMin, entry.TempMinC)
		agg.tempMax = math.Max(agg.tempMax, entry.TempMaxC)
		agg.precip += entry.PrecipMM
		if entry.Condition != "" {
			if _, seen := agg.firstSeen[entry.Condition]; !seen {
				agg.firstSeen[entry.Condition] = i
			}
			agg.conditions[entry.Condition]++
		}
	}

	sort.Strings(dates)
	if len(dates) > days {
		dates = dates[:days]
	}

	out := make([]models.ForecastDay, 0, len(dates))
	for _, date := range dates {
		agg := byDate[date]
		out = append(out, models.ForecastDay{
			Date:      date,
			TempMinC:  agg.tempMin,
			TempMaxC:  agg.tempMax,
			Condition: dominantCondition(agg.conditions, agg.firstSeen),
			PrecipMM:  math.Round(agg.precip*100) / 100,
		})
	}
	return out
}

func dominantCondition(counts, firstSeen map[string]int) string {
	best := ""
	bestCount := -1
	for cond, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount = cond, n
		case n == bestCount && firstSeen[cond] < firstSeen[best]:
			best = cond
		}
	}
	return best
}
