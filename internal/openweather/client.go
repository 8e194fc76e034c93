// Package openweather is a *thin* wrapper around the OpenWeatherMap REST API.
// Only the endpoints AgriAI needs are implemented: current conditions and the
// 5-day / 3-hour forecast. Responses are normalised into metric units so the
// rest of the codebase never sees the upstream wire format.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	maxRetries  = 2
	baseBackoff = 300 * time.Millisecond
)

// Client calls the OpenWeatherMap API with retries and a circuit breaker so
// one flaky upstream cannot stall every weather request.
type Client struct {
	http    *http.Client
	key     string
	base    string
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a Client. Pass a *http.Client so timeouts are owned by the
// caller. baseURL is normally https://api.openweathermap.org.
func NewClient(httpClient *http.Client, apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org"
	}
	return &Client{
		http: httpClient,
		key:  apiKey,
		base: strings.TrimRight(baseURL, "/"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Observation is one normalised current-conditions reading.
type Observation struct {
	PlaceName   string
	TempC       float64
	FeelsLikeC  float64
	HumidityPct int
	WindSpeedMS float64
	PressureHpa float64
	PrecipMM    float64
	Condition   string
	Description string
	Icon        string
	ObservedAt  time.Time
}

// ForecastEntry is one 3-hour slot of the upstream forecast.
type ForecastEntry struct {
	At        time.Time
	TempMinC  float64
	TempMaxC  float64
	Condition string
	PrecipMM  float64
}

// Forecast carries the raw 3-hourly entries plus the location's UTC offset,
// which callers need to bucket entries into local days.
type Forecast struct {
	TimezoneOffset time.Duration
	Entries        []ForecastEntry
}

// ---- Wire format ------------------------------------------------------------

type wireWeather struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type wireRain struct {
	OneH   float64 `json:"1h"`
	ThreeH float64 `json:"3h"`
}

type wireCurrent struct {
	Name string `json:"name"`
	Dt   int64  `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []wireWeather `json:"weather"`
	Rain    wireRain      `json:"rain"`
}

type wireForecast struct {
	City struct {
		Timezone int `json:"timezone"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []wireWeather `json:"weather"`
		Rain    wireRain      `json:"rain"`
	} `json:"list"`
}

// ---- Public API ---------------------------------------------------------------

// Current fetches the present conditions for a coordinate pair.
func (c *Client) Current(ctx context.Context, lat, lon float64) (Observation, error) {
	var raw wireCurrent
	if err := c.get(ctx, "/data/2.5/weather", lat, lon, &raw); err != nil {
		return Observation{}, err
	}

	obs := Observation{
		PlaceName:   raw.Name,
		TempC:       raw.Main.Temp,
		FeelsLikeC:  raw.Main.FeelsLike,
		HumidityPct: raw.Main.Humidity,
		WindSpeedMS: raw.Wind.Speed,
		PressureHpa: raw.Main.Pressure,
		PrecipMM:    raw.Rain.OneH,
		ObservedAt:  time.Unix(raw.Dt, 0).UTC(),
	}
	if len(raw.Weather) > 0 {
		obs.Condition = raw.Weather[0].Main
		obs.Description = raw.Weather[0].Description
		obs.Icon = raw.Weather[0].Icon
	}
	return obs, nil
}

// Forecast fetches the 5-day / 3-hour forecast for a coordinate pair.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (Forecast, error) {
	var raw wireForecast
	if err := c.get(ctx, "/data/2.5/forecast", lat, lon, &raw); err != nil {
		return Forecast{}, err
	}

	fc := Forecast{
		TimezoneOffset: time.Duration(raw.City.Timezone) * time.Second,
		Entries:        make([]ForecastEntry, 0, len(raw.List)),
	}
	for _, e := range raw.List {
		entry := ForecastEntry{
			At:       time.Unix(e.Dt, 0).UTC(),
			TempMinC: e.Main.TempMin,
			TempMaxC: e.Main.TempMax,
			PrecipMM: e.Rain.ThreeH,
		}
		if len(e.Weather) > 0 {
			entry.Condition = e.Weather[0].Main
		}
		fc.Entries = append(fc.Entries, entry)
	}
	return fc, nil
}

// ---- Transport ---------------------------------------------------------------

// get runs one GET through the circuit breaker with bounded retries.
// 5xx responses and transport errors retry with exponential backoff;
// 4xx responses fail immediately since retrying cannot fix them.
func (c *Client) get(ctx context.Context, path string, lat, lon float64, v interface{}) error {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("units", "metric")
	q.Set("appid", c.key)
	endpoint := c.base + path + "?" + q.Encode()

	body, err := c.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				backoff := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempt-1)))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}

			res, err := c.http.Do(req)
			if err != nil {
				lastErr = err
				continue
			}

			data, err := io.ReadAll(res.Body)
			res.Body.Close()
			if err != nil {
				lastErr = err
				continue
			}

			switch {
			case res.StatusCode < 300:
				return data, nil
			case res.StatusCode >= 500:
				lastErr = fmt.Errorf("openweather: %s returned status %d", path, res.StatusCode)
				continue
			default:
				return nil, fmt.Errorf("openweather: %s returned status %d: %s",
					path, res.StatusCode, strings.TrimSpace(string(data)))
			}
		}
		return nil, lastErr
	})
	if err != nil {
		return fmt.Errorf("openweather: request failed: %w", err)
	}

	if err := json.Unmarshal(body.([]byte), v); err != nil {
		return fmt.Errorf("openweather: decode %s: %w", path, err)
	}
	return nil
}
