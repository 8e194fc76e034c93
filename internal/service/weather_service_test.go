package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
	"github.com/agriai/server/internal/openweather"
)

type fakeWeatherRepo struct {
	mu        sync.Mutex
	latest    models.WeatherRecord
	latestErr error
	inserted  []models.WeatherRecord
	pairs     []models.CoordPair
}

func (f *fakeWeatherRepo) Insert(_ context.Context, rec *models.WeatherRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, *rec)
	return nil
}

func (f *fakeWeatherRepo) Latest(context.Context, float64, float64) (models.WeatherRecord, error) {
	return f.latest, f.latestErr
}

func (f *fakeWeatherRepo) RecentPairs(context.Context, time.Time) ([]models.CoordPair, error) {
	return f.pairs, nil
}

type fakeUpstream struct {
	mu       sync.Mutex
	calls    int
	lastLat  float64
	lastLon  float64
	obs      openweather.Observation
	obsErr   error
	forecast openweather.Forecast
}

func (f *fakeUpstream) Current(_ context.Context, lat, lon float64) (openweather.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastLat, f.lastLon = lat, lon
	return f.obs, f.obsErr
}

func (f *fakeUpstream) Forecast(context.Context, float64, float64) (openweather.Forecast, error) {
	return f.forecast, nil
}

func TestCurrentServesFreshRecord(t *testing.T) {
	repo := &fakeWeatherRepo{latest: models.WeatherRecord{
		Lat:       -1.2921,
		Lon:       36.8219,
		FetchedAt: time.Now().UTC().Add(-time.Minute),
	}}
	up := &fakeUpstream{}
	svc := NewWeatherService(repo, up, zap.NewNop())

	snap, err := svc.Current(context.Background(), -1.2921, 36.8219)

	require.NoError(t, err)
	assert.True(t, snap.Cached)
	assert.False(t, snap.Stale)
	assert.Zero(t, up.calls, "a fresh record must not hit the upstream")
}

func TestCurrentRefetchesExpiredRecord(t *testing.T) {
	repo := &fakeWeatherRepo{latest: models.WeatherRecord{
		FetchedAt: time.Now().UTC().Add(-11 * time.Minute),
	}}
	up := &fakeUpstream{obs: openweather.Observation{TempC: 24.5, Condition: "Clouds"}}
	svc := NewWeatherService(repo, up, zap.NewNop())

	snap, err := svc.Current(context.Background(), -1.2921, 36.8219)

	require.NoError(t, err)
	assert.False(t, snap.Cached)
	assert.Equal(t, 24.5, snap.Current.TempC)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, models.WeatherSourceUser, repo.inserted[0].Source)
}

func TestCurrentServesStaleWhenUpstreamDown(t *testing.T) {
	repo := &fakeWeatherRepo{latest: models.WeatherRecord{
		FetchedAt: time.Now().UTC().Add(-2 * time.Hour),
		Current:   models.WeatherCurrent{TempC: 19},
	}}
	up := &fakeUpstream{obsErr: errors.New("connection refused")}
	svc := NewWeatherService(repo, up, zap.NewNop())

	snap, err := svc.Current(context.Background(), -1.2921, 36.8219)

	require.NoError(t, err)
	assert.True(t, snap.Cached)
	assert.True(t, snap.Stale)
	assert.Equal(t, float64(19), snap.Current.TempC)
}

func TestCurrentColdLocationUpstreamDown(t *testing.T) {
	repo := &fakeWeatherRepo{latestErr: mongo.ErrNoDocuments}
	up := &fakeUpstream{obsErr: errors.New("connection refused")}
	svc := NewWeatherService(repo, up, zap.NewNop())

	_, err := svc.Current(context.Background(), -1.2921, 36.8219)

	assert.ErrorIs(t, err, ErrUpstream)
}

func TestCurrentRoundsCoordinates(t *testing.T) {
	repo := &fakeWeatherRepo{latestErr: mongo.ErrNoDocuments}
	up := &fakeUpstream{}
	svc := NewWeatherService(repo, up, zap.NewNop())

	_, err := svc.Current(context.Background(), -1.29213847, 36.82194621)

	require.NoError(t, err)
	assert.Equal(t, -1.2921, up.lastLat)
	assert.Equal(t, 36.8219, up.lastLon)
}

func TestRefreshRecentUsesRefresherSource(t *testing.T) {
	repo := &fakeWeatherRepo{
		latestErr: mongo.ErrNoDocuments,
		pairs: []models.CoordPair{
			{Lat: -1.2921, Lon: 36.8219},
			{Lat: 6.5244, Lon: 3.3792},
		},
	}
	up := &fakeUpstream{obs: openweather.Observation{Condition: "Rain"}}
	svc := NewWeatherService(repo, up, zap.NewNop())

	require.NoError(t, svc.RefreshRecent(context.Background()))

	assert.Equal(t, 2, up.calls)
	require.Len(t, repo.inserted, 2)
	for _, rec := range repo.inserted {
		assert.Equal(t, models.WeatherSourceRefresher, rec.Source)
	}
}

func TestForecastAggregatesDays(t *testing.T) {
	base := time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC)
	up := &fakeUpstream{forecast: openweather.Forecast{
		// +3h pushes the 21:00 UTC entry into the next local day.
		TimezoneOffset: 3 * time.Hour,
		Entries: []openweather.ForecastEntry{
			{At: base, TempMinC: 14, TempMaxC: 16, Condition: "Clouds", PrecipMM: 0.4},
			{At: base.Add(3 * time.Hour), TempMinC: 12, TempMaxC: 15, Condition: "Rain", PrecipMM: 1.2},
			{At: base.Add(6 * time.Hour), TempMinC: 11, TempMaxC: 13, Condition: "Rain", PrecipMM: 2.1},
			{At: base.Add(9 * time.Hour), TempMinC: 13, TempMaxC: 18, Condition: "Clear", PrecipMM: 0},
			{At: base.Add(27 * time.Hour), TempMinC: 15, TempMaxC: 22, Condition: "Clear", PrecipMM: 0},
		},
	}}
	svc := NewWeatherService(&fakeWeatherRepo{}, up, zap.NewNop())

	days, err := svc.Forecast(context.Background(), -1.2921, 36.8219, 5)

	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2025-03-11", days[0].Date)
	assert.Equal(t, float64(11), days[0].TempMinC)
	assert.Equal(t, float64(18), days[0].TempMaxC)
	assert.Equal(t, "Rain", days[0].Condition)
	assert.Equal(t, 3.7, days[0].PrecipMM)

	assert.Equal(t, "2025-03-12", days[1].Date)
	assert.Equal(t, "Clear", days[1].Condition)
}

func TestForecastClampsDays(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := make([]openweather.ForecastEntry, 0, 16)
	for i := 0; i < 16; i++ {
		entries = append(entries, openweather.ForecastEntry{
			At: base.Add(time.Duration(i) * 12 * time.Hour), Condition: "Clear",
		})
	}
	up := &fakeUpstream{forecast: openweather.Forecast{Entries: entries}}
	svc := NewWeatherService(&fakeWeatherRepo{}, up, zap.NewNop())

	days, err := svc.Forecast(context.Background(), 0, 0, 99)

	require.NoError(t, err)
	assert.Len(t, days, 5)
}
