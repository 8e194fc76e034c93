// Package scheduler runs the periodic weather warm-set refresh.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// WeatherRefresher is implemented by the weather service.
type WeatherRefresher interface {
	RefreshRecent(ctx context.Context) error
}

// Scheduler periodically re-fetches weather for recently requested locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	weather   WeatherRefresher
	interval  time.Duration
	log       *zap.Logger
}

// New creates a Scheduler; jobs run on UTC wall time.
func New(weather WeatherRefresher, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		weather:   weather,
		interval:  interval,
		log:       log,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := s.weather.RefreshRecent(ctx); err != nil {
			s.log.Warn("weather refresh job failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info("weather refresh scheduled", zap.Int("interval_minutes", minutes))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
