package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Weather record sources. Records written by the background refresher must
// not keep a location in the warm set on their own.
const (
	WeatherSourceUser      = "user"
	WeatherSourceRefresher = "refresher"
)

// WeatherCurrent is the normalised shape of one upstream observation.
type WeatherCurrent struct {
	TempC       float64 `bson:"temp_c" json:"temp_c"`
	FeelsLikeC  float64 `bson:"feels_like_c" json:"feels_like_c"`
	HumidityPct int     `bson:"humidity_pct" json:"humidity_pct"`
	WindSpeedMS float64 `bson:"wind_speed_ms" json:"wind_speed_ms"`
	PressureHpa float64 `bson:"pressure_hpa" json:"pressure_hpa"`
	PrecipMM    float64 `bson:"precip_mm" json:"precip_mm"`
	Condition   string  `bson:"condition" json:"condition"`
	Description string  `bson:"description" json:"description"`
	Icon        string  `bson:"icon" json:"icon"`
}

// WeatherRecord is one stored observation for a rounded coordinate pair.
type WeatherRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Lat       float64            `bson:"lat" json:"lat"`
	Lon       float64            `bson:"lon" json:"lon"`
	PlaceName string             `bson:"place_name,omitempty" json:"place_name,omitempty"`
	Source    string             `bson:"source" json:"-"`
	FetchedAt time.Time          `bson:"fetched_at" json:"fetched_at"`
	Current   WeatherCurrent     `bson:"current" json:"current"`
}

// WeatherSnapshot is the API response for current conditions. Cached means
// the record was served from the store within its freshness window; Stale
// means the upstream was down and an expired record was served instead.
type WeatherSnapshot struct {
	WeatherRecord
	Cached bool `json:"cached"`
	Stale  bool `json:"stale"`
}

// ForecastDay is one aggregated day of the 3-hourly upstream forecast.
type ForecastDay struct {
	Date      string  `json:"date"`
	TempMinC  float64 `json:"temp_min_c"`
	TempMaxC  float64 `json:"temp_max_c"`
	Condition string  `json:"condition"`
	PrecipMM  float64 `json:"precip_mm"`
}

// CoordPair identifies a rounded location in the weather warm set.
type CoordPair struct {
	Lat float64 `bson:"lat"`
	Lon float64 `bson:"lon"`
}
