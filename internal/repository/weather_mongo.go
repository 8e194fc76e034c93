package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agriai/server/internal/models"
)

// WeatherRepository persists upstream observations, one document per fetch.
// The collection doubles as the response cache: the freshest document for a
// rounded coordinate pair is the cache entry.
type WeatherRepository struct {
	col *mongo.Collection
}

// NewWeatherRepository returns a ready‑to‑use repository handle.
func NewWeatherRepository(db *mongo.Database) *WeatherRepository {
	return &WeatherRepository{col: db.Collection("weather_records")}
}

func (r *WeatherRepository) Insert(ctx context.Context, rec *models.WeatherRecord) error {
	res, err := r.col.InsertOne(ctx, rec)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = id
	}
	return nil
}

// Latest returns the most recent record for an exact rounded pair.
func (r *WeatherRepository) Latest(ctx context.Context, lat, lon float64) (models.WeatherRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "fetched_at", Value: -1}})

	var rec models.WeatherRecord
	err := r.col.FindOne(ctx, bson.M{"lat": lat, "lon": lon}, opts).Decode(&rec)
	return rec, err
}

// RecentPairs lists the distinct pairs a user asked about since the cutoff.
// Refresher-written records are excluded so the warm set cannot feed itself.
func (r *WeatherRepository) RecentPairs(ctx context.Context, since time.Time) ([]models.CoordPair, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"source":     models.WeatherSourceUser,
			"fetched_at": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"lat": "$lat", "lon": "$lon"},
		}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID models.CoordPair `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	pairs := make([]models.CoordPair, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, row.ID)
	}
	return pairs, nil
}
