package repository

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/agriai/server/internal/models"
)

// HistoryCache keeps hot chat sessions in memory so the chat service does
// not re-read the session document on every message. Mongo remains the
// source of truth; entries expire after an hour of inactivity.
type HistoryCache struct {
	cache *cache.Cache
}

func NewHistoryCache() *HistoryCache {
	return &HistoryCache{cache: cache.New(1*time.Hour, 10*time.Minute)}
}

func (c *HistoryCache) Get(id string) (models.ChatSession, bool) {
	v, ok := c.cache.Get(id)
	if !ok {
		return models.ChatSession{}, false
	}
	session, ok := v.(models.ChatSession)
	return session, ok
}

// Set stores the session by value; callers keep their own copy.
func (c *HistoryCache) Set(session models.ChatSession) {
	c.cache.Set(session.ID.Hex(), session, cache.DefaultExpiration)
}

func (c *HistoryCache) Delete(id string) {
	c.cache.Delete(id)
}
