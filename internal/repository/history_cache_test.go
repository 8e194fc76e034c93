package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/agriai/server/internal/models"
)

func TestHistoryCacheRoundTrip(t *testing.T) {
	c := NewHistoryCache()
	session := models.ChatSession{
		ID:       primitive.NewObjectID(),
		UserID:   primitive.NewObjectID(),
		Title:    "Maize rust",
		Language: "en",
		Tone:     models.ToneFriendly,
		Turns: []models.ChatTurn{
			{Role: models.RoleUser, Content: "hello", CreatedAt: time.Now()},
		},
	}

	_, ok := c.Get(session.ID.Hex())
	assert.False(t, ok)

	c.Set(session)

	got, ok := c.Get(session.ID.Hex())
	require.True(t, ok)
	assert.Equal(t, session.Title, got.Title)
	assert.Len(t, got.Turns, 1)
}

func TestHistoryCacheStoresCopies(t *testing.T) {
	c := NewHistoryCache()
	session := models.ChatSession{ID: primitive.NewObjectID(), Title: "original"}
	c.Set(session)

	session.Title = "mutated"

	got, ok := c.Get(session.ID.Hex())
	require.True(t, ok)
	assert.Equal(t, "original", got.Title)
}

func TestHistoryCacheDelete(t *testing.T) {
	c := NewHistoryCache()
	session := models.ChatSession{ID: primitive.NewObjectID()}
	c.Set(session)

	c.Delete(session.ID.Hex())

	_, ok := c.Get(session.ID.Hex())
	assert.False(t, ok)
}
