// Package events publishes and consumes community activity over NATS
// JetStream. Publishing is fire-and-forget from the caller's point of view:
// a dead broker degrades notifications, never the write path.
package events

import "time"

// Stream layout. One stream owns every community subject so a single durable
// consumer can follow all post activity.
const (
	StreamName      = "COMMUNITY"
	SubjectWildcard = "community.>"

	SubjectPostLiked     = "community.post.liked"
	SubjectPostCommented = "community.post.commented"
)

// Event kinds carried in PostEvent.Kind.
const (
	KindLiked     = "liked"
	KindCommented = "commented"
)

// PostEvent is the payload for all community post activity. AuthorID is the
// post owner and therefore the notification recipient.
type PostEvent struct {
	Kind       string    `json:"kind"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	Excerpt    string    `json:"excerpt,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Subject maps the event kind onto its JetStream subject.
func (e PostEvent) Subject() string {
	return "community.post." + e.Kind
}
