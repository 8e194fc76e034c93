package service

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/events"
	"github.com/agriai/server/internal/models"
)

// ---- Contracts ----------------------------------------------------------------

// NotificationRepository stores per-user notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID primitive.ObjectID, page, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, id, userID primitive.ObjectID) error
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

// ---- Interface ----------------------------------------------------------------

// NotificationService lists and acknowledges notifications, and turns
// community events into new ones.
type NotificationService interface {
	List(ctx context.Context, userID string, page, limit int) ([]models.Notification, int64, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	HandlePostEvent(ctx context.Context, evt events.PostEvent) error
}

// ---- Implementation -----------------------------------------------------------

type notificationService struct {
	notifications NotificationRepository
	log           *zap.Logger
}

func NewNotificationService(notifications NotificationRepository, log *zap.Logger) NotificationService {
	return &notificationService{notifications: notifications, log: log}
}

func (s *notificationService) List(ctx context.Context, userID string, page, limit int) ([]models.Notification, int64, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, 0, ErrNotFound
	}

	items, err := s.notifications.ListByUser(ctx, uid, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	unread, err := s.notifications.CountUnread(ctx, uid)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread: %w", err)
	}
	return items, unread, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id string) error {
	uid, nid, err := parseOwnedID(userID, id)
	if err != nil {
		return err
	}
	if err := s.notifications.MarkRead(ctx, nid, uid); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, ErrNotFound
	}
	n, err := s.notifications.MarkAllRead(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

// HandlePostEvent materialises a notification for the post author. A nil
// return acknowledges the event; only storage errors are worth a redelivery.
func (s *notificationService) HandlePostEvent(ctx context.Context, evt events.PostEvent) error {
	// Self-interactions never notify.
	if evt.ActorID == evt.AuthorID {
		return nil
	}

	authorID, err := primitive.ObjectIDFromHex(evt.AuthorID)
	if err != nil {
		s.log.Warn("event carries malformed author id", zap.String("author_id", evt.AuthorID))
		return nil
	}
	postID, err := primitive.ObjectIDFromHex(evt.PostID)
	if err != nil {
		s.log.Warn("event carries malformed post id", zap.String("post_id", evt.PostID))
		return nil
	}

	var kind, message string
	switch evt.Kind {
	case events.KindLiked:
		kind = models.NotificationPostLiked
		message = evt.ActorName + " liked your post"
	case events.KindCommented:
		kind = models.NotificationPostCommented
		message = evt.ActorName + " commented on your post: " + evt.Excerpt
	default:
		s.log.Warn("unknown event kind", zap.String("kind", evt.Kind))
		return nil
	}

	notification := models.Notification{
		UserID:    authorID,
		Kind:      kind,
		PostID:    postID,
		ActorName: evt.ActorName,
		Message:   message,
		CreatedAt: evt.OccurredAt,
	}
	if err := s.notifications.Insert(ctx, &notification); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
