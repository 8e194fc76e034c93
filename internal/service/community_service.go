package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/events"
	"github.com/agriai/server/internal/models"
)

// maxPostTags caps how many tags one post can carry.
const maxPostTags = 5

// excerptLen caps how much comment text rides along in an event.
const excerptLen = 80

// ---- Contracts ----------------------------------------------------------------

// PostRepository is the slice of persistence the community flow needs.
type PostRepository interface {
	Insert(ctx context.Context, p *models.Post) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Post, error)
	List(ctx context.Context, page, limit int, tag string) ([]models.Post, int64, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	AddLike(ctx context.Context, id, userID primitive.ObjectID) (models.Post, error)
	RemoveLike(ctx context.Context, id, userID primitive.ObjectID) (models.Post, error)
	AddComment(ctx context.Context, id primitive.ObjectID, comment models.Comment) (models.Post, error)
}

// UserGetter resolves actor and author names for denormalisation.
type UserGetter interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// EventPublisher emits community events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.PostEvent) error
}

// ---- Interface ----------------------------------------------------------------

// CommunityService manages the post feed and its interactions.
type CommunityService interface {
	CreatePost(ctx context.Context, userID string, req models.CreatePostRequest, image []byte, imageType string) (models.Post, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	ListPosts(ctx context.Context, page, limit int, tag string) ([]models.Post, int64, error)
	DeletePost(ctx context.Context, userID, id string) error
	Like(ctx context.Context, userID, id string) (int, error)
	Unlike(ctx context.Context, userID, id string) (int, error)
	AddComment(ctx context.Context, userID, id string, req models.CreateCommentRequest) (models.Comment, error)
}

// ---- Implementation -----------------------------------------------------------

type communityService struct {
	posts  PostRepository
	users  UserGetter
	store  ObjectStore
	events EventPublisher
	log    *zap.Logger
}

// NewCommunityService wires its dependencies. pub may be nil when the broker
// is unavailable; the feed then works without notifications.
func NewCommunityService(posts PostRepository, users UserGetter, store ObjectStore, pub EventPublisher, log *zap.Logger) CommunityService {
	return &communityService{posts: posts, users: users, store: store, events: pub, log: log}
}

func (s *communityService) CreatePost(ctx context.Context, userID string, req models.CreatePostRequest, image []byte, imageType string) (models.Post, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Post{}, ErrNotFound
	}

	author, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("find author: %w", err)
	}

	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return models.Post{}, err
	}

	imageKey := ""
	if len(image) > 0 {
		ext, ok := ImageExtension(imageType)
		if !ok {
			return models.Post{}, fmt.Errorf("%w: unsupported content type %q", ErrValidation, imageType)
		}
		if len(image) > MaxImageBytes {
			return models.Post{}, fmt.Errorf("%w: image exceeds %d bytes", ErrValidation, MaxImageBytes)
		}
		imageKey = "posts/" + uuid.NewString() + ext
		if err := s.store.Upload(ctx, imageKey, image, imageType); err != nil {
			return models.Post{}, fmt.Errorf("upload post image: %w", err)
		}
	}

	now := time.Now().UTC()
	post := models.Post{
		AuthorID:   uid,
		AuthorName: author.FullName,
		Content:    strings.TrimSpace(req.Content),
		ImageKey:   imageKey,
		Tags:       tags,
		Comments:   []models.Comment{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.posts.Insert(ctx, &post); err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}

	s.decorate(ctx, &post)
	return post, nil
}

func (s *communityService) GetPost(ctx context.Context, id string) (models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Post{}, ErrNotFound
	}

	post, err := s.posts.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("find post: %w", err)
	}

	s.decorate(ctx, &post)
	return post, nil
}

func (s *communityService) ListPosts(ctx context.Context, page, limit int, tag string) ([]models.Post, int64, error) {
	posts, total, err := s.posts.List(ctx, page, limit, strings.ToLower(strings.TrimSpace(tag)))
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	for i := range posts {
		s.decorate(ctx, &posts[i])
	}
	return posts, total, nil
}

// DeletePost removes a post after verifying the caller wrote it.
func (s *communityService) DeletePost(ctx context.Context, userID, id string) error {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return err
	}

	post, err := s.posts.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("find post: %w", err)
	}
	if post.AuthorID != uid {
		return ErrForbidden
	}

	if err := s.posts.Delete(ctx, oid); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("delete post: %w", err)
	}

	if post.ImageKey != "" {
		if err := s.store.Delete(ctx, post.ImageKey); err != nil {
			s.log.Warn("delete post image failed", zap.String("key", post.ImageKey), zap.Error(err))
		}
	}
	return nil
}

func (s *communityService) Like(ctx context.Context, userID, id string) (int, error) {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return 0, err
	}

	post, err := s.posts.AddLike(ctx, oid, uid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("like post: %w", err)
	}

	// Liking your own post is fine, it just never notifies anyone.
	if post.AuthorID != uid {
		s.publish(ctx, events.PostEvent{
			Kind:       events.KindLiked,
			PostID:     post.ID.Hex(),
			AuthorID:   post.AuthorID.Hex(),
			ActorID:    uid.Hex(),
			ActorName:  s.actorName(ctx, uid),
			OccurredAt: time.Now().UTC(),
		})
	}

	return len(post.Likes), nil
}

func (s *communityService) Unlike(ctx context.Context, userID, id string) (int, error) {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return 0, err
	}

	post, err := s.posts.RemoveLike(ctx, oid, uid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("unlike post: %w", err)
	}
	return len(post.Likes), nil
}

func (s *communityService) AddComment(ctx context.Context, userID, id string, req models.CreateCommentRequest) (models.Comment, error) {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return models.Comment{}, err
	}

	author, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("find commenter: %w", err)
	}

	comment := models.Comment{
		ID:         primitive.NewObjectID(),
		AuthorID:   uid,
		AuthorName: author.FullName,
		Content:    strings.TrimSpace(req.Content),
		CreatedAt:  time.Now().UTC(),
	}

	post, err := s.posts.AddComment(ctx, oid, comment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("comment on post: %w", err)
	}

	if post.AuthorID != uid {
		s.publish(ctx, events.PostEvent{
			Kind:       events.KindCommented,
			PostID:     post.ID.Hex(),
			AuthorID:   post.AuthorID.Hex(),
			ActorID:    uid.Hex(),
			ActorName:  comment.AuthorName,
			Excerpt:    excerpt(comment.Content),
			OccurredAt: time.Now().UTC(),
		})
	}

	return comment, nil
}

// ---- Helpers -------------------------------------------------------------------

// publish is fire-and-forget: the write already committed, so a dead broker
// only costs the notification.
func (s *communityService) publish(ctx context.Context, evt events.PostEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("publish community event failed",
			zap.String("subject", evt.Subject()), zap.Error(err))
	}
}

func (s *communityService) actorName(ctx context.Context, id primitive.ObjectID) string {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return "Someone"
	}
	return user.FullName
}

// decorate fills the computed fields posts carry in responses.
func (s *communityService) decorate(ctx context.Context, post *models.Post) {
	post.LikeCount = len(post.Likes)
	if post.Comments == nil {
		post.Comments = []models.Comment{}
	}
	if post.ImageKey == "" {
		return
	}
	url, err := s.store.PresignDownload(ctx, post.ImageKey)
	if err != nil {
		s.log.Warn("presign post image failed", zap.String("key", post.ImageKey), zap.Error(err))
		return
	}
	post.ImageURL = url
}

// normalizeTags lowercases, trims and dedupes; more than maxPostTags distinct
// tags is a validation error rather than a silent truncation.
func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) > maxPostTags {
		return nil, fmt.Errorf("%w: at most %d tags", ErrValidation, maxPostTags)
	}
	return tags, nil
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen]) + "…"
}
