package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/krshsl/influenceos/backend/models"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

// PostgreSQL error classes surfaced by name in StorageError messages
var pgConstraintCodes = map[string]string{
	"23502": "not-null constraint violated",
	"23503": "foreign key constraint violated",
	"23505": "unique constraint violated",
	"23514": "check constraint violated",
}

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate creates or updates the posts table from the model.
// Production schemas are owned by the SQL migrations in migrations/.
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.Post{})
}

// Ping checks database connectivity
func (r *GORMRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storageError("failed to get database handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageError("database unreachable", err)
	}
	return nil
}

// CreatePost persists a new post as a draft
func (r *GORMRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if strings.TrimSpace(post.UserID) == "" {
		return models.NewStorageError("post is missing an owning user id", nil)
	}
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	post.Status = models.PostStatusDraft
	post.ProviderPostID = nil
	post.PostedAt = nil
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		slog.Error("Failed to create post", "error", err, "user_id", post.UserID)
		return storageError("failed to create post", err)
	}
	slog.Info("Post created", "post_id", post.ID, "user_id", post.UserID)
	return nil
}

// MarkPosted moves a draft owned by userID to posted and records the provider id.
// A post that exists but is no longer a draft is a conflict.
func (r *GORMRepository) MarkPosted(ctx context.Context, postID, userID, providerPostID string, postedAt time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return models.NewStorageError("owning user id is required", nil)
	}

	result := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND user_id = ? AND status = ?", postID, userID, models.PostStatusDraft).
		Updates(map[string]interface{}{
			"status":           models.PostStatusPosted,
			"provider_post_id": providerPostID,
			"posted_at":        postedAt,
		})
	if result.Error != nil {
		slog.Error("Failed to mark post as posted", "error", result.Error, "post_id", postID, "user_id", userID)
		return storageError("failed to update post", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&models.Post{}).
			Where("id = ? AND user_id = ?", postID, userID).
			Count(&count).Error
		if err != nil {
			return storageError("failed to look up post", err)
		}
		if count > 0 {
			return models.NewConflictError("post is already published")
		}
		return models.NewNotFoundError("draft post not found")
	}

	slog.Info("Post marked as posted", "post_id", postID, "user_id", userID, "provider_post_id", providerPostID)
	return nil
}

// GetPost returns a post owned by userID, or nil when there is none
func (r *GORMRepository) GetPost(ctx context.Context, postID, userID string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", postID, userID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get post", "error", err, "post_id", postID, "user_id", userID)
		return nil, storageError("failed to get post", err)
	}
	return &post, nil
}

// ListPosts returns a user's posts, newest first
func (r *GORMRepository) ListPosts(ctx context.Context, userID string, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	posts := []models.Post{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		slog.Error("Failed to list posts", "error", err, "user_id", userID)
		return nil, storageError("failed to list posts", err)
	}

	slog.Info("Post history retrieved", "user_id", userID, "count", len(posts))
	return posts, nil
}

// storageError wraps a driver error, naming PostgreSQL constraint violations
func storageError(message string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := pgConstraintCodes[pgErr.Code]; ok {
			message = fmt.Sprintf("%s: %s", message, reason)
		}
	}
	return models.NewStorageError(message, err)
}
