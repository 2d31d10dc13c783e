package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/krshsl/influenceos/backend/models"
	"github.com/krshsl/influenceos/backend/repository"
)

// Generator produces post text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider is the social network the user signed in with
type Provider interface {
	FetchProfile(ctx context.Context, token *models.Token) (*models.Profile, error)
	Publish(ctx context.Context, token *models.Token, text string) (string, error)
}

// PostStore persists post records
type PostStore interface {
	CreatePost(ctx context.Context, post *models.Post) error
	MarkPosted(ctx context.Context, postID, userID, providerPostID string, postedAt time.Time) error
	GetPost(ctx context.Context, postID, userID string) (*models.Post, error)
	ListPosts(ctx context.Context, userID string, limit, offset int) ([]models.Post, error)
}

// PostService drives a post from generation through publishing
type PostService struct {
	generator Generator
	provider  Provider
	store     PostStore
	metrics   *Metrics
	now       func() time.Time
}

func NewPostService(generator Generator, provider Provider, store PostStore, metrics *Metrics) *PostService {
	return &PostService{
		generator: generator,
		provider:  provider,
		store:     store,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Draft fetches the profile, generates text from the request and stores it as a draft
func (s *PostService) Draft(ctx context.Context, session *models.Session, req GenerateRequest) (*models.Post, error) {
	profile, err := s.provider.FetchProfile(ctx, &session.Token)
	if err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(req, profile)
	if err != nil {
		return nil, err
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID: session.UserID,
		Text:   text,
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	s.metrics.RecordPost(string(models.PostStatusDraft))
	slog.Info("Draft created", "post_id", post.ID, "user_id", post.UserID)
	return post, nil
}

// Publish sends a stored draft to the provider and marks it posted.
// The provider call and the status update are separate steps; a failure
// between them leaves the row in draft.
func (s *PostService) Publish(ctx context.Context, session *models.Session, postID string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID, session.UserID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, models.NewNotFoundError("post not found")
	}
	if post.IsPosted() {
		return nil, models.NewConflictError("post is already published")
	}

	providerPostID, err := s.provider.Publish(ctx, &session.Token, post.Text)
	if err != nil {
		return nil, err
	}

	postedAt := s.now().UTC()
	if err := s.store.MarkPosted(ctx, post.ID, session.UserID, providerPostID, postedAt); err != nil {
		if models.IsKind(err, models.KindConflict) {
			slog.Warn("Draft was published twice",
				"post_id", post.ID,
				"user_id", session.UserID,
				"provider_post_id", providerPostID,
			)
			return nil, err
		}
		slog.Error("Published post could not be recorded",
			"error", err,
			"post_id", post.ID,
			"user_id", session.UserID,
			"provider_post_id", providerPostID,
		)
		return nil, err
	}

	post.Status = models.PostStatusPosted
	post.ProviderPostID = &providerPostID
	post.PostedAt = &postedAt

	s.metrics.RecordPost(string(models.PostStatusPosted))
	slog.Info("Post published", "post_id", post.ID, "user_id", session.UserID, "provider_post_id", providerPostID)
	return post, nil
}

// History lists the user's posts, newest first
func (s *PostService) History(ctx context.Context, session *models.Session, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	if limit > repository.MaxListLimit {
		return nil, models.NewValidationError("limit is too large", nil)
	}
	if offset < 0 {
		return nil, models.NewValidationError("offset must not be negative", nil)
	}
	return s.store.ListPosts(ctx, session.UserID, limit, offset)
}

func (s *PostService) Get(ctx context.Context, session *models.Session, postID string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID, session.UserID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, models.NewNotFoundError("post not found")
	}
	return post, nil
}
