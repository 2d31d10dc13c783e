package models

import (
	"time"
)

// PostStatus is the publishing state of a generated post
type PostStatus string

const (
	PostStatusDraft  PostStatus = "draft"
	PostStatusPosted PostStatus = "posted"
)

// Post represents a single generated post and its publishing outcome
type Post struct {
	ID             string     `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         string     `json:"user_id" gorm:"type:varchar(255);not null;index:idx_posts_user_created,priority:1"`
	Text           string     `json:"text" gorm:"type:text;not null"`
	Status         PostStatus `json:"status" gorm:"type:varchar(16);not null;check:status IN ('draft', 'posted')"`
	ProviderPostID *string    `json:"provider_post_id" gorm:"type:varchar(255)"`
	CreatedAt      time.Time  `json:"created_at" gorm:"not null;index:idx_posts_user_created,priority:2,sort:desc"`
	PostedAt       *time.Time `json:"posted_at"`
}

// TableName returns the table name for the Post model
func (Post) TableName() string {
	return "posts"
}

// IsPosted reports whether the provider has accepted the post
func (p *Post) IsPosted() bool {
	return p.Status == PostStatusPosted
}
