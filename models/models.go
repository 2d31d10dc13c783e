package models

// This file serves as the central export point for all models
// Import this package to access all domain types

// Models are exported from their respective files:
// - Post, PostStatus from post.go
// - Profile, Token, Session from profile.go
// - AppError, ErrorKind and the error constructors from errors.go

// Database schema overview:
// 1. posts - generated LinkedIn posts, one row per draft, moved to 'posted'
//    once the provider accepts it. Owned by the history store.
//
// Profiles, tokens and sessions are never persisted.
