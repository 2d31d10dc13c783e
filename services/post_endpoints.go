package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/krshsl/influenceos/backend/models"
)

const maxRequestBody = 64 << 10

type PostEndpoints struct {
	posts    *PostService
	validate *validator.Validate
}

type PostResponse struct {
	Post *models.Post `json:"post"`
}

type ListPostsResponse struct {
	Posts []models.Post `json:"posts"`
	Count int           `json:"count"`
}

func NewPostEndpoints(posts *PostService) *PostEndpoints {
	return &PostEndpoints{
		posts:    posts,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the post routes; limiter throttles generation only
func (e *PostEndpoints) RegisterRoutes(r chi.Router, limiter *RateLimiter) {
	r.Route("/posts", func(r chi.Router) {
		r.With(limiter.Middleware).Post("/generate", e.GenerateHandler)
		r.Get("/", e.ListHandler)
		r.Get("/{id}", e.GetHandler)
		r.Post("/{id}/publish", e.PublishHandler)
	})
}

func (e *PostEndpoints) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, errAuthRequired)
		return
	}

	var req GenerateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, models.NewValidationError("invalid request body", err))
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Topic = strings.TrimSpace(req.Topic)
	if err := e.validate.Struct(req); err != nil {
		writeError(w, r, models.NewValidationError(validationMessage(err), err))
		return
	}

	post, err := e.posts.Draft(r.Context(), session, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, PostResponse{Post: post})
}

func (e *PostEndpoints) PublishHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, errAuthRequired)
		return
	}

	postID, err := postIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	post, err := e.posts.Publish(r.Context(), session, postID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PostResponse{Post: post})
}

func (e *PostEndpoints) ListHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, errAuthRequired)
		return
	}

	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	posts, err := e.posts.History(r.Context(), session, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListPostsResponse{Posts: posts, Count: len(posts)})
}

func (e *PostEndpoints) GetHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, errAuthRequired)
		return
	}

	postID, err := postIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	post, err := e.posts.Get(r.Context(), session, postID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PostResponse{Post: post})
}

// postIDParam reads the {id} URL parameter; anything that is not a UUID cannot name a post
func postIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", models.NewNotFoundError("post not found")
	}
	return id, nil
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(fmt.Sprintf("%s must be an integer", name), err)
	}
	return n, nil
}

// validationMessage turns validator errors into one client-facing sentence
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required_without":
			parts = append(parts, fmt.Sprintf("%s is required when %s is empty", field, strings.ToLower(fe.Param())))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", field))
		}
	}
	slog.Debug("Request validation failed", "errors", parts)
	return strings.Join(parts, "; ")
}
