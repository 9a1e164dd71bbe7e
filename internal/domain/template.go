package domain

import (
	"context"
	"time"
)

// WebsiteTemplate is a design the buyer picks in the website flow
type WebsiteTemplate struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	PreviewURL string    `json:"preview_url"`
	IsActive   bool      `json:"is_active"`
	SortOrder  int       `json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type TemplateRepository interface {
	Create(ctx context.Context, tmpl *WebsiteTemplate) error
	GetByID(ctx context.Context, id string) (*WebsiteTemplate, error)
	List(ctx context.Context, onlyActive bool) ([]*WebsiteTemplate, error)
	Update(ctx context.Context, tmpl *WebsiteTemplate) error
	Delete(ctx context.Context, id string) error
}
