package query

import (
	"context"
	"fmt"

	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/level"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG QUERIES
// Level and badge definitions for the administrative surface.
// ══════════════════════════════════════════════════════════════════════════════

// LevelLister lists level definitions.
type LevelLister interface {
	List(ctx context.Context) ([]level.Level, error)
}

// BadgeLister lists badge definitions.
type BadgeLister interface {
	List(ctx context.Context) ([]badge.Badge, error)
}

// CatalogHandler lists level and badge definitions.
type CatalogHandler struct {
	levels LevelLister
	badges BadgeLister
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(levels LevelLister, badges BadgeLister) *CatalogHandler {
	return &CatalogHandler{levels: levels, badges: badges}
}

// Levels returns every level ordered by threshold.
func (h *CatalogHandler) Levels(ctx context.Context) ([]LevelDTO, error) {
	levels, err := h.levels.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_levels: %w", err)
	}
	out := make([]LevelDTO, 0, len(levels))
	for _, l := range levels {
		out = append(out, NewLevelDTO(l))
	}
	return out, nil
}

// Badges returns every badge definition.
func (h *CatalogHandler) Badges(ctx context.Context) ([]BadgeDTO, error) {
	badges, err := h.badges.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_badges: %w", err)
	}
	out := make([]BadgeDTO, 0, len(badges))
	for _, b := range badges {
		out = append(out, NewBadgeDTO(b))
	}
	return out, nil
}
