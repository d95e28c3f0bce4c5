package services

import (
	"context"
	"fmt"
	"time"

	"github.com/hiwllc/tracker/internal/cache"
	"github.com/hiwllc/tracker/internal/core"
)

// categoryTTL bounds how stale a cached category list can get. The
// SYSTEM set is migration-seeded and user sets change rarely, so no
// invalidation beyond expiry is needed.
const categoryTTL = 5 * time.Minute

// CategoryOption is the reduced shape the presentation layer needs to
// fill a category picker.
type CategoryOption struct {
	ID   string
	Name string
	Type core.TransactionType
}

// CategoryService lists the categories visible to a user with a short
// TTL cache in front of the store.
type CategoryService struct {
	store CategoryStore
	cache cache.Cache[[]CategoryOption]
}

func NewCategoryService(store CategoryStore) *CategoryService {
	return &CategoryService{
		store: store,
		cache: cache.NewTTL[[]CategoryOption](categoryTTL),
	}
}

// All returns SYSTEM categories plus the user's own ones.
func (s *CategoryService) All(ctx context.Context, user string) ([]CategoryOption, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(user); ok {
		return cached, nil
	}

	categories, err := s.store.ListVisible(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	options := make([]CategoryOption, len(categories))
	for i, c := range categories {
		options[i] = CategoryOption{ID: c.ID, Name: c.Name, Type: c.Type}
	}
	s.cache.Set(user, options)
	return options, nil
}
