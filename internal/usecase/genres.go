package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// GenreCache holds the catalog's genre taxonomy for the lifetime of the
// process. Concurrent first calls share one catalog request; a failed load is
// retried on the next call.
type GenreCache struct {
	catalog Catalog
	group   singleflight.Group

	mu     sync.RWMutex
	genres map[string]int
}

func NewGenreCache(catalog Catalog) (*GenreCache, error) {
	if catalog == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	return &GenreCache{catalog: catalog}, nil
}

// Genres returns the lower-cased genre name to id mapping.
func (g *GenreCache) Genres(ctx context.Context) (map[string]int, error) {
	if cached := g.cached(); cached != nil {
		return cached, nil
	}
	v, err, _ := g.group.Do("genres", func() (any, error) {
		if cached := g.cached(); cached != nil {
			return cached, nil
		}
		loaded, err := g.catalog.ListGenres(ctx)
		if err != nil {
			return nil, err
		}
		genres := make(map[string]int, len(loaded))
		for name, id := range loaded {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				genres[name] = id
			}
		}
		g.mu.Lock()
		g.genres = genres
		g.mu.Unlock()
		return genres, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]int), nil
}

// Match returns the ids of every genre whose name occurs in query, ignoring
// case, in ascending order.
func (g *GenreCache) Match(ctx context.Context, query string) ([]int, error) {
	genres, err := g.Genres(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var ids []int
	for name, id := range genres {
		if strings.Contains(q, name) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (g *GenreCache) cached() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.genres
}
