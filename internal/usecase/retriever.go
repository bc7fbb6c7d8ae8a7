package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"filmate/internal/domain"
	"filmate/internal/logging"
)

const (
	maxRecommendations = 3
	maxTitleQueryRunes = 100
)

type strategy struct {
	name string
	run  func(ctx context.Context, query string) ([]domain.Movie, error)
}

// Retriever turns a free-text preference into movies by trying keyword,
// genre and title lookups in that order. The first strategy with results
// wins; a failing strategy counts as empty.
type Retriever struct {
	catalog    Catalog
	genres     *GenreCache
	strategies []strategy
}

func NewRetriever(catalog Catalog, genres *GenreCache) (*Retriever, error) {
	if catalog == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	if genres == nil {
		return nil, errors.New("usecase: genre cache must not be nil")
	}
	r := &Retriever{catalog: catalog, genres: genres}
	r.strategies = []strategy{
		{name: "keyword", run: r.byKeyword},
		{name: "genre", run: r.byGenre},
		{name: "title", run: r.byTitle},
	}
	return r, nil
}

// Retrieve returns at most three movies, or none.
func (r *Retriever) Retrieve(ctx context.Context, query string) []domain.Movie {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	log := logging.FromContext(ctx)
	for _, s := range r.strategies {
		movies, err := s.run(ctx, query)
		if err != nil {
			log.Warn("retrieval strategy failed", slog.String("strategy", s.name), slog.Any("err", err))
			continue
		}
		if len(movies) > 0 {
			log.Info("retrieval strategy matched", slog.String("strategy", s.name), slog.Int("count", min(len(movies), maxRecommendations)))
			return capMovies(movies)
		}
	}
	return nil
}

func (r *Retriever) byKeyword(ctx context.Context, query string) ([]domain.Movie, error) {
	ids, err := r.catalog.SearchKeywords(ctx, query)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return r.catalog.DiscoverByKeywords(ctx, ids, maxRecommendations)
}

func (r *Retriever) byGenre(ctx context.Context, query string) ([]domain.Movie, error) {
	ids, err := r.genres.Match(ctx, query)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return r.catalog.DiscoverByGenres(ctx, ids, maxRecommendations)
}

func (r *Retriever) byTitle(ctx context.Context, query string) ([]domain.Movie, error) {
	q := normalizeTitleQuery(query)
	if q == "" {
		return nil, nil
	}
	return r.catalog.SearchTitle(ctx, q, maxRecommendations)
}

// normalizeTitleQuery collapses whitespace runs to single spaces and keeps the
// first 100 characters.
func normalizeTitleQuery(query string) string {
	q := strings.Join(strings.Fields(query), " ")
	runes := []rune(q)
	if len(runes) > maxTitleQueryRunes {
		q = strings.TrimSpace(string(runes[:maxTitleQueryRunes]))
	}
	return q
}

func capMovies(movies []domain.Movie) []domain.Movie {
	if len(movies) > maxRecommendations {
		return movies[:maxRecommendations]
	}
	return movies
}
