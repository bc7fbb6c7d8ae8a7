package usecase

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"filmate/internal/domain"
	"filmate/internal/logging"
)

// TitleSynthesizer asks the model for titles matching the accumulated
// preferences and resolves each against the catalog. Unparseable model output
// is not retried.
type TitleSynthesizer struct {
	llm     Generator
	catalog Catalog
}

func NewTitleSynthesizer(llm Generator, catalog Catalog) (*TitleSynthesizer, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	return &TitleSynthesizer{llm: llm, catalog: catalog}, nil
}

// Synthesize returns the resolved candidates in the model's order, each
// carrying the model's reason. Any failure yields fewer or no movies.
func (s *TitleSynthesizer) Synthesize(ctx context.Context, preferences []string) []domain.Movie {
	if len(preferences) == 0 {
		return nil
	}
	log := logging.FromContext(ctx)

	raw, err := s.llm.Generate(ctx, buildTitlesPrompt(preferences), titlesMaxTokens)
	if err != nil {
		log.Warn("title generation failed", slog.Any("err", err))
		return nil
	}
	candidates, err := parseCandidates(raw)
	if err != nil {
		log.Warn("title list is not a JSON array", slog.Any("err", err), slog.String("raw", raw))
		return nil
	}
	if len(candidates) > maxRecommendations {
		candidates = candidates[:maxRecommendations]
	}

	resolved := make([]*domain.Movie, len(candidates))
	var g errgroup.Group
	for i, c := range candidates {
		g.Go(func() error {
			movies, err := s.catalog.SearchTitle(ctx, c.Title, 1)
			if err != nil {
				log.Warn("title lookup failed", slog.String("title", c.Title), slog.Any("err", err))
				return nil
			}
			if len(movies) == 0 {
				log.Info("title not found in catalog", slog.String("title", c.Title))
				return nil
			}
			m := movies[0]
			m.Reason = c.Reason
			resolved[i] = &m
			return nil
		})
	}
	_ = g.Wait()

	movies := make([]domain.Movie, 0, len(resolved))
	for _, m := range resolved {
		if m != nil {
			movies = append(movies, *m)
		}
	}
	return movies
}
