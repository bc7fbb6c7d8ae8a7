package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"filmate/internal/domain"
	"filmate/internal/logging"
)

const (
	summaryMaxRunes = 80
	summaryAttempts = 3
	ellipsis        = "…"
)

// Summarizer writes one short synopsis per movie. It never fails: after the
// last attempt it falls back to truncated overviews.
type Summarizer struct {
	llm      Generator
	interval time.Duration
}

// NewSummarizer creates a Summarizer whose retries wait interval, then twice
// that.
func NewSummarizer(llm Generator, interval time.Duration) (*Summarizer, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm must not be nil")
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Summarizer{llm: llm, interval: interval}, nil
}

// Summarize returns exactly len(movies) summaries in input order.
func (s *Summarizer) Summarize(ctx context.Context, movies []domain.Movie) []string {
	if len(movies) == 0 {
		return []string{}
	}
	log := logging.FromContext(ctx)
	prompt := buildSummaryPrompt(movies)

	attempt := func() ([]string, error) {
		raw, err := s.llm.Generate(ctx, prompt, summaryMaxTokens)
		if err != nil {
			if status, ok := upstreamStatusCode(err); ok && status >= 400 && status < 500 && status != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		summaries := parseSummaries(raw)
		if len(summaries) != len(movies) {
			return nil, fmt.Errorf("got %d summaries for %d movies", len(summaries), len(movies))
		}
		return summaries, nil
	}

	summaries, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     s.interval,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         4 * s.interval,
		}),
		backoff.WithMaxTries(summaryAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("summary attempt failed", slog.Any("err", err), slog.Duration("retry_in", next))
		}),
	)
	if err == nil {
		return summaries
	}

	log.Warn("summaries fall back to overviews", slog.Any("err", err))
	out := make([]string, len(movies))
	for i, m := range movies {
		out[i] = truncateRunes(m.Overview, summaryMaxRunes)
	}
	return out
}

// truncateRunes keeps the first n characters of s, marking the cut with an
// ellipsis.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + ellipsis
}
