package usecase

import (
	"context"

	"github.com/slack-go/slack"

	"filmate/internal/domain"
)

// SessionStore persists conversation sessions. Get reports expired sessions
// as absent. Create only writes when no live session exists and reports
// whether it did.
type SessionStore interface {
	Get(ctx context.Context, id string) (domain.Session, bool, error)
	Create(ctx context.Context, s domain.Session) (bool, error)
	Put(ctx context.Context, s domain.Session) error
	Delete(ctx context.Context, id string) error
}

// Generator produces text from a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Catalog is the movie database. Results are localized and ranked by the
// catalog; limit caps the number of records returned.
type Catalog interface {
	SearchKeywords(ctx context.Context, query string) ([]int, error)
	DiscoverByKeywords(ctx context.Context, keywordIDs []int, limit int) ([]domain.Movie, error)
	DiscoverByGenres(ctx context.Context, genreIDs []int, limit int) ([]domain.Movie, error)
	SearchTitle(ctx context.Context, query string, limit int) ([]domain.Movie, error)
	ListGenres(ctx context.Context) (map[string]int, error)
}

// Notifier delivers a message visible only to one user.
type Notifier interface {
	PostEphemeral(ctx context.Context, channel, user, text string, blocks []slack.Block) error
}

// Dispatcher hands a chat request to the conversation worker without waiting
// for it to run.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.ChatRequest) error
}
