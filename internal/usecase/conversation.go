package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"filmate/internal/domain"
	"filmate/internal/logging"
)

const (
	recommendationText     = "おすすめ映画一覧"
	noRecommendationText   = "ごめん、ぴったりの映画が見つからなかった…また /filmate で話しかけてね！"
	recommendationQuerySep = " "
)

// ConversationService runs one turn of a user's conversation: it gathers
// preferences until there are enough, then posts recommendations and ends the
// session.
type ConversationService struct {
	store        SessionStore
	llm          Generator
	notifier     Notifier
	synthesizer  *TitleSynthesizer
	retriever    *Retriever
	summarizer   *Summarizer
	imageBaseURL string
	now          func() time.Time
}

type ConverseOutput struct {
	Phase domain.Phase
	// Recommended is the number of movies posted in the recommending phase.
	Recommended int
}

func NewConversationService(
	store SessionStore,
	llm Generator,
	notifier Notifier,
	synthesizer *TitleSynthesizer,
	retriever *Retriever,
	summarizer *Summarizer,
	imageBaseURL string,
) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("usecase: notifier must not be nil")
	}
	if synthesizer == nil || retriever == nil || summarizer == nil {
		return nil, errors.New("usecase: recommendation pipeline must not be nil")
	}
	imageBaseURL = strings.TrimSpace(imageBaseURL)
	if imageBaseURL == "" {
		return nil, errors.New("usecase: image base URL must not be empty")
	}
	return &ConversationService{
		store:        store,
		llm:          llm,
		notifier:     notifier,
		synthesizer:  synthesizer,
		retriever:    retriever,
		summarizer:   summarizer,
		imageBaseURL: imageBaseURL,
		now:          time.Now,
	}, nil
}

func (s *ConversationService) Converse(ctx context.Context, req domain.ChatRequest) (ConverseOutput, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ChannelID) == "" {
		return ConverseOutput{}, newError(ErrorInvalidInput, "missing_user_or_channel", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ConverseOutput{}, newError(ErrorInvalidInput, "empty_prompt", nil)
	}

	session, err := s.loadOrCreate(ctx, req.SessionID())
	if err != nil {
		return ConverseOutput{}, newError(ErrorInternal, "session_load_error", err)
	}

	if session.Phase() == domain.PhaseQuestioning {
		return s.question(ctx, req, session)
	}
	return s.recommend(ctx, req, session)
}

func (s *ConversationService) loadOrCreate(ctx context.Context, id string) (domain.Session, error) {
	session, found, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if found {
		return session, nil
	}

	fresh := domain.NewSession(id, s.now())
	created, err := s.store.Create(ctx, fresh)
	if err != nil {
		return domain.Session{}, err
	}
	if created {
		return fresh, nil
	}
	// Another writer created it first; continue from theirs.
	session, found, err = s.store.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if !found {
		return fresh, nil
	}
	return session, nil
}

// question replies in persona and records the user's text as a preference
// from the second turn on. A failed reply leaves the session untouched.
func (s *ConversationService) question(ctx context.Context, req domain.ChatRequest, session domain.Session) (ConverseOutput, error) {
	out := ConverseOutput{Phase: domain.PhaseQuestioning}

	reply, err := s.llm.Generate(ctx, buildReplyPrompt(session.Preferences, req.Prompt), replyMaxTokens)
	if err != nil {
		return out, newError(ErrorUpstream, "llm_reply_error", err)
	}
	if reply = strings.TrimSpace(reply); reply == "" {
		return out, newError(ErrorUpstream, "llm_empty_reply", nil)
	}
	if err := s.notifier.PostEphemeral(ctx, req.ChannelID, req.UserID, reply, nil); err != nil {
		return out, newError(ErrorUpstream, "notify_error", err)
	}

	if session.Round >= 1 {
		session.Preferences = append(session.Preferences, req.Prompt)
	}
	session.Round++
	session.UpdatedAt = s.now()
	if err := s.store.Put(ctx, session); err != nil {
		return out, newError(ErrorInternal, "session_write_error", err)
	}

	logging.FromContext(ctx).Info("questioning turn completed",
		slog.String("session", session.ID),
		slog.Int("round", session.Round),
		slog.Int("preferences", len(session.Preferences)),
	)
	return out, nil
}

// recommend posts up to three movies and ends the session whatever happens.
func (s *ConversationService) recommend(ctx context.Context, req domain.ChatRequest, session domain.Session) (ConverseOutput, error) {
	log := logging.FromContext(ctx)
	defer func() {
		if err := s.store.Delete(context.WithoutCancel(ctx), session.ID); err != nil {
			log.Error("failed to delete session", slog.String("session", session.ID), slog.Any("err", err))
		}
	}()

	movies := s.synthesizer.Synthesize(ctx, session.Preferences)
	if len(movies) == 0 {
		movies = s.retriever.Retrieve(ctx, strings.Join(session.Preferences, recommendationQuerySep))
	}
	recs := s.describe(ctx, movies)

	text := recommendationText
	if len(recs) == 0 {
		text = noRecommendationText
	}
	blocks := AssembleBlocks(s.imageBaseURL, recs)

	out := ConverseOutput{Phase: domain.PhaseRecommending, Recommended: len(recs)}
	if err := s.notifier.PostEphemeral(ctx, req.ChannelID, req.UserID, text, blocks); err != nil {
		return out, newError(ErrorUpstream, "notify_error", err)
	}
	log.Info("recommendations posted", slog.String("session", session.ID), slog.Int("count", len(recs)))
	return out, nil
}

// describe pairs each movie with its model reason, summarizing the ones that
// have none.
func (s *ConversationService) describe(ctx context.Context, movies []domain.Movie) []Recommendation {
	var missing []domain.Movie
	for _, m := range movies {
		if strings.TrimSpace(m.Reason) == "" {
			missing = append(missing, m)
		}
	}
	summaries := s.summarizer.Summarize(ctx, missing)

	recs := make([]Recommendation, 0, len(movies))
	next := 0
	for _, m := range movies {
		text := strings.TrimSpace(m.Reason)
		if text == "" {
			text = summaries[next]
			next++
		}
		recs = append(recs, Recommendation{Movie: m, Text: text})
	}
	return recs
}
