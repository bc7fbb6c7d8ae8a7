package usecase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"filmate/internal/domain"
	"filmate/internal/logging"
)

const (
	AckText            = "💬 了解！"
	icebreakerFallback = "やっほー！暇なら一緒に映画でも観ない？最近どんな気分か教えて！"
)

// mentionPattern matches user mentions such as "<@U0123ABC>" that prefix
// app_mention text.
var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// EntryService answers the synchronous webhooks. It makes sure a session
// exists, then hands the user's text to the conversation worker.
type EntryService struct {
	store      SessionStore
	llm        Generator
	dispatcher Dispatcher
	now        func() time.Time
}

type CommandInput struct {
	Text          string
	ChannelID     string
	UserID        string
	CorrelationID string
}

type CommandOutput struct {
	// Text is shown to the user as the command's ephemeral response.
	Text string
}

type RelayInput struct {
	Text          string
	ChannelID     string
	UserID        string
	CorrelationID string
}

func NewEntryService(store SessionStore, llm Generator, dispatcher Dispatcher) (*EntryService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm must not be nil")
	}
	if dispatcher == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	return &EntryService{store: store, llm: llm, dispatcher: dispatcher, now: time.Now}, nil
}

// Command handles the slash command. Bare invocations get an icebreaker
// question inline; anything else is dispatched and acknowledged.
func (e *EntryService) Command(ctx context.Context, in CommandInput) (CommandOutput, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.ChannelID) == "" {
		return CommandOutput{}, newError(ErrorInvalidInput, "missing_user_or_channel", nil)
	}
	e.ensureSession(ctx, domain.SessionID(in.UserID, in.ChannelID))

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return CommandOutput{Text: e.icebreaker(ctx)}, nil
	}

	err := e.dispatcher.Dispatch(ctx, domain.ChatRequest{
		Prompt:        text,
		ChannelID:     in.ChannelID,
		UserID:        in.UserID,
		CorrelationID: in.CorrelationID,
	})
	if err != nil {
		return CommandOutput{}, newError(ErrorUpstream, "dispatch_error", err)
	}
	return CommandOutput{Text: AckText}, nil
}

// Relay forwards a user message from the Events API to the worker. Messages
// that are empty once mentions are stripped are dropped.
func (e *EntryService) Relay(ctx context.Context, in RelayInput) error {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.ChannelID) == "" {
		return newError(ErrorInvalidInput, "missing_user_or_channel", nil)
	}
	text := strings.TrimSpace(mentionPattern.ReplaceAllString(in.Text, ""))
	if text == "" {
		logging.FromContext(ctx).Info("ignoring empty message", slog.String("channel", in.ChannelID))
		return nil
	}

	err := e.dispatcher.Dispatch(ctx, domain.ChatRequest{
		Prompt:        text,
		ChannelID:     in.ChannelID,
		UserID:        in.UserID,
		CorrelationID: in.CorrelationID,
	})
	if err != nil {
		return newError(ErrorUpstream, "dispatch_error", err)
	}
	return nil
}

// ensureSession creates the session when absent. Failures are logged only;
// the worker creates the session itself if it is still missing.
func (e *EntryService) ensureSession(ctx context.Context, id string) {
	log := logging.FromContext(ctx)
	_, found, err := e.store.Get(ctx, id)
	if err != nil {
		log.Warn("session lookup failed", slog.String("session", id), slog.Any("err", err))
		return
	}
	if found {
		return
	}
	if _, err := e.store.Create(ctx, domain.NewSession(id, e.now())); err != nil {
		log.Warn("session create failed", slog.String("session", id), slog.Any("err", err))
	}
}

func (e *EntryService) icebreaker(ctx context.Context) string {
	text, err := e.llm.Generate(ctx, buildIcebreakerPrompt(), icebreakerMaxTokens)
	if err != nil {
		logging.FromContext(ctx).Warn("icebreaker generation failed", slog.Any("err", err))
		return icebreakerFallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return icebreakerFallback
	}
	return text
}
