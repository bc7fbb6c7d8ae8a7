package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/slack-go/slack/slackevents"

	"filmate/internal/logging"
	"filmate/internal/usecase"
)

const retryHeader = "X-Slack-Retry-Num"

type relayUseCase interface {
	Relay(ctx context.Context, in usecase.RelayInput) error
}

// EventsHandler serves the Slack Events API endpoint. It answers the
// url_verification handshake and relays direct messages and mentions to
// the conversation worker.
type EventsHandler struct {
	uc       relayUseCase
	verifier RequestVerifier
}

func NewEventsHandler(uc relayUseCase, verifier RequestVerifier) (*EventsHandler, error) {
	if uc == nil {
		return nil, errors.New("handler: relay use case must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("handler: verifier must not be nil")
	}
	return &EventsHandler{uc: uc, verifier: verifier}, nil
}

func (h *EventsHandler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)
	ctx = logging.WithCorrelationID(ctx, corrID)
	log := logging.FromContext(ctx)

	body, err := rawBody(event)
	if err != nil {
		return errorJSON(http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid body", corrID), nil
	}
	if resp, ok := verify(ctx, h.verifier, event.Headers, body, corrID); !ok {
		return resp, nil
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		log.Warn("unparseable event payload", slog.Any("err", err))
		return errorJSON(http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid event payload", corrID), nil
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.EventsAPIURLVerificationEvent
		if err := json.Unmarshal(body, &challenge); err != nil {
			return errorJSON(http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid challenge", corrID), nil
		}
		return textResponse(http.StatusOK, challenge.Challenge, corrID), nil
	case slackevents.CallbackEvent:
		if n := headerValue(event.Headers, retryHeader); n != "" {
			log.Info("ignoring redelivered event", slog.String("retry_num", n))
			return textResponse(http.StatusOK, "", corrID), nil
		}
		if in, ok := relayInput(ev.InnerEvent, corrID); ok {
			if err := h.uc.Relay(ctx, in); err != nil {
				log.Error("relay failed",
					slog.String("code", string(usecase.CodeOf(err))),
					slog.String("user", in.UserID),
					slog.Any("err", err),
				)
			}
		}
	default:
		log.Debug("ignoring event", slog.String("type", ev.Type))
	}
	return textResponse(http.StatusOK, "", corrID), nil
}

// relayInput extracts user text from direct messages and app mentions.
// Bot posts and message edits are ignored so the bot never answers itself.
func relayInput(inner slackevents.EventsAPIInnerEvent, corrID string) (usecase.RelayInput, bool) {
	switch e := inner.Data.(type) {
	case *slackevents.MessageEvent:
		if e.BotID != "" || e.SubType != "" {
			return usecase.RelayInput{}, false
		}
		return usecase.RelayInput{Text: e.Text, ChannelID: e.Channel, UserID: e.User, CorrelationID: corrID}, true
	case *slackevents.AppMentionEvent:
		if e.BotID != "" {
			return usecase.RelayInput{}, false
		}
		return usecase.RelayInput{Text: e.Text, ChannelID: e.Channel, UserID: e.User, CorrelationID: corrID}, true
	}
	return usecase.RelayInput{}, false
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
