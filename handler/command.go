package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/slack-go/slack"

	"filmate/internal/logging"
	"filmate/internal/usecase"
)

const commandFailureText = "ごめん、うまく受け付けられなかった…少し待ってからもう一度試してね！"

type commandUseCase interface {
	Command(ctx context.Context, in usecase.CommandInput) (usecase.CommandOutput, error)
}

// slashResponse is the immediate reply to a slash command.
type slashResponse struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// CommandHandler serves the /filmate slash command behind API Gateway.
type CommandHandler struct {
	uc       commandUseCase
	verifier RequestVerifier
}

func NewCommandHandler(uc commandUseCase, verifier RequestVerifier) (*CommandHandler, error) {
	if uc == nil {
		return nil, errors.New("handler: command use case must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("handler: verifier must not be nil")
	}
	return &CommandHandler{uc: uc, verifier: verifier}, nil
}

func (h *CommandHandler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
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

	cmd, err := parseSlashCommand(ctx, body)
	if err != nil || cmd.UserID == "" || cmd.ChannelID == "" {
		log.Warn("unparseable slash command", slog.Any("err", err))
		return errorJSON(http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid slash command", corrID), nil
	}

	out, err := h.uc.Command(ctx, usecase.CommandInput{
		Text:          cmd.Text,
		ChannelID:     cmd.ChannelID,
		UserID:        cmd.UserID,
		CorrelationID: corrID,
	})
	if err != nil {
		log.Error("slash command failed",
			slog.String("code", string(usecase.CodeOf(err))),
			slog.String("user", cmd.UserID),
			slog.Any("err", err),
		)
		return jsonResponse(http.StatusOK, slashResponse{ResponseType: slack.ResponseTypeEphemeral, Text: commandFailureText}, corrID), nil
	}
	return jsonResponse(http.StatusOK, slashResponse{ResponseType: slack.ResponseTypeEphemeral, Text: out.Text}, corrID), nil
}

func parseSlashCommand(ctx context.Context, body []byte) (slack.SlashCommand, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return slack.SlashCommand{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return slack.SlashCommandParse(req)
}
