package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"filmate/internal/domain"
	"filmate/internal/logging"
	"filmate/internal/usecase"
)

type conversationUseCase interface {
	Converse(ctx context.Context, req domain.ChatRequest) (usecase.ConverseOutput, error)
}

// WorkerResponse is returned to the asynchronous invoker. Failures are
// reported to the user through Slack, never through this value.
type WorkerResponse struct {
	StatusCode int `json:"statusCode"`
}

// WorkerHandler advances one conversation turn per invocation.
type WorkerHandler struct {
	uc conversationUseCase
}

func NewWorkerHandler(uc conversationUseCase) (*WorkerHandler, error) {
	if uc == nil {
		return nil, errors.New("handler: conversation use case must not be nil")
	}
	return &WorkerHandler{uc: uc}, nil
}

func (h *WorkerHandler) Handle(ctx context.Context, req domain.ChatRequest) (WorkerResponse, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = logging.NewCorrelationID()
	}
	ctx = logging.WithCorrelationID(ctx, req.CorrelationID)
	log := logging.FromContext(ctx)

	out, err := h.uc.Converse(ctx, req)
	if err != nil {
		log.Error("conversation turn failed",
			slog.String("code", string(usecase.CodeOf(err))),
			slog.String("session", req.SessionID()),
			slog.Any("err", err),
		)
		return WorkerResponse{StatusCode: http.StatusOK}, nil
	}
	log.Info("conversation turn done",
		slog.String("session", req.SessionID()),
		slog.String("phase", string(out.Phase)),
		slog.Int("recommended", out.Recommended),
	)
	return WorkerResponse{StatusCode: http.StatusOK}, nil
}
