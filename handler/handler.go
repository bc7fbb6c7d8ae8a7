package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"

	"filmate/internal/domain"
	"filmate/internal/logging"
	"filmate/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// RequestVerifier authenticates an inbound webhook. Errors wrapping
// domain.ErrInvalidSignature mean the request is forged or stale.
type RequestVerifier interface {
	Verify(ctx context.Context, header http.Header, body []byte) error
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// rawBody returns the request body as Slack signed it.
func rawBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(event.Body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return b, nil
}

func httpHeader(headers map[string]string) http.Header {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}

// correlationID reuses the caller's X-Correlation-Id or mints a new one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return logging.NewCorrelationID()
}

// verify maps verifier failures to responses: 401 for bad signatures, 500
// when the signing secret is unavailable.
func verify(ctx context.Context, v RequestVerifier, headers map[string]string, body []byte, corrID string) (events.APIGatewayProxyResponse, bool) {
	err := v.Verify(ctx, httpHeader(headers), body)
	if err == nil {
		return events.APIGatewayProxyResponse{}, true
	}
	log := logging.FromContext(ctx)
	if errors.Is(err, domain.ErrInvalidSignature) {
		log.Warn("rejected request signature", slog.Any("err", err))
		return errorJSON(http.StatusUnauthorized, usecase.ErrorInvalidSignature, "invalid signature", corrID), false
	}
	log.Error("request verification failed", slog.Any("err", err))
	return errorJSON(http.StatusInternalServerError, usecase.ErrorInternal, "internal error", corrID), false
}

func jsonResponse(status int, v any, corrID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorJSON(http.StatusInternalServerError, usecase.ErrorInternal, "internal error", corrID)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json; charset=utf-8",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}

func textResponse(status int, text, corrID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "text/plain; charset=utf-8",
			correlationHeader: corrID,
		},
		Body: text,
	}
}

func errorJSON(status int, code usecase.ErrorCode, message, corrID string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: string(code), Message: message})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json; charset=utf-8",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
