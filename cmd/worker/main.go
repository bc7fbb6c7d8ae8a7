package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"filmate/handler"
	"filmate/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.NewLambda(ctx)
	if err != nil {
		slog.Error("failed to bootstrap", "err", err)
		os.Exit(1)
	}

	conversation, err := bootstrap.NewConversationService(app.Config, app.Secrets, app.Generator, app.Store, app.HTTPClient)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewWorkerHandler(conversation)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
