package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"

	"filmate/handler"
	"filmate/internal/bootstrap"
	"filmate/internal/integrations/dispatch"
	"filmate/internal/usecase"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.NewLambda(ctx)
	if err != nil {
		slog.Error("failed to bootstrap", "err", err)
		os.Exit(1)
	}
	if err := app.Config.RequireDispatchTarget(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	dispatcher, err := dispatch.NewLambdaDispatcher(awslambda.NewFromConfig(app.AWS), app.Config.ChatHandlerName)
	if err != nil {
		slog.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}
	entry, err := usecase.NewEntryService(app.Store, app.Generator, dispatcher)
	if err != nil {
		slog.Error("failed to create entry service", "err", err)
		os.Exit(1)
	}
	verifier, err := bootstrap.NewVerifier(app.Secrets)
	if err != nil {
		slog.Error("failed to create verifier", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewCommandHandler(entry, verifier)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
