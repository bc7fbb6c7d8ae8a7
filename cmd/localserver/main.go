// Command localserver runs both Slack webhooks and the conversation worker in
// one process for development. Secrets are read from the environment
// (/filmate/secrets -> FILMATE_SECRETS) and sessions are kept in Badger.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"filmate/handler"
	"filmate/internal/bootstrap"
	"filmate/internal/config"
	"filmate/internal/domain"
	"filmate/internal/integrations/dispatch"
	"filmate/internal/integrations/paramstore"
	"filmate/internal/logging"
	"filmate/internal/repository"
	"filmate/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("local server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.LogLevel)

	store, err := repository.OpenBadger(cfg.LocalDataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	secrets, err := bootstrap.NewSecrets(cfg, paramstore.EnvGetter{})
	if err != nil {
		return err
	}
	// Only the bedrock provider needs AWS credentials.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	httpClient := bootstrap.HTTPClient(cfg)
	llm, err := bootstrap.NewGenerator(cfg, secrets, awsCfg, bootstrap.LLMHTTPClient(cfg))
	if err != nil {
		return err
	}

	conversation, err := bootstrap.NewConversationService(cfg, secrets, llm, store, httpClient)
	if err != nil {
		return err
	}
	worker, err := handler.NewWorkerHandler(conversation)
	if err != nil {
		return err
	}
	dispatcher, err := dispatch.NewInProcess(func(ctx context.Context, req domain.ChatRequest) error {
		_, err := worker.Handle(ctx, req)
		return err
	})
	if err != nil {
		return err
	}
	defer dispatcher.Wait()

	entry, err := usecase.NewEntryService(store, llm, dispatcher)
	if err != nil {
		return err
	}
	verifier, err := bootstrap.NewVerifier(secrets)
	if err != nil {
		return err
	}
	commands, err := handler.NewCommandHandler(entry, verifier)
	if err != nil {
		return err
	}
	events, err := handler.NewEventsHandler(entry, verifier)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Route("/slack", func(r chi.Router) {
		r.Post("/command", handler.HTTP(commands.Handle))
		r.Post("/events", handler.HTTP(events.Handle))
	})

	srv := &http.Server{
		Addr:              cfg.LocalAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", slog.String("addr", cfg.LocalAddr), slog.String("llm_provider", cfg.LLMProvider))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
