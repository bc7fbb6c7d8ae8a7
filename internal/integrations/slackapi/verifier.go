package slackapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"

	"filmate/internal/domain"
)

// Verifier checks Slack's v0 request signature. Requests older than five
// minutes are rejected.
type Verifier struct {
	secret TokenSource
}

// NewVerifier creates a Verifier backed by the app's signing secret.
func NewVerifier(secret TokenSource) (*Verifier, error) {
	if secret == nil {
		return nil, errors.New("slackapi: signing secret source must not be nil")
	}
	return &Verifier{secret: secret}, nil
}

// Verify returns an error wrapping domain.ErrInvalidSignature when the
// headers do not authenticate body. Other errors mean the secret could not be
// loaded.
func (v *Verifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	secret, err := v.secret.Value(ctx)
	if err != nil {
		return fmt.Errorf("slackapi: resolve signing secret: %w", err)
	}

	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("slackapi: hash body: %w", err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return nil
}
