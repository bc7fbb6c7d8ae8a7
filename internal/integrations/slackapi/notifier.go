package slackapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// TokenSource yields a credential. *paramstore.Secret satisfies it.
type TokenSource interface {
	Value(ctx context.Context) (string, error)
}

// Notifier posts ephemeral messages through the Slack Web API.
type Notifier struct {
	token      TokenSource
	apiURL     string
	httpClient *http.Client

	mu  sync.Mutex
	api *slack.Client
}

type Option func(*Notifier)

// WithAPIURL points the notifier at another Slack API root. The value must
// end with a slash.
func WithAPIURL(apiURL string) Option {
	return func(n *Notifier) {
		if apiURL = strings.TrimSpace(apiURL); apiURL != "" {
			n.apiURL = strings.TrimRight(apiURL, "/") + "/"
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = httpClient
	}
}

// NewNotifier creates a Notifier. The bot token is resolved on first post.
func NewNotifier(token TokenSource, opts ...Option) (*Notifier, error) {
	if token == nil {
		return nil, errors.New("slackapi: token source must not be nil")
	}
	n := &Notifier{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *Notifier) resolveAPI(ctx context.Context) (*slack.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.api != nil {
		return n.api, nil
	}

	token, err := n.token.Value(ctx)
	if err != nil {
		return nil, fmt.Errorf("slackapi: resolve bot token: %w", err)
	}
	opts := []slack.Option{slack.OptionHTTPClient(n.httpClient)}
	if n.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(n.apiURL))
	}
	n.api = slack.New(token, opts...)
	return n.api, nil
}

// PostEphemeral shows a message only to user in channel. text doubles as the
// notification fallback when blocks are present.
func (n *Notifier) PostEphemeral(ctx context.Context, channel, user, text string, blocks []slack.Block) error {
	if channel == "" || user == "" {
		return errors.New("slackapi: channel and user are required")
	}
	api, err := n.resolveAPI(ctx)
	if err != nil {
		return err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	if _, err := api.PostEphemeralContext(ctx, channel, user, opts...); err != nil {
		return fmt.Errorf("slackapi: post ephemeral: %w", err)
	}
	return nil
}
