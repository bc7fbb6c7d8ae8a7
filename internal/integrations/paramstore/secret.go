package paramstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// Secret resolves one parameter on first use and caches it for the lifetime
// of the process. A failed lookup is retried on the next call.
//
// When field is set the parameter value is decoded as a JSON object and the
// named string field is returned, so several credentials can share one
// SecureString parameter.
type Secret struct {
	getter Getter
	name   string
	field  string

	mu     sync.Mutex
	value  string
	loaded bool
}

// NewSecret returns a lazily-resolved secret.
func NewSecret(getter Getter, name, field string) (*Secret, error) {
	if getter == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: secret name must not be empty")
	}
	return &Secret{getter: getter, name: name, field: strings.TrimSpace(field)}, nil
}

// Value returns the cached secret, fetching it on first use.
func (s *Secret) Value(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.value, nil
	}

	raw, err := s.getter.GetParameter(ctx, s.name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch secret %q: %w", s.name, err)
	}
	v, err := extractField(raw, s.field)
	if err != nil {
		return "", fmt.Errorf("paramstore: secret %q: %w", s.name, err)
	}
	if v == "" {
		return "", fmt.Errorf("paramstore: secret %q is empty", s.name)
	}
	s.value = v
	s.loaded = true
	return v, nil
}

func extractField(raw, field string) (string, error) {
	if field == "" {
		return strings.TrimSpace(raw), nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("unmarshal value as JSON: %w", err)
	}
	v, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("field %q not found", field)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", field)
	}
	return strings.TrimSpace(str), nil
}

// EnvGetter serves parameters from environment variables. The parameter name
// "/filmate/secrets" maps to FILMATE_SECRETS. It stands in for SSM when
// running locally.
type EnvGetter struct{}

func (EnvGetter) GetParameter(_ context.Context, name string) (string, error) {
	key := EnvKey(name)
	if key == "" {
		return "", errors.New("paramstore: name is required")
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("paramstore: environment variable %s is not set", key)
	}
	return v, nil
}

// EnvKey converts a parameter path to an environment variable name.
func EnvKey(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "/")
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return strings.ToUpper(r.Replace(name))
}
