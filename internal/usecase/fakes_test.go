package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"filmate/internal/domain"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type llmResponse struct {
	text string
	err  error
}

// mockLLM replays responses in order, repeating the last one.
type mockLLM struct {
	mu        sync.Mutex
	responses []llmResponse
	prompts   []string
	maxTokens []int
}

func (m *mockLLM) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return "", errors.New("no llm response configured")
	}
	idx := len(m.prompts)
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.prompts = append(m.prompts, prompt)
	m.maxTokens = append(m.maxTokens, maxTokens)
	return m.responses[idx].text, m.responses[idx].err
}

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func replies(texts ...string) *mockLLM {
	m := &mockLLM{}
	for _, t := range texts {
		m.responses = append(m.responses, llmResponse{text: t})
	}
	return m
}

func failingLLM(err error) *mockLLM {
	return &mockLLM{responses: []llmResponse{{err: err}}}
}

type statusError struct{ code int }

func (e *statusError) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) HTTPStatusCode() int { return e.code }

type memStore struct {
	sessions  map[string]domain.Session
	getErr    error
	createErr error
	putErr    error
	deleteErr error

	// createLoses simulates another writer winning the conditional create.
	createLoses *domain.Session

	puts    []domain.Session
	creates []domain.Session
	deleted []string
}

func newMemStore(sessions ...domain.Session) *memStore {
	m := &memStore{sessions: map[string]domain.Session{}}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *memStore) Get(_ context.Context, id string) (domain.Session, bool, error) {
	if m.getErr != nil {
		return domain.Session{}, false, m.getErr
	}
	s, ok := m.sessions[id]
	if ok {
		s.Preferences = append([]string{}, s.Preferences...)
	}
	return s, ok, nil
}

func (m *memStore) Create(_ context.Context, s domain.Session) (bool, error) {
	m.creates = append(m.creates, s)
	if m.createErr != nil {
		return false, m.createErr
	}
	if m.createLoses != nil {
		m.sessions[s.ID] = *m.createLoses
		return false, nil
	}
	if _, ok := m.sessions[s.ID]; ok {
		return false, nil
	}
	m.sessions[s.ID] = s
	return true, nil
}

func (m *memStore) Put(_ context.Context, s domain.Session) error {
	m.puts = append(m.puts, s)
	if m.putErr != nil {
		return m.putErr
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.sessions, id)
	return nil
}

type fakeCatalog struct {
	mu sync.Mutex

	keywordIDs    []int
	keywordErr    error
	keywordMovies []domain.Movie

	genres         map[string]int
	genresErr      error
	genreMovies    []domain.Movie
	listGenreCalls int

	titles   map[string][]domain.Movie
	titleErr map[string]error

	calls        []string
	lastGenreIDs []int
	titleQueries []string
}

func (f *fakeCatalog) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCatalog) SearchKeywords(_ context.Context, _ string) ([]int, error) {
	f.record("SearchKeywords")
	return f.keywordIDs, f.keywordErr
}

func (f *fakeCatalog) DiscoverByKeywords(_ context.Context, _ []int, _ int) ([]domain.Movie, error) {
	f.record("DiscoverByKeywords")
	return f.keywordMovies, nil
}

func (f *fakeCatalog) DiscoverByGenres(_ context.Context, ids []int, _ int) ([]domain.Movie, error) {
	f.record("DiscoverByGenres")
	f.mu.Lock()
	f.lastGenreIDs = ids
	f.mu.Unlock()
	return f.genreMovies, nil
}

func (f *fakeCatalog) SearchTitle(_ context.Context, query string, limit int) ([]domain.Movie, error) {
	f.record("SearchTitle")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleQueries = append(f.titleQueries, query)
	if err := f.titleErr[query]; err != nil {
		return nil, err
	}
	movies := f.titles[query]
	if limit > 0 && len(movies) > limit {
		movies = movies[:limit]
	}
	return movies, nil
}

func (f *fakeCatalog) ListGenres(_ context.Context) (map[string]int, error) {
	f.record("ListGenres")
	f.mu.Lock()
	f.listGenreCalls++
	f.mu.Unlock()
	if f.genresErr != nil {
		return nil, f.genresErr
	}
	return f.genres, nil
}

func (f *fakeCatalog) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type posted struct {
	channel string
	user    string
	text    string
	blocks  []slack.Block
}

type recordingNotifier struct {
	err   error
	posts []posted
}

func (r *recordingNotifier) PostEphemeral(_ context.Context, channel, user, text string, blocks []slack.Block) error {
	r.posts = append(r.posts, posted{channel: channel, user: user, text: text, blocks: blocks})
	return r.err
}

type recordingDispatcher struct {
	err  error
	reqs []domain.ChatRequest
}

func (r *recordingDispatcher) Dispatch(_ context.Context, req domain.ChatRequest) error {
	r.reqs = append(r.reqs, req)
	return r.err
}

func movie(id int, title, year string) domain.Movie {
	return domain.Movie{ID: id, Title: title, ReleaseYear: year, Overview: title + "のあらすじ", PosterPath: fmt.Sprintf("/p%d.jpg", id)}
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, code, ue.Code)
}
