package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"filmate/internal/domain"
)

func newTestSummarizer(t *testing.T, llm *mockLLM) *Summarizer {
	t.Helper()
	s, err := NewSummarizer(llm, time.Millisecond)
	require.NoError(t, err)
	return s
}

func longMovies() []domain.Movie {
	return []domain.Movie{
		{Title: "A", Overview: strings.Repeat("あ", 120)},
		{Title: "B", Overview: "短い"},
		{Title: "C", Overview: strings.Repeat("c", 81)},
	}
}

func TestSummarize_Empty(t *testing.T) {
	llm := replies("unused")
	got := newTestSummarizer(t, llm).Summarize(context.Background(), nil)
	require.NotNil(t, got)
	require.Empty(t, got)
	require.Zero(t, llm.calls())
}

func TestSummarize_FirstAttempt(t *testing.T) {
	llm := replies("あらすじ: 一\nあらすじ: 二\nあらすじ: 三")
	got := newTestSummarizer(t, llm).Summarize(context.Background(), longMovies())
	require.Equal(t, []string{"一", "二", "三"}, got)
	require.Equal(t, 1, llm.calls())
	require.Equal(t, []int{summaryMaxTokens}, llm.maxTokens)
}

func TestSummarize_RetriesMisalignedOutput(t *testing.T) {
	llm := replies("あらすじ: 一\nあらすじ: 二", "あらすじ: 1\nあらすじ: 2\nあらすじ: 3")
	got := newTestSummarizer(t, llm).Summarize(context.Background(), longMovies())
	require.Equal(t, []string{"1", "2", "3"}, got)
	require.Equal(t, 2, llm.calls())
}

func TestSummarize_FallbackAfterThreeFailures(t *testing.T) {
	llm := failingLLM(errors.New("bedrock unavailable"))
	movies := longMovies()
	got := newTestSummarizer(t, llm).Summarize(context.Background(), movies)

	require.Equal(t, summaryAttempts, llm.calls())
	require.Len(t, got, 3)
	for _, s := range got {
		require.LessOrEqual(t, utf8.RuneCountInString(s), summaryMaxRunes+1)
	}
	require.Equal(t, strings.Repeat("あ", 80)+"…", got[0])
	require.Equal(t, "短い", got[1])
	require.Equal(t, strings.Repeat("c", 80)+"…", got[2])
}

func TestSummarize_ClientErrorIsNotRetried(t *testing.T) {
	llm := failingLLM(&statusError{code: 400})
	got := newTestSummarizer(t, llm).Summarize(context.Background(), longMovies()[:1])
	require.Equal(t, 1, llm.calls())
	require.Equal(t, []string{strings.Repeat("あ", 80) + "…"}, got)
}

func TestSummarize_ThrottlingIsRetried(t *testing.T) {
	llm := &mockLLM{responses: []llmResponse{
		{err: &statusError{code: 429}},
		{text: "あらすじ: ok"},
	}}
	got := newTestSummarizer(t, llm).Summarize(context.Background(), longMovies()[1:2])
	require.Equal(t, []string{"ok"}, got)
	require.Equal(t, 2, llm.calls())
}

func TestSummarize_BacksOffExponentially(t *testing.T) {
	llm := failingLLM(errors.New("timeout"))
	s, err := NewSummarizer(llm, 20*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	s.Summarize(context.Background(), longMovies()[:1])
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	require.Equal(t, summaryAttempts, llm.calls())
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "", truncateRunes("", 80))
	require.Equal(t, "abc", truncateRunes("abc", 3))
	require.Equal(t, "ab…", truncateRunes("abc", 2))
}

func TestNewSummarizer_Validation(t *testing.T) {
	_, err := NewSummarizer(nil, time.Second)
	require.Error(t, err)

	s, err := NewSummarizer(replies(""), 0)
	require.NoError(t, err)
	require.Equal(t, time.Second, s.interval)
}
