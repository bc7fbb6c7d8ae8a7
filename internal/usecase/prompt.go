package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"

	"filmate/internal/domain"
)

const (
	replyMaxTokens      = 512
	icebreakerMaxTokens = 128
	titlesMaxTokens     = 512
	summaryMaxTokens    = 512

	summaryLabel = "あらすじ"
)

func personaPreamble() string {
	return strings.Join([]string{
		"あなたは、ユーザーと一緒に映画を観る友人です。",
		"あなたは女の子です。",
		"フレンドリーに話してください。",
		"敬語ではなく、タメ口で話してください。",
		"ユーザーは映画を探しています。",
		"これから映画をおすすめするためにユーザーの好みを分析してください。",
		"ユーザーの好みを自然に掘り下げ、親しい友達のように接してください。",
	}, "")
}

func buildReplyPrompt(preferences []string, input string) string {
	var b strings.Builder
	b.WriteString(personaPreamble())
	if len(preferences) > 0 {
		b.WriteString("\nこれまでの好み: ")
		b.WriteString(strings.Join(preferences, "、"))
	}
	b.WriteString("\nユーザー: ")
	b.WriteString(input)
	return b.String()
}

func buildIcebreakerPrompt() string {
	return personaPreamble() + strings.Join([]string{
		"時刻や天気を考慮して、親しみやすい一言＋最初の質問を日本語で返してください。",
		"余計な説明は不要で、質問だけを一文で。",
		"例1：「やっほー！今なにしてるの？暇なら一緒に映画でも観ない？」",
		"例2：「お仕事お疲れ！息抜きに一緒に映画でも観ない？」",
		"例3：「今日は暑いね！休憩に一緒に映画でも観ない？」",
	}, "")
}

func buildTitlesPrompt(preferences []string) string {
	return strings.Join([]string{
		fmt.Sprintf("以下の条件を満たす映画を日本語タイトルで %d 本、JSON 形式で教えてください。", maxRecommendations),
		"・キーワード: " + strings.Join(preferences, "、"),
		"・返却例:",
		"[",
		`  { "title": "チャーリーとチョコレート工場", "reason": "チョコレート工場を描いた物語で…" },`,
		"  …",
		"]",
		"・必ず JSON 配列だけを返してください（余計なテキスト禁止）",
	}, "\n")
}

func buildSummaryPrompt(movies []domain.Movie) string {
	entries := make([]string, 0, len(movies))
	for _, m := range movies {
		entries = append(entries, fmt.Sprintf("タイトル: %s\n%s: %s", m.Title, summaryLabel, m.Overview))
	}
	return fmt.Sprintf(
		"次の映画それぞれのあらすじを%d文字以内の日本語で要約してください。\n"+
			"映画ごとに「%s: 」で始まる1行だけを、入力と同じ順番で返してください。\n\n%s",
		summaryMaxRunes, summaryLabel, strings.Join(entries, "\n\n"),
	)
}

// parseCandidates decodes the model's title list. The text must be exactly one
// JSON array; surrounding prose is rejected.
func parseCandidates(raw string) ([]domain.Candidate, error) {
	var out []domain.Candidate
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("usecase: decode candidates: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("usecase: decode candidates: multiple JSON values")
		}
		return nil, fmt.Errorf("usecase: decode candidates trailing data: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(out))
	for _, c := range out {
		c.Title = strings.TrimSpace(c.Title)
		c.Reason = strings.TrimSpace(c.Reason)
		if c.Title != "" {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// parseSummaries collects the labeled lines of a summary response in order.
// Both the ASCII and the full-width colon are accepted after the label.
func parseSummaries(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, summaryLabel)
		if !ok {
			continue
		}
		if after, found := strings.CutPrefix(rest, ":"); found {
			rest = after
		} else if after, found := strings.CutPrefix(rest, "："); found {
			rest = after
		} else {
			continue
		}
		out = append(out, strings.TrimSpace(rest))
	}
	return out
}
