package usecase

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"filmate/internal/domain"
)

const recommendationHeader = "🎬 *おすすめ映画一覧*"

// Recommendation pairs a movie with the text shown under it: the model's
// reason or a synopsis.
type Recommendation struct {
	Movie domain.Movie
	Text  string
}

// AssembleBlocks lays out recommendations as Block Kit blocks: a header, then
// per movie an optional poster and a text section, separated by dividers.
// The list never ends with a divider, so empty input yields the header alone.
func AssembleBlocks(imageBaseURL string, recs []Recommendation) []slack.Block {
	blocks := []slack.Block{
		markdownSection(recommendationHeader),
		slack.NewDividerBlock(),
	}
	base := strings.TrimRight(imageBaseURL, "/")
	for _, r := range recs {
		if r.Movie.PosterPath != "" {
			blocks = append(blocks, slack.NewImageBlock(base+"/"+strings.TrimLeft(r.Movie.PosterPath, "/"), r.Movie.Title, "", nil))
		}
		blocks = append(blocks, markdownSection(movieText(r)), slack.NewDividerBlock())
	}
	if blocks[len(blocks)-1].BlockType() == slack.MBTDivider {
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}

func movieText(r Recommendation) string {
	title := "*" + r.Movie.Title + "*"
	if r.Movie.ReleaseYear != "" {
		title = fmt.Sprintf("%s (%s)", title, r.Movie.ReleaseYear)
	}
	return title + "\n" + r.Text
}

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}
