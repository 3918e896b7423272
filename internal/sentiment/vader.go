package sentiment

import (
	"html"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

var (
	analyzer = govader.NewSentimentIntensityAnalyzer()

	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1") // Keep only the text
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText renders markdown and drops the markup, leaving
// single-spaced plain text without links. Only for model output; comment
// text arrives as plain text and goes through Normalize.
func ConvertMarkdownToText(input string) string {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML,
	})
	output := blackfriday.Run([]byte(input),
		blackfriday.WithNoExtensions(),
		blackfriday.WithRenderer(renderer))

	text := html.UnescapeString(tagPattern.ReplaceAllString(string(output), " "))
	return strings.Join(strings.Fields(RemoveLinks(text)), " ")
}

// Normalize prepares plain comment text for classification: URLs are
// removed and whitespace collapsed, every other character is kept. A
// link-only comment is returned trimmed as-is so the classifier never sees an
// empty prompt for a non-empty comment.
func Normalize(text string) string {
	plain := strings.Join(strings.Fields(RemoveLinks(text)), " ")
	if plain == "" {
		return strings.TrimSpace(text)
	}
	return plain
}

// AnalyzeWithVADER returns the VADER compound score and its coarse label.
func AnalyzeWithVADER(text string) (float64, string) {
	plainText := Normalize(text)

	sentiment := analyzer.PolarityScores(plainText)
	score := sentiment.Compound

	var label string
	if score >= 0.20 {
		label = "positive"
	} else if score <= -0.20 {
		label = "negative"
	} else {
		label = "neutral"
	}

	return score, label
}
