package classifier

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spacesedan/commentguard/internal/models"
	"github.com/spacesedan/commentguard/internal/sentiment"
)

// cleanResponse strips the markdown code fences models occasionally wrap
// around JSON output.
func cleanResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

// parseClassification validates untrusted provider output. Every failure is
// a MalformedResponseError.
func parseClassification(content string) (*models.ClassificationResult, error) {
	cleaned := cleanResponse(content)
	if !(strings.HasPrefix(cleaned, "{") && strings.HasSuffix(cleaned, "}")) {
		return nil, models.Malformed("response is not a JSON object")
	}

	var raw models.RawClassification
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		// curly quotes used as JSON delimiters
		requoted := strings.NewReplacer("“", `"`, "”", `"`).Replace(cleaned)
		if err2 := json.Unmarshal([]byte(requoted), &raw); err2 != nil {
			return nil, models.Malformed("invalid JSON: %v", err)
		}
	}

	if raw.Category == nil {
		return nil, models.Malformed("missing category")
	}
	category := models.Category(strings.ToLower(strings.TrimSpace(*raw.Category)))
	if !category.Valid() {
		return nil, models.Malformed("unknown category %q", *raw.Category)
	}

	if raw.ToxicityScore == nil {
		return nil, models.Malformed("missing toxicity_score")
	}
	score := *raw.ToxicityScore
	if math.IsNaN(score) || score < 0 || score > 1 {
		return nil, models.Malformed("toxicity_score %v outside [0,1]", score)
	}

	if raw.MildText == nil || strings.TrimSpace(*raw.MildText) == "" {
		return nil, models.Malformed("missing mild_text")
	}

	return &models.ClassificationResult{
		CategoryHint:  category,
		ToxicityScore: score,
		RewrittenText: strings.TrimSpace(*raw.MildText),
		Reason:        raw.Reason,
	}, nil
}

// cleanReply turns a drafted reply into plain text: the platform does not
// render the markdown models like to emit.
func cleanReply(content string) string {
	reply := strings.Trim(strings.TrimSpace(content), "\"“”")
	return sentiment.ConvertMarkdownToText(reply)
}
