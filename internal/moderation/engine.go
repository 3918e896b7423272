package moderation

import (
	"strings"

	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/models"
)

// GenericParaphrase replaces a toxic rewrite that is empty or still carries
// the original wording.
const GenericParaphrase = "Viewer expressed strong dissatisfaction with the content."

type Policy struct {
	BlockThreshold    float64
	HoldThreshold     float64
	ReviewPlaceholder string
}

// Engine turns a classification into a moderation decision. It holds no
// state beyond its policy and performs no I/O.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

func NewEngineFromConfig(cfg config.ModerationConfig) *Engine {
	return NewEngine(Policy{
		BlockThreshold:    cfg.BlockThreshold,
		HoldThreshold:     cfg.HoldThreshold,
		ReviewPlaceholder: cfg.ReviewPlaceholder,
	})
}

// Decide applies the policy to a classification of raw. A classifier error
// or an unusable result yields the conservative fallback decision. A blocked
// comment never carries raw as its mild text.
func (e *Engine) Decide(raw string, res *models.ClassificationResult, err error) models.Decision {
	if err != nil || !usable(res) {
		return e.fallback()
	}

	if res.ToxicityScore >= e.policy.BlockThreshold {
		return models.Decision{
			Category:      models.CategoryToxic,
			Blocked:       true,
			MildText:      paraphrase(raw, res.RewrittenText),
			NeedsReply:    false,
			ToxicityScore: res.ToxicityScore,
			Moderation:    models.ModerationRejected,
		}
	}

	mild := strings.TrimSpace(res.RewrittenText)
	if mild == "" {
		return e.fallback()
	}

	category := res.CategoryHint
	if category == models.CategoryToxic {
		// below the block threshold a toxic hint is treated as criticism
		category = models.CategoryConstructive
	}

	decision := models.Decision{
		Category:      category,
		Blocked:       false,
		MildText:      mild,
		NeedsReply:    category.NeedsReply(),
		ToxicityScore: res.ToxicityScore,
	}
	if e.policy.HoldThreshold > 0 && res.ToxicityScore >= e.policy.HoldThreshold {
		decision.Moderation = models.ModerationHeldForReview
	}
	return decision
}

func (e *Engine) fallback() models.Decision {
	return models.Decision{
		Category:   models.CategoryConstructive,
		Blocked:    false,
		MildText:   e.policy.ReviewPlaceholder,
		NeedsReply: true,
		Fallback:   true,
	}
}

func usable(res *models.ClassificationResult) bool {
	if res == nil || !res.CategoryHint.Valid() {
		return false
	}
	return res.ToxicityScore >= 0 && res.ToxicityScore <= 1
}

func paraphrase(raw, rewritten string) string {
	mild := strings.TrimSpace(rewritten)
	original := strings.ToLower(strings.TrimSpace(raw))
	if mild == "" || (original != "" && strings.Contains(strings.ToLower(mild), original)) {
		return GenericParaphrase
	}
	return mild
}
