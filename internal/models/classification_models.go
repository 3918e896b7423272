package models

// ClassificationResult is a validated judgment from the classification service.
type ClassificationResult struct {
	CategoryHint  Category `json:"category"`
	ToxicityScore float64  `json:"toxicity_score"`
	RewrittenText string   `json:"mild_text"`
	Reason        string   `json:"reason,omitempty"`
}

// RawClassification is the untrusted wire shape returned by a provider.
// Pointers distinguish missing fields from zero values.
type RawClassification struct {
	Category      *string  `json:"category"`
	ToxicityScore *float64 `json:"toxicity_score"`
	MildText      *string  `json:"mild_text"`
	Reason        string   `json:"reason"`
}

// Decision is the moderation outcome applied to a comment.
type Decision struct {
	Category   Category
	Blocked    bool
	MildText   string
	NeedsReply bool
	// Fallback is set when the decision was made without a usable classification.
	Fallback bool
	// ToxicityScore echoes the score the decision was based on; zero on fallback.
	ToxicityScore float64
	Moderation    ModerationStatus
}
