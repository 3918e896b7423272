package models

import (
	"time"
)

type Category string

const (
	CategoryPositive     Category = "positive"
	CategoryQuestion     Category = "question"
	CategoryConstructive Category = "constructive"
	CategoryToxic        Category = "toxic"
)

// Categories lists every category in dashboard order.
var Categories = []Category{CategoryPositive, CategoryQuestion, CategoryConstructive, CategoryToxic}

// ListableCategories are the categories whose comments may be listed individually.
var ListableCategories = []Category{CategoryPositive, CategoryQuestion, CategoryConstructive}

func (c Category) Valid() bool {
	switch c {
	case CategoryPositive, CategoryQuestion, CategoryConstructive, CategoryToxic:
		return true
	}
	return false
}

// Listable reports whether comments of this category may appear in a listing.
func (c Category) Listable() bool {
	return c.Valid() && c != CategoryToxic
}

// NeedsReply reports whether a fresh comment of this category awaits a creator response.
func (c Category) NeedsReply() bool {
	return c == CategoryQuestion || c == CategoryConstructive
}

type ModerationStatus string

const (
	ModerationPublished     ModerationStatus = "published"
	ModerationHeldForReview ModerationStatus = "heldForReview"
	ModerationRejected      ModerationStatus = "rejected"
)

// Comment is the persisted document. OriginalText, ToxicityScore, LocalPolarity
// and the classification bookkeeping fields are internal and never leave the core;
// use View for anything returned to the presentation layer.
type Comment struct {
	ID            string     `dynamodbav:"id" json:"id"`
	VideoID       string     `dynamodbav:"video_id" json:"video_id"`
	AuthorName    string     `dynamodbav:"author_name" json:"author_name"`
	PublishedAt   time.Time  `dynamodbav:"published_at" json:"published_at"`
	OriginalText  string     `dynamodbav:"original_text" json:"-"`
	Category      Category   `dynamodbav:"category" json:"category"`
	ToxicityScore float64    `dynamodbav:"toxicity_score" json:"-"`
	LocalPolarity float64    `dynamodbav:"local_polarity" json:"-"`
	MildText      string     `dynamodbav:"mild_text" json:"mild_text"`
	NeedsReply    bool       `dynamodbav:"needs_reply" json:"needs_reply"`
	ReplyPostedAt *time.Time `dynamodbav:"reply_posted_at,omitempty" json:"reply_posted_at,omitempty"`
	Blocked       bool       `dynamodbav:"blocked" json:"-"`

	ModerationStatus       ModerationStatus `dynamodbav:"moderation_status,omitempty" json:"-"`
	ClassificationFallback bool             `dynamodbav:"classification_fallback" json:"-"`
	ClassificationAttempts int              `dynamodbav:"classification_attempts" json:"-"`
	AnalyzedAt             time.Time        `dynamodbav:"analyzed_at" json:"-"`
}

// Classified reports whether a category has been committed for the comment.
func (c *Comment) Classified() bool {
	return c != nil && c.Category != ""
}

// Replied reports whether a reply has been recorded.
func (c *Comment) Replied() bool {
	return c != nil && c.ReplyPostedAt != nil
}

// CommentView is the only shape of a comment exposed outside the core.
type CommentView struct {
	ID          string    `json:"id"`
	AuthorName  string    `json:"author_name"`
	PublishedAt time.Time `json:"published_at"`
	MildText    string    `json:"mild_text"`
	NeedsReply  bool      `json:"needs_reply"`
}

func (c *Comment) View() CommentView {
	return CommentView{
		ID:          c.ID,
		AuthorName:  c.AuthorName,
		PublishedAt: c.PublishedAt,
		MildText:    c.MildText,
		NeedsReply:  c.NeedsReply,
	}
}
